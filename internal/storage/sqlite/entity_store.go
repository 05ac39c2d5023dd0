package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/types"
)

// StoreEntity creates an entity with the given variations, or merges the
// variations into an existing one. New entities start with a usage count of
// zero; usage is counted when analyses reference them.
func (s *RecordStore) StoreEntity(ctx context.Context, name string, variations []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	ts := storage.FormatTime(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, found, err := loadVariations(ctx, tx, name)
		if err != nil {
			return err
		}
		merged := mergeVariations(current, variations)
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal variations: %w", err)
		}

		if !found {
			_, err = tx.ExecContext(ctx, `INSERT INTO entities
				(entity_name, variations, usage_count, first_seen, last_seen)
				VALUES (?, ?, 0, ?, ?)`, name, string(data), ts, ts)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE entities SET variations = ?, last_seen = ?
				WHERE entity_name = ?`, string(data), ts, name)
		}
		if err != nil {
			return fmt.Errorf("failed to store entity: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "store_entity", err, map[string]interface{}{"entity_name": name})
	}
	return nil
}

// AddEntityVariation appends variation to an existing entity. Unknown
// entities and known variations are no-ops.
func (s *RecordStore) AddEntityVariation(ctx context.Context, canonical, variation string) error {
	if variation == "" {
		return nil
	}
	ts := storage.FormatTime(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, found, err := loadVariations(ctx, tx, canonical)
		if err != nil || !found {
			return err
		}
		for _, v := range current {
			if v == variation {
				return nil
			}
		}
		data, err := json.Marshal(append(current, variation))
		if err != nil {
			return fmt.Errorf("failed to marshal variations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE entities SET variations = ?, last_seen = ?
			WHERE entity_name = ?`, string(data), ts, canonical); err != nil {
			return fmt.Errorf("failed to add entity variation: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "add_entity_variation", err, map[string]interface{}{
			"canonical_name": canonical,
			"variation":      variation,
		})
	}
	return nil
}

func loadVariations(ctx context.Context, tx *sql.Tx, name string) ([]string, bool, error) {
	var raw sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT variations FROM entities WHERE entity_name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load entity variations: %w", err)
	}
	return decodeStringList(raw.String, "variations", 0), true, nil
}

// mergeVariations appends the entries of add missing from current, keeping order.
func mergeVariations(current, add []string) []string {
	seen := make(map[string]bool, len(current)+len(add))
	out := make([]string, 0, len(current)+len(add))
	for _, list := range [][]string{current, add} {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ListEntities returns every entity, most used first.
func (s *RecordStore) ListEntities(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, entity_name, variations, usage_count, first_seen, last_seen
		FROM entities ORDER BY usage_count DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	entities := []*types.Entity{}
	for rows.Next() {
		var (
			id                  int64
			e                   types.Entity
			variations          sql.NullString
			firstSeen, lastSeen string
		)
		if err := rows.Scan(&id, &e.Name, &variations, &e.UsageCount, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Variations = decodeStringList(variations.String, "variations", id)
		e.FirstSeen = storage.ParseTime(firstSeen)
		e.LastSeen = storage.ParseTime(lastSeen)
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}

// TopEntities returns the most used entities.
func (s *RecordStore) TopEntities(ctx context.Context, limit int) ([]types.EntityUsage, error) {
	return s.entityUsage(ctx, `ORDER BY usage_count DESC, id ASC`, limit)
}

// RecentEntities returns the most recently seen entities.
func (s *RecordStore) RecentEntities(ctx context.Context, limit int) ([]types.EntityUsage, error) {
	return s.entityUsage(ctx, `ORDER BY last_seen DESC, id DESC`, limit)
}

func (s *RecordStore) entityUsage(ctx context.Context, orderBy string, limit int) ([]types.EntityUsage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT entity_name, usage_count, last_seen FROM entities `+orderBy+` LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity usage: %w", err)
	}
	defer rows.Close()

	out := []types.EntityUsage{}
	for rows.Next() {
		var u types.EntityUsage
		var lastSeen string
		if err := rows.Scan(&u.Name, &u.UsageCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan entity usage: %w", err)
		}
		u.LastSeen = storage.ParseTime(lastSeen)
		out = append(out, u)
	}
	return out, rows.Err()
}
