package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/types"
)

// StoreDocumentContext appends a document context row.
func (s *RecordStore) StoreDocumentContext(ctx context.Context, dc *types.DocumentContext) error {
	if dc == nil || dc.FilePath == "" {
		return fmt.Errorf("%w: file path is required", storage.ErrInvalidInput)
	}

	entities := dc.Entities
	if entities == nil {
		entities = []string{}
	}
	keywords := dc.Keywords
	if len(keywords) > storage.MaxContextKeywords {
		keywords = keywords[:storage.MaxContextKeywords]
	}
	if keywords == nil {
		keywords = []string{}
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	summary := storage.Truncate(dc.ContentSummary, storage.MaxSummaryChars)
	now := s.now().UTC()

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO document_context
			(file_path, entities, content_summary, keywords, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			dc.FilePath, string(entitiesJSON), summary, string(keywordsJSON), storage.FormatTime(now))
		if err != nil {
			return fmt.Errorf("failed to store document context: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return s.fail(ctx, "store_document_context", err, map[string]interface{}{"file_path": dc.FilePath})
	}

	dc.ID = id
	dc.Entities = entities
	dc.Keywords = keywords
	dc.ContentSummary = summary
	dc.CreatedAt = now
	return nil
}

// SearchRelatedDocuments finds analysed files whose document contexts contain
// any of the first three keywords. Matches count distinct matched keywords
// per file; the score divides that by the full keyword count.
func (s *RecordStore) SearchRelatedDocuments(ctx context.Context, keywords []string, limit int) ([]types.RelatedDocument, error) {
	if len(keywords) == 0 {
		return []types.RelatedDocument{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	probe := keywords
	if len(probe) > storage.RelatedKeywordProbe {
		probe = probe[:storage.RelatedKeywordProbe]
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(probe)), ",")
	args := make([]interface{}, 0, len(probe)+1)
	for _, k := range probe {
		args = append(args, k)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT fa.id, fa.file_path, fa.entities, fa.suggested_name, COUNT(DISTINCT kw.value) AS matches
		FROM file_analysis fa
		JOIN document_context dc ON dc.file_path = fa.file_path
		JOIN json_each(CASE WHEN json_valid(dc.keywords) THEN dc.keywords ELSE '[]' END) kw
		WHERE kw.value IN (`+placeholders+`)
		GROUP BY fa.file_path
		ORDER BY matches DESC, MAX(dc.created_at) DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search related documents: %w", err)
	}
	defer rows.Close()

	results := []types.RelatedDocument{}
	for rows.Next() {
		var (
			id       int64
			doc      types.RelatedDocument
			entities sql.NullString
			matches  int
		)
		if err := rows.Scan(&id, &doc.FilePath, &entities, &doc.SuggestedName, &matches); err != nil {
			return nil, fmt.Errorf("failed to scan related document: %w", err)
		}
		doc.Entities = decodeStringList(entities.String, "entities", id)
		doc.SimilarityScore = float64(matches) / float64(len(keywords))
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating related documents: %w", err)
	}
	return results, nil
}
