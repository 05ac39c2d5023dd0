// Package backup takes verified snapshots of the record store and keeps the
// newest few.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/fileflow/pkg/log"
)

// DefaultKeep is how many snapshots are retained when Config.Keep is unset.
const DefaultKeep = 10

const (
	filePrefix = "fileflow-"
	fileSuffix = ".db"
	timeLayout = "20060102-150405.000"
)

// Source writes a consistent copy of a database to a new file.
type Source interface {
	BackupTo(ctx context.Context, destPath string) error
}

// Config controls where snapshots go and how many are kept.
type Config struct {
	Dir  string
	Keep int
}

// Info describes one snapshot file.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Verified  bool      `json:"verified"`
}

// Service takes snapshots on demand. Calls are serialized.
type Service struct {
	src  Source
	dir  string
	keep int
	now  func() time.Time
	mu   sync.Mutex
}

// New returns a Service writing into cfg.Dir.
func New(src Source, cfg Config) (*Service, error) {
	if src == nil {
		return nil, errors.New("backup: source is required")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("backup: directory is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	return &Service{src: src, dir: cfg.Dir, keep: cfg.Keep, now: time.Now}, nil
}

// BackupNow writes a snapshot, verifies it and prunes the oldest snapshots
// beyond the keep count. A snapshot that fails verification is removed.
func (s *Service) BackupNow(ctx context.Context) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create directory: %w", err)
	}

	created := s.now().UTC()
	path := filepath.Join(s.dir, filePrefix+created.Format(timeLayout)+fileSuffix)
	start := time.Now()
	if err := s.src.BackupTo(ctx, path); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	if err := verify(ctx, path); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat snapshot: %w", err)
	}
	info := &Info{Path: path, Size: fi.Size(), CreatedAt: created, Verified: true}
	log.Infow("backup: snapshot written", "path", path, "size", info.Size, "duration", time.Since(start))

	if err := s.prune(); err != nil {
		log.Warnw("backup: pruning failed", "error", err)
	}
	return info, nil
}

// List returns the snapshots in the directory, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read directory: %w", err)
	}

	backups := []Info{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		created, err := time.Parse(timeLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{Path: filepath.Join(s.dir, name), Size: fi.Size(), CreatedAt: created})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func (s *Service) prune() error {
	backups, err := s.List()
	if err != nil {
		return err
	}
	if len(backups) <= s.keep {
		return nil
	}
	var errs []error
	for _, b := range backups[s.keep:] {
		if err := os.Remove(b.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Debugw("backup: pruned snapshot", "path", b.Path)
	}
	return errors.Join(errs...)
}

// verify runs SQLite's integrity check against a snapshot.
func verify(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("backup: failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}
