package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/fileflow/pkg/log"
)

// openDB opens dsn with the pragmas every FileFlow SQLite file uses and runs
// schema. When the first open fails on WAL files abandoned by a crashed
// process, they are removed and the open is retried once.
func openDB(dsn, schema string) (*sql.DB, error) {
	db, err := openWithPragmas(dsn, schema)
	if err == nil {
		return db, nil
	}

	path := dbPathFromDSN(dsn)
	if path == "" || !isRecoverableWALError(err) || !isWALStale(path) {
		return nil, err
	}

	for _, suffix := range []string{"-shm", "-wal"} {
		if rmErr := os.Remove(path + suffix); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warnw("sqlite: failed to remove stale WAL file", "path", path+suffix, "error", rmErr)
		}
	}

	db, retryErr := openWithPragmas(dsn, schema)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Infow("sqlite: recovered from stale WAL files", "path", path)
	return db, nil
}

func openWithPragmas(dsn, schema string) (*sql.DB, error) {
	if path := dbPathFromDSN(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// dbPathFromDSN returns the filesystem path of dsn, or "" for in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if !strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == ":memory:" || u.Query().Get("mode") == "memory" {
		return ""
	}
	return path
}

func isRecoverableWALError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether WAL side files exist and no process holds them.
// Without lsof nothing is considered stale.
func isWALStale(path string) bool {
	shm, wal := path+"-shm", path+"-wal"
	if !exists(shm) && !exists(wal) {
		return false
	}
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsof, "-t", path, shm, wal).Output()
	if err != nil {
		// lsof exits 1 when no process has the files open.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
