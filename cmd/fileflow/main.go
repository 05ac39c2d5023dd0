// Command fileflow watches a folder, suggests document names and serves the
// review API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/fileflow/internal/backup"
	"github.com/scrypster/fileflow/internal/config"
	"github.com/scrypster/fileflow/internal/extractor"
	"github.com/scrypster/fileflow/internal/intelligence"
	"github.com/scrypster/fileflow/internal/memory"
	"github.com/scrypster/fileflow/internal/monitor"
	"github.com/scrypster/fileflow/internal/server"
	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/internal/storage/postgres"
	"github.com/scrypster/fileflow/internal/storage/qdrant"
	"github.com/scrypster/fileflow/internal/storage/sqlite"
	"github.com/scrypster/fileflow/internal/vectorstore"
	"github.com/scrypster/fileflow/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (env FILEFLOW_* overrides it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileflow: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output); err != nil {
		fmt.Fprintf(os.Stderr, "fileflow: failed to initialise logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("fileflow: exiting", err)
		log.Sync()
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create data path: %w", err)
	}
	if err := os.MkdirAll(cfg.Watch.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch dir: %w", err)
	}

	store, err := sqlite.NewRecordStore(cfg.Storage.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()

	if cfg.Activity.RetentionDays > 0 {
		if n, err := store.PurgeActivity(ctx, cfg.Activity.RetentionDays); err != nil {
			log.Warnw("fileflow: activity purge failed", "error", err)
		} else if n > 0 {
			log.Infow("fileflow: purged old activity", "deleted", n, "retention_days", cfg.Activity.RetentionDays)
		}
	}

	vectors, err := vectorstore.Select(ctx, cfg.Vector.Dimension, vectorCandidates(cfg)...)
	if err != nil {
		return err
	}
	defer vectors.Close()

	mem := memory.New(ctx, store)
	analyzer := newAnalyzer(cfg)

	mon, err := monitor.New(monitor.Config{
		Dir:           cfg.Watch.Dir,
		Recursive:     cfg.Watch.Recursive,
		Extensions:    cfg.Watch.Extensions,
		RecencyWindow: cfg.Watch.RecencyWindow,
		Debounce:      cfg.Watch.Debounce,
		Workers:       cfg.Watch.Workers,
		QueueSize:     cfg.Watch.QueueSize,
	}, monitor.Deps{
		Store:     store,
		Vectors:   vectors,
		Memory:    mem,
		Analyzer:  analyzer,
		Extractor: newExtractor(cfg),
	})
	if err != nil {
		return err
	}

	backups, err := backup.New(store, backup.Config{Dir: cfg.Storage.BackupPath(), Keep: cfg.Storage.BackupKeep})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Deps{
		Store:    store,
		Vectors:  vectors,
		Memory:   mem,
		Embedder: analyzer,
		Backups:  backups,
	})
	if err != nil {
		return err
	}
	store.OnActivity(srv.Hub().BroadcastActivity)

	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	addr, err := srv.Start(srvCtx)
	if err != nil {
		return err
	}
	if err := mon.Start(ctx); err != nil {
		stopServer()
		<-srv.Done()
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	log.Infow("fileflow: running", "addr", "http://"+addr, "watch_dir", cfg.Watch.Dir,
		"vector_backend", vectors.Backend(), "intelligence", cfg.Intelligence.Enabled())

	<-ctx.Done()
	log.Infow("fileflow: shutting down")
	mon.Stop()
	<-srv.Done()
	return nil
}

// vectorCandidates lists the configured backends in preference order.
// Remote backends without an address are left out.
func vectorCandidates(cfg *config.Config) []vectorstore.Candidate {
	vc := cfg.Vector
	var candidates []vectorstore.Candidate
	for _, name := range vc.Backends {
		switch name {
		case config.BackendQdrant:
			if vc.Qdrant.Addr == "" {
				continue
			}
			candidates = append(candidates, vectorstore.Candidate{Name: name,
				Open: func(ctx context.Context, dim int) (storage.VectorBackend, error) {
					ctx, cancel := connectContext(ctx, vc.ConnectTimeout)
					defer cancel()
					return qdrant.NewVectorBackend(ctx, qdrant.Options{
						Addr:       vc.Qdrant.Addr,
						Collection: vc.Qdrant.Collection,
						APIKey:     vc.Qdrant.APIKey,
						UseTLS:     vc.Qdrant.UseTLS,
					}, dim)
				}})
		case config.BackendPgvector:
			if vc.Postgres.DSN == "" {
				continue
			}
			candidates = append(candidates, vectorstore.Candidate{Name: name,
				Open: func(ctx context.Context, dim int) (storage.VectorBackend, error) {
					ctx, cancel := connectContext(ctx, vc.ConnectTimeout)
					defer cancel()
					return postgres.NewVectorBackend(ctx, vc.Postgres.DSN, vc.Postgres.Table, dim)
				}})
		case config.BackendSQLite:
			path := vc.SQLite.Path
			if path == "" {
				path = filepath.Join(cfg.Storage.DataPath, "vectors.db")
			}
			candidates = append(candidates, vectorstore.Candidate{Name: name,
				Open: func(context.Context, int) (storage.VectorBackend, error) {
					return sqlite.NewVectorBackend(path)
				}})
		default:
			log.Warnw("fileflow: unknown vector backend ignored", "backend", name)
		}
	}
	return candidates
}

func connectContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// newExtractor serves text formats from disk and, when a Tika server is
// configured, every other watched extension through Tika.
func newExtractor(cfg *config.Config) *extractor.Chain {
	text := extractor.PlainText{MaxBytes: cfg.Extractor.MaxTextBytes}
	if cfg.Extractor.TikaURL == "" {
		return extractor.NewChain(text, nil, nil, cfg.Extractor.MaxChars)
	}
	exts := cfg.Watch.Extensions
	if len(exts) == 0 {
		exts = monitor.DefaultExtensions
	}
	tika := extractor.NewTika(cfg.Extractor.TikaURL, cfg.Extractor.Timeout, cfg.Extractor.MaxTextBytes)
	return extractor.NewChain(text, tika, exts, cfg.Extractor.MaxChars)
}

// newAnalyzer returns the intelligence service. Without a usable endpoint
// every analysis falls back.
func newAnalyzer(cfg *config.Config) *intelligence.Service {
	ic := cfg.Intelligence
	if !ic.Enabled() {
		log.Warnw("fileflow: intelligence disabled, using fallback names", "error", intelligence.ErrNotConfigured)
		return intelligence.NewService(nil, cfg.Vector.Dimension)
	}
	client := intelligence.NewClient(intelligence.ClientConfig{
		BaseURL:           ic.BaseURL,
		APIKey:            ic.APIKey,
		ChatModel:         ic.ChatModel,
		EmbeddingModel:    ic.EmbeddingModel,
		Timeout:           ic.Timeout,
		RequestsPerSecond: ic.RequestsPerSecond,
	})
	return intelligence.NewService(client, cfg.Vector.Dimension)
}
