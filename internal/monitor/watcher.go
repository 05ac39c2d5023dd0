package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("monitor already started")

// moveSlack absorbs coarse file-system timestamps when comparing a created
// file's mtime against a rename.
const moveSlack = time.Second

type pendingEvent struct {
	timer     *time.Timer
	eventType string
}

// Start watches cfg.Dir, starts the worker pool and scans the files already
// present in the background with event type "existing". ctx only bounds
// startup; runs continue until Stop.
func (m *Monitor) Start(ctx context.Context) error {
	info, err := os.Stat(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to stat watch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %s is not a directory", m.cfg.Dir)
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if err := m.openWatcher(); err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return err
	}

	m.runCtx = context.WithoutCancel(ctx)
	m.jobs = make(chan job, m.cfg.QueueSize)
	m.stopCh = make(chan struct{})
	m.loopDone = make(chan struct{})

	for i := 0; i < m.cfg.Workers; i++ {
		m.workerWG.Add(1)
		go m.worker(i)
	}
	go m.loop()

	m.scanWG.Add(1)
	go func() {
		defer m.scanWG.Done()
		if err := m.scan(); err != nil {
			log.Error("monitor: initial scan failed", err, "dir", m.cfg.Dir)
		}
	}()

	if err := m.deps.Store.LogActivity(m.runCtx, types.ActivityMonitorStarted,
		"Started monitoring folder: "+m.cfg.Dir, map[string]interface{}{"folder_path": m.cfg.Dir}); err != nil {
		log.Error("monitor: failed to record start", err)
	}
	log.Infow("monitor: watching", "dir", m.cfg.Dir, "recursive", m.cfg.Recursive, "workers", m.cfg.Workers)
	return nil
}

// Stop stops intake, waits for queued and in-flight runs to finish, and
// records monitoring_stopped. It is a no-op unless Start succeeded.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for path, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, path)
	}
	m.mu.Unlock()

	close(m.stopCh)
	_ = m.watcher.Close()
	<-m.loopDone
	m.scanWG.Wait()
	m.dispatchWG.Wait()

	close(m.jobs)
	m.workerWG.Wait()

	if err := m.deps.Store.LogActivity(m.runCtx, types.ActivityMonitorStopped,
		"Stopped monitoring folder: "+m.cfg.Dir, map[string]interface{}{"folder_path": m.cfg.Dir}); err != nil {
		log.Error("monitor: failed to record stop", err)
	}
	log.Infow("monitor: stopped", "dir", m.cfg.Dir)
}

func (m *Monitor) openWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	m.watcher = w
	if err := m.watchTree(m.cfg.Dir); err != nil {
		_ = w.Close()
		return err
	}
	return nil
}

func (m *Monitor) worker(id int) {
	defer m.workerWG.Done()
	for j := range m.jobs {
		res := m.ProcessFile(m.runCtx, j.path, j.eventType)
		log.Debugw("monitor: run finished", "worker", id, "path", j.path, "outcome", res.Outcome)
	}
}

// watchTree adds dir, and every subdirectory when recursive, to the watcher.
func (m *Monitor) watchTree(dir string) error {
	if !m.cfg.Recursive {
		if err := m.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnw("monitor: cannot walk", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := m.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (m *Monitor) loop() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.stopCh:
			return
		case evt, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handle(evt)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("monitor: watcher error", "error", err)
		}
	}
}

func (m *Monitor) handle(evt fsnotify.Event) {
	switch {
	case evt.Has(fsnotify.Create):
		info, err := os.Stat(evt.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			m.addDir(evt.Name)
			return
		}
		eventType := types.EventCreated
		if m.takeRename(info.ModTime()) {
			eventType = types.EventMoved
		}
		m.schedule(evt.Name, eventType)
	case evt.Has(fsnotify.Write):
		m.schedule(evt.Name, types.EventModified)
	case evt.Has(fsnotify.Rename):
		m.mu.Lock()
		m.renames = append(m.renames, time.Now())
		m.mu.Unlock()
	}
}

// takeRename reports whether a created file with the given mtime is the
// target of a rename seen within the debounce window, and consumes that
// rename. fsnotify reports a move as a rename of the old path followed by a
// create of the new one. A moved file keeps its mtime while a freshly
// written one does not, so files modified within moveSlack of the rename
// count as new.
func (m *Monitor) takeRename(modTime time.Time) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.renames[:0]
	for _, at := range m.renames {
		if now.Sub(at) < m.cfg.Debounce {
			live = append(live, at)
		}
	}
	m.renames = live

	for i, at := range m.renames {
		if modTime.Before(at.Add(-moveSlack)) {
			m.renames = append(m.renames[:i], m.renames[i+1:]...)
			return true
		}
	}
	return false
}

// addDir watches a directory created after Start and schedules the files
// already inside it, which produce no events of their own.
func (m *Monitor) addDir(dir string) {
	if !m.cfg.Recursive || strings.HasPrefix(filepath.Base(dir), ".") {
		return
	}
	if err := m.watchTree(dir); err != nil {
		log.Warnw("monitor: failed to watch new directory", "dir", dir, "error", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			m.schedule(path, types.EventCreated)
		}
		return nil
	})
}

// schedule debounces events per path. The first event type in a burst wins so
// that create followed by write stays "created".
func (m *Monitor) schedule(path, eventType string) {
	if !m.Supported(path) || strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if p, ok := m.pending[path]; ok {
		p.timer.Reset(m.cfg.Debounce)
		return
	}
	m.pending[path] = &pendingEvent{
		eventType: eventType,
		timer:     time.AfterFunc(m.cfg.Debounce, func() { m.dispatch(path) }),
	}
}

func (m *Monitor) dispatch(path string) {
	m.mu.Lock()
	p, ok := m.pending[path]
	if !ok || m.stopped {
		m.mu.Unlock()
		return
	}
	delete(m.pending, path)
	m.dispatchWG.Add(1)
	m.mu.Unlock()
	defer m.dispatchWG.Done()

	select {
	case m.jobs <- job{path: path, eventType: p.eventType}:
	case <-m.stopCh:
	}
}

// scan processes the files present at startup with bounded concurrency.
func (m *Monitor) scan() error {
	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)

	err := filepath.WalkDir(m.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnw("monitor: cannot scan", "path", path, "error", err)
			return nil
		}
		select {
		case <-m.stopCh:
			return fs.SkipAll
		default:
		}
		if d.IsDir() {
			if path != m.cfg.Dir && (!m.cfg.Recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.Supported(path) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		g.Go(func() error {
			m.ProcessFile(m.runCtx, path, types.EventExisting)
			return nil
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}
