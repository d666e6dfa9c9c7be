package routing

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Store holds the active routing table. Reads are lock-free; a reload swaps
// the pointer, so in-flight requests keep the table they started with.
type Store struct {
	current atomic.Pointer[Table]
	logger  *zap.Logger
}

// NewStore creates a store serving table, which must already be valid
func NewStore(table *Table, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	s.current.Store(table)
	return s
}

// Current returns the active table
func (s *Store) Current() *Table {
	return s.current.Load()
}

// Swap validates table and makes it the active one. An invalid table is
// rejected and the previous one stays active.
func (s *Store) Swap(table *Table) error {
	if table == nil {
		return fmt.Errorf("nil routing table")
	}
	if err := table.Validate(); err != nil {
		return err
	}
	s.current.Store(table)
	return nil
}

// Watch reloads the table whenever the file at path changes, until ctx is
// done. reload builds the candidate table; failures are logged and the old
// table is kept.
func (s *Store) Watch(ctx context.Context, path string, reload func() (*Table, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors often replace files via rename, so watch the directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go s.watchLoop(ctx, watcher, abs, reload)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, reload func() (*Table, error)) {
	defer watcher.Close()

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDebounce)
			}

		case <-timer.C:
			s.reload(reload, path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("routing file watcher error", zap.Error(err))
		}
	}
}

func (s *Store) reload(reload func() (*Table, error), path string) {
	table, err := reload()
	if err == nil {
		err = s.Swap(table)
	}
	if err != nil {
		s.logger.Error("routing table reload rejected, keeping previous table",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("routing table reloaded",
		zap.String("path", path),
		zap.Int("models", len(table.Models)),
	)
}
