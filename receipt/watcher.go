package receipt

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Source supplies the receipt a full job prints.
type Source interface {
	Current() *Receipt
}

// Static is a Source that never changes.
type Static struct {
	Receipt *Receipt
}

func (s Static) Current() *Receipt {
	return s.Receipt
}

// Watcher keeps the receipt template at a path loaded, reloading it when the
// file changes. A template that fails to load or validate is logged and the
// previous one stays in use.
type Watcher struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Receipt
}

// NewWatcher loads path once. The initial load must succeed.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receipt path: %w", err)
	}

	r, err := Load(abs)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:    abs,
		logger:  logger.With().Str("component", "receipt").Str("path", abs).Logger(),
		current: r,
	}, nil
}

// Current returns the latest valid receipt.
func (w *Watcher) Current() *Receipt {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads the template again.
func (w *Watcher) Reload() error {
	r, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = r
	w.mu.Unlock()
	return nil
}

// Run watches the template's directory until ctx is done. The directory is
// watched rather than the file so editors that save by rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info().Msg("watching receipt template")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn().Err(err).Msg("receipt reload failed, keeping previous template")
				continue
			}
			w.logger.Info().Msg("receipt template reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("fsnotify error")
		}
	}
}
