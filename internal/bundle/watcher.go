package bundle

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-applies a bundle file whenever it changes.
type Watcher struct {
	path     string
	store    rules.Store
	debounce time.Duration
	logger   *zap.Logger
	onApply  func(Report, error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must be quiet before it is applied.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOnApply registers a callback run after every apply.
func WithOnApply(fn func(Report, error)) WatcherOption {
	return func(w *Watcher) { w.onApply = fn }
}

// NewWatcher creates a watcher for the bundle at path.
func NewWatcher(path string, store rules.Store, opts ...WatcherOption) (*Watcher, error) {
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle path: %w", err)
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches the bundle's directory until ctx is done. Editors often
// replace a file instead of writing it in place, so the directory is
// watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("watching rule bundle", zap.String("path", w.path))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				pending = time.After(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("bundle watcher error", zap.Error(err))

		case <-pending:
			pending = nil
			w.apply(ctx)
		}
	}
}

func (w *Watcher) apply(ctx context.Context) {
	report, err := ApplyFile(ctx, w.store, w.path)
	switch {
	case err != nil:
		w.logger.Error("bundle apply failed", zap.String("path", w.path), zap.Error(err))
	case !report.OK():
		w.logger.Warn("bundle applied with rejected entries",
			zap.String("path", w.path),
			zap.Int("apps", report.Apps),
			zap.Int("senders", report.Senders),
			zap.Any("failures", report.Failures))
	default:
		w.logger.Info("bundle applied",
			zap.String("path", w.path),
			zap.Int("apps", report.Apps),
			zap.Int("senders", report.Senders),
			zap.Int("mutes", report.Mutes))
	}
	if w.onApply != nil {
		w.onApply(report, err)
	}
}
