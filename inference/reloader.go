package inference

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Reloader serves predictions from the current Engine and swaps in a new one
// when the model or columns file changes on disk. A failed reload keeps the
// previous Engine.
type Reloader struct {
	modelPath   string
	columnsPath string
	current     atomic.Pointer[Engine]
	onReload    func(*Engine)
	debounce    time.Duration
	logger      *zap.Logger
}

// NewReloader loads the initial Engine; it fails the same way LoadEngine does.
func NewReloader(modelPath, columnsPath string, logger *zap.Logger, onReload func(*Engine)) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := LoadEngine(modelPath, columnsPath)
	if err != nil {
		return nil, err
	}
	r := &Reloader{
		modelPath:   modelPath,
		columnsPath: columnsPath,
		onReload:    onReload,
		debounce:    defaultReloadDebounce,
		logger:      logger,
	}
	r.current.Store(engine)
	return r, nil
}

func (r *Reloader) Engine() *Engine {
	return r.current.Load()
}

func (r *Reloader) Predict(symptoms []string) (*Prediction, error) {
	return r.current.Load().Predict(symptoms)
}

// Reload replaces the current Engine with a freshly loaded one.
func (r *Reloader) Reload() error {
	engine, err := LoadEngine(r.modelPath, r.columnsPath)
	if err != nil {
		return err
	}
	r.current.Store(engine)
	if r.onReload != nil {
		r.onReload(engine)
	}
	r.logger.Info("model reloaded",
		zap.String("model", r.modelPath),
		zap.Int("features", engine.Schema().Len()),
		zap.Int("classes", len(engine.classes)))
	return nil
}

// Watch blocks until ctx is done, reloading after bursts of file events
// settle for the debounce interval.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(r.modelPath):   {},
		filepath.Dir(r.columnsPath): {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !r.isArtifactEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("model reload failed, keeping previous model", zap.Error(err))
			}
		}
	}
}

func (r *Reloader) isArtifactEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == filepath.Clean(r.modelPath) || name == filepath.Clean(r.columnsPath)
}
