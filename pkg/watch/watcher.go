// Package watch re-analyzes event log files when they change on disk.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/logflow/pmdash/pkg/analysis"
)

// DefaultDebounce coalesces bursts of writes from editors and exporters.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reruns OnChange when a watched log file settles after a save.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration

	mu    sync.Mutex
	files map[string]*watched

	// OnChange runs after a watched file settles with new content.
	OnChange func(ctx context.Context, path string) error
	// OnError receives watch and callback failures.
	OnError func(path string, err error)
}

// watched is the last seen stat of one file.
type watched struct {
	modTime time.Time
	size    int64
	busy    bool
	pending bool
	timer   *time.Timer
}

// NewWatcher returns an idle watcher. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{fs: fs, debounce: debounce, files: make(map[string]*watched)}, nil
}

// Watch adds path. The file must exist.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	w.mu.Lock()
	w.files[abs] = &watched{modTime: fi.ModTime(), size: fi.Size()}
	w.mu.Unlock()

	// The parent directory, so replace-by-rename saves are seen.
	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	return nil
}

// Run dispatches file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.fail("", err)
		}
	}
}

// schedule restarts the debounce timer of name if it is watched.
func (w *Watcher) schedule(ctx context.Context, name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.files[abs]
	if !ok {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(w.debounce, func() { w.settle(ctx, abs, f) })
}

// settle runs OnChange once per distinct (modtime, size). A change that
// lands while OnChange is running is settled again once it returns.
func (w *Watcher) settle(ctx context.Context, path string, f *watched) {
	if ctx.Err() != nil {
		return
	}
	fi, err := os.Stat(path)
	if err != nil {
		w.fail(path, err)
		return
	}

	w.mu.Lock()
	if f.busy {
		f.pending = true
		w.mu.Unlock()
		return
	}
	if fi.ModTime().Equal(f.modTime) && fi.Size() == f.size {
		w.mu.Unlock()
		return
	}
	f.busy = true
	f.modTime, f.size = fi.ModTime(), fi.Size()
	w.mu.Unlock()

	if w.OnChange != nil {
		if err := w.OnChange(ctx, path); err != nil {
			w.fail(path, err)
		}
	}

	w.mu.Lock()
	f.busy = false
	again := f.pending
	f.pending = false
	w.mu.Unlock()
	if again {
		w.settle(ctx, path, f)
	}
}

func (w *Watcher) fail(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for _, f := range w.files {
		if f.timer != nil {
			f.timer.Stop()
		}
	}
	w.mu.Unlock()
	w.fs.Close()
}

// Close releases the watcher. Run returns once its event channels close.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Loader replaces the current analysis with new content.
type Loader interface {
	Load(ctx context.Context, name string, content []byte) (*analysis.Bundle, error)
}

// Reload returns an OnChange callback that reads the whole file and hands
// it to l, like a fresh upload. done, if set, receives each new bundle.
func Reload(l Loader, done func(*analysis.Bundle)) func(context.Context, string) error {
	return func(ctx context.Context, path string) error {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b, err := l.Load(ctx, filepath.Base(path), content)
		if err != nil {
			return err
		}
		if done != nil {
			done(b)
		}
		return nil
	}
}
