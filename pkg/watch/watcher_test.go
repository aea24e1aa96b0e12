package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/logger"
	"github.com/logflow/pmdash/pkg/session"
)

const header = "Case ID,Activity Name,Start Time,End Time\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, path string, onChange func(context.Context, string) error, onError func(string, error)) {
	t.Helper()
	w, err := NewWatcher(20 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	w.OnChange = onChange
	w.OnError = onError

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	writeFile(t, path, header+"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n")

	a := analysis.New(analysis.WithLogger(logger.New(&strings.Builder{}, logger.Off)))
	sess := session.New(a, eventlog.DefaultOptions())

	bundles := make(chan *analysis.Bundle, 4)
	startWatcher(t, path, Reload(sess, func(b *analysis.Bundle) { bundles <- b }), nil)

	writeFile(t, path, header+
		"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n"+
		"B,X,2024-01-01 00:00:00,2024-01-01 00:05:00\n")

	select {
	case b := <-bundles:
		if b.Log.Len() != 2 || b.Source != "log.csv" {
			t.Errorf("Unexpected bundle: %d rows from %s", b.Log.Len(), b.Source)
		}
		if cur, ok := sess.Current(); !ok || cur != b {
			t.Error("Session should hold the reloaded bundle")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.csv")
	writeFile(t, path, header)

	var mu sync.Mutex
	var calls int
	startWatcher(t, path, func(context.Context, string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}, nil)

	writeFile(t, filepath.Join(dir, "other.csv"), header+"x\n")
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("Expected no callbacks, got %d", calls)
	}
}

func TestWatcher_ReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	writeFile(t, path, header)

	a := analysis.New(analysis.WithLogger(logger.New(&strings.Builder{}, logger.Off)))
	sess := session.New(a, eventlog.DefaultOptions())

	errs := make(chan error, 4)
	startWatcher(t, path, Reload(sess, nil), func(_ string, err error) { errs <- err })

	writeFile(t, path, "Case ID,Activity Name\nA,X\n")

	select {
	case err := <-errs:
		var missing *eventlog.MissingColumnsError
		if !errors.As(err, &missing) {
			t.Errorf("Expected MissingColumnsError, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for error")
	}
	if _, ok := sess.Current(); ok {
		t.Error("A failed reload must clear the session")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	w, err := NewWatcher(0)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestWatcher_ChangeDuringReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	writeFile(t, path, header)

	w, err := NewWatcher(0)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}
	abs, _ := filepath.Abs(path)
	f := w.files[abs]
	ctx := context.Background()

	var calls int
	w.OnChange = func(ctx context.Context, p string) error {
		calls++
		if calls == 1 {
			// A save lands and its timer fires while this reload runs.
			writeFile(t, path, header+"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n")
			w.settle(ctx, p, f)
		}
		return nil
	}

	writeFile(t, path, header+"A,X,2024-01-01 00:00:00,2024-01-01 00:05:00\n\n")
	w.settle(ctx, abs, f)

	if calls != 2 {
		t.Errorf("Expected the second save to be reloaded, got %d calls", calls)
	}
}
