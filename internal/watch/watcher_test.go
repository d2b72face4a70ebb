package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"dvrflow/internal/testsupport"
	"dvrflow/internal/watch"
)

const settle = 50 * time.Millisecond

func startWatcher(t *testing.T, dir string, opts ...watch.Option) (<-chan string, func()) {
	t.Helper()
	seen := make(chan string, 16)
	w := watch.New(dir, settle, func(_ context.Context, path string) {
		seen <- path
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
	return seen, stop
}

func expectPath(t *testing.T, seen <-chan string, want string) {
	t.Helper()
	select {
	case got := <-seen:
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func expectQuiet(t *testing.T, seen <-chan string, wait time.Duration) {
	t.Helper()
	select {
	case got := <-seen:
		t.Fatalf("unexpected dispatch of %s", got)
	case <-time.After(wait):
	}
}

func TestWatcherDispatchesSettledArrivals(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	existing := filepath.Join(dir, "Show - Old.TiVo")
	testsupport.WriteFile(t, existing, 16)

	seen, stop := startWatcher(t, dir, watch.WithExtensions(".TiVo"))
	defer stop()

	expectPath(t, seen, existing)

	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), 16)
	testsupport.WriteFile(t, filepath.Join(dir, ".hidden.TiVo"), 16)
	testsupport.WriteFile(t, filepath.Join(dir, "Show - New.dvrflow-partial.TiVo"), 16)
	arrival := filepath.Join(dir, "Show - New.TiVo")
	testsupport.WriteFile(t, arrival, 16)

	expectPath(t, seen, arrival)
	expectQuiet(t, seen, 4*settle)
}

func TestWatcherWaitsForGrowthToStop(t *testing.T) {
	dir := t.TempDir()
	seen, stop := startWatcher(t, dir)
	defer stop()

	path := filepath.Join(dir, "growing.mpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.Now().Add(6 * settle)
	for time.Now().Before(deadline) {
		if _, err := f.Write([]byte("data")); err != nil {
			t.Fatalf("write: %v", err)
		}
		select {
		case got := <-seen:
			t.Fatalf("dispatched %s while it was still growing", got)
		case <-time.After(settle / 5):
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectPath(t, seen, path)
}

func TestWatcherDoesNotRedispatchUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Show.TiVo")
	testsupport.WriteFile(t, path, 8)

	seen, stop := startWatcher(t, dir)
	defer stop()
	expectPath(t, seen, path)

	now := time.Now()
	if err := os.Chtimes(path, now, now.Add(-time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	expectQuiet(t, seen, 4*settle)

	if err := os.Chtimes(path, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	expectPath(t, seen, path)
}

func TestWatcherRejectsMissingDirectory(t *testing.T) {
	w := watch.New(filepath.Join(t.TempDir(), "missing"), settle, func(context.Context, string) {})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
