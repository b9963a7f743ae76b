package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T, root string, ignores []string, debounce time.Duration) *Watcher {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(root, ignores, debounce, logger)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcherDetectsWrites(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, nil, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	testFile := filepath.Join(tmpDir, "notes.md")
	if err := os.WriteFile(testFile, []byte("updated"), 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Error("timeout waiting for change notification")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, nil, 300*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	testFile := filepath.Join(tmpDir, "burst.txt")

	// Rapid writes should fold into a single notification
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte{byte('0' + i)}, 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	changeCount := 0
	timeout := time.After(2 * time.Second)

	for {
		select {
		case <-w.Changes():
			changeCount++
			if changeCount > 1 {
				t.Error("expected only one notification due to debouncing")
				return
			}
		case <-timeout:
			if changeCount != 1 {
				t.Errorf("expected 1 notification, got %d", changeCount)
			}
			return
		}
	}
}

func TestWatcherIgnoresOutputDir(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "out")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatalf("failed to create output dir: %v", err)
	}

	w := newTestWatcher(t, tmpDir, []string{outDir}, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	packFile := filepath.Join(outDir, "evidence-pack-0.json")
	if err := os.WriteFile(packFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to write pack file: %v", err)
	}

	select {
	case <-w.Changes():
		t.Error("writes to the ignored output directory should not notify")
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcherSkipsHiddenFiles(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, nil, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	swapFile := filepath.Join(tmpDir, ".notes.md.swp")
	if err := os.WriteFile(swapFile, []byte("scratch"), 0600); err != nil {
		t.Fatalf("failed to write swap file: %v", err)
	}

	select {
	case <-w.Changes():
		t.Error("hidden file writes should not notify")
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcherTracksNewDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, nil, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	subDir := filepath.Join(tmpDir, "src")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}

	// Drain the notification from the mkdir itself
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for mkdir notification")
	}

	nested := filepath.Join(subDir, "main.go")
	if err := os.WriteFile(nested, []byte("package main"), 0600); err != nil {
		t.Fatalf("failed to write nested file: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Error("timeout waiting for nested file notification")
	}
}
