package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sussurro/sussurro/internal/config"
)

const watcherValidYAML = `
log_level: info
bindings:
  primary:
    key: f9
    enabled: true
engine: whisper-server
engines:
  whisper-server:
    url: http://127.0.0.1:8080
`

const watcherUpdatedYAML = `
log_level: debug
bindings:
  primary:
    key: f9
    enabled: true
engine: whisper-server
engines:
  whisper-server:
    url: http://127.0.0.1:8080
`

const watcherInvalidYAML = `
log_level: bananas
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func startWatcher(t *testing.T, path string, onChange func(old, new *config.Config)) *config.Watcher {
	t.Helper()
	w, err := config.NewWatcher(path, onChange, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherValidYAML)

	w := startWatcher(t, path, nil)
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/sussurro.yaml", nil); err == nil {
		t.Fatal("NewWatcher() on a missing file succeeded, want error")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherValidYAML)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	changed := make(chan struct{}, 1)

	w := startWatcher(t, path, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	// The poll compares mtimes, so make sure the rewrite lands on a
	// different timestamp even on coarse filesystems.
	time.Sleep(50 * time.Millisecond)
	writeConfigFile(t, path, watcherUpdatedYAML)
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called within 2s")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld == nil || gotNew == nil {
		t.Fatal("onChange received nil configs")
	}
	if gotOld.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want info", gotOld.LogLevel)
	}
	if gotNew.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", gotNew.LogLevel)
	}
	if cur := w.Current(); cur.LogLevel != config.LogDebug {
		t.Errorf("Current().LogLevel = %q, want debug", cur.LogLevel)
	}
}

func TestWatcherInvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherValidYAML)

	var mu sync.Mutex
	calls := 0
	w := startWatcher(t, path, func(old, new *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	time.Sleep(50 * time.Millisecond)
	writeConfigFile(t, path, watcherInvalidYAML)
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 0 {
		t.Errorf("onChange fired %d times for an invalid config, want 0", got)
	}
	if cur := w.Current(); cur.LogLevel != config.LogInfo {
		t.Errorf("Current().LogLevel = %q, want the old value info", cur.LogLevel)
	}
}

func TestWatcherTouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherValidYAML)

	var mu sync.Mutex
	calls := 0
	w := startWatcher(t, path, func(old, new *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	_ = w

	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("onChange fired %d times for a touch-only change, want 0", calls)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, watcherValidYAML)

	w := startWatcher(t, path, nil)
	w.Stop()
	w.Stop()
}
