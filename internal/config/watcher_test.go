package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/rubolt/internal/jit"
)

func TestWatcher_ReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubolt.toml")
	if err := os.WriteFile(path, []byte("[jit]\nhot_threshold = 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the event loop a moment to start before writing.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("[jit]\nhot_threshold = 99\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.JIT.HotThreshold != 99 {
			t.Errorf("expected reloaded threshold 99, got %d", cfg.JIT.HotThreshold)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresInvalidContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubolt.toml")
	if err := os.WriteFile(path, []byte("[jit]\nhot_threshold = 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 2)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("[jit\nbroken"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-changes:
		t.Errorf("invalid content should not trigger callback, got %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubolt.toml")
	if err := os.WriteFile(path, []byte("[jit]\nhot_threshold = 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changes := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write other file: %v", err)
	}

	select {
	case <-changes:
		t.Error("unrelated file should not trigger callback")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_ReloadUpdatesManagerTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rubolt.toml")
	if err := os.WriteFile(path, []byte("[jit]\nhot_threshold = 100\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	manager := jit.NewManager(jit.Config{
		Enabled:      true,
		HotThreshold: 100,
		DefaultTier:  jit.TierBaseline,
	})
	defer manager.Shutdown()

	if err := manager.Install("hot", jit.TierBaseline, []byte{0xC3}, 0); err != nil {
		t.Fatalf("install: %v", err)
	}

	applied := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		manager.SetHotThreshold(cfg.JIT.HotThreshold)
		manager.SetEnabled(cfg.JIT.Enabled)
		select {
		case applied <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("[jit]\nenabled = false\nhot_threshold = 7\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if got := manager.HotThreshold(); got != 7 {
		t.Errorf("expected reloaded threshold 7, got %d", got)
	}
	if manager.Enabled() {
		t.Error("expected promotion disabled after reload")
	}

	// Installed functions survive the tunable change.
	info, ok := manager.Get("hot")
	if !ok {
		t.Fatal("installed function dropped across reload")
	}
	if info.Tier != jit.TierBaseline || !info.Valid {
		t.Errorf("expected valid baseline function, got %+v", info)
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubolt.toml")
	w, err := NewWatcher(path, func(Config) {})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}

	if err := w.Run(context.Background()); err != ErrWatcherClosed {
		t.Errorf("expected ErrWatcherClosed, got %v", err)
	}
}
