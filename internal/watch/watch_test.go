package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func startWatcher(t *testing.T, path string, trigger TriggerFunc) (*Watcher, context.CancelFunc, <-chan error) {
	t.Helper()
	w, err := New(path, 30*time.Millisecond, trigger, createTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return w, cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "player.log"), 0, nil, createTestLogger())
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing-dir", "player.log"), time.Second, nil, createTestLogger())
	assert.Error(t, err)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "player.log")
	require.NoError(t, os.WriteFile(path, []byte("start\n"), 0o644))

	var runs atomic.Int32
	fired := make(chan struct{}, 10)
	w, cancel, done := startWatcher(t, path, func(ctx context.Context) error {
		runs.Add(1)
		fired <- struct{}{}
		return nil
	})

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.WriteString("line\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never ran")
	}
	// Let any stray tick pass
	time.Sleep(100 * time.Millisecond)
	stop(t, cancel, done)

	assert.Equal(t, int32(1), runs.Load(), "a burst of writes runs processing once")
	stats := w.GetStats()
	assert.GreaterOrEqual(t, stats.Events, 1)
	assert.Equal(t, 1, stats.Triggered)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "player.log")

	var runs atomic.Int32
	w, cancel, done := startWatcher(t, path, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.log"), []byte("x\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	stop(t, cancel, done)

	assert.Equal(t, int32(0), runs.Load())
	assert.Equal(t, 0, w.GetStats().Events)
}

func TestWatcher_CountsTriggerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "player.log")
	fired := make(chan struct{}, 10)
	w, cancel, done := startWatcher(t, path, func(ctx context.Context) error {
		fired <- struct{}{}
		return errors.New("processing failed")
	})

	require.NoError(t, os.WriteFile(path, []byte("created\n"), 0o644))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger never ran")
	}
	stop(t, cancel, done)

	assert.GreaterOrEqual(t, w.GetStats().Errors, 1)
}
