package projection

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWatcher(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func TestWatcher_SyncsOnStartAndOnJournalWrite(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(journal, []byte("header\n"), 0o600))

	var calls atomic.Int32
	w := NewWatcher(journal, time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	w.debounce = 10 * time.Millisecond
	stop := runWatcher(t, w)
	defer stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("record\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "events.jsonl")

	var calls atomic.Int32
	w := NewWatcher(journal, time.Hour, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	w.debounce = 10 * time.Millisecond
	stop := runWatcher(t, w)
	defer stop()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "read.db"), []byte("x"), 0o600))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_SweepsWithoutPath(t *testing.T) {
	var calls atomic.Int32
	w := NewWatcher("", 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	stop := runWatcher(t, w)
	defer stop()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "events.jsonl"), time.Hour,
		func(context.Context) error { return nil }, nil)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
