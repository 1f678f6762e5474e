package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smizuno/caplog/internal/lock"
	"github.com/smizuno/caplog/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, filepath.Base(path))
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError, "watch")
}

func TestDrainExistingProcessesInOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml", "skip.txt", ".caplog-tmp-1"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	rec := &recorder{}
	w := New(dir, []string{"*.yaml"}, rec.handle, lock.NewMutexMap(), testLogger())
	w.DrainExisting()

	assert.Equal(t, []string{"a.yaml", "b.yaml"}, rec.seen())
}

func TestDrainExistingMissingDir(t *testing.T) {
	rec := &recorder{}
	w := New(filepath.Join(t.TempDir(), "absent"), []string{"*.yaml"}, rec.handle, lock.NewMutexMap(), testLogger())

	w.DrainExisting()
	assert.Empty(t, rec.seen())
}

func TestDrainContinuesPastHandlerError(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	var calls []string
	handler := func(path string) error {
		calls = append(calls, filepath.Base(path))
		return assert.AnError
	}

	w := New(dir, []string{"*.yaml"}, handler, lock.NewMutexMap(), testLogger())
	w.DrainExisting()

	assert.Equal(t, []string{"a.yaml", "b.yaml"}, calls)
}

func TestDrainContainsHandlerPanic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("x"), 0644))

	w := New(dir, []string{"*.yaml"}, func(string) error { panic("boom") }, lock.NewMutexMap(), testLogger())

	assert.NotPanics(t, func() { w.DrainExisting() })
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := New(dir, []string{"*.yaml"}, rec.handle, lock.NewMutexMap(), testLogger(),
		WithDebounce(10*time.Millisecond), WithScanInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Let the watcher register before creating the file.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.yaml"), []byte("x"), 0644))

	assert.Eventually(t, func() bool {
		for _, p := range rec.seen() {
			if p == "new.yaml" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunDrainsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.yaml"), []byte("x"), 0644))

	rec := &recorder{}
	w := New(dir, []string{"*.yaml"}, rec.handle, lock.NewMutexMap(), testLogger(),
		WithScanInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"old.yaml"}, rec.seen())
}
