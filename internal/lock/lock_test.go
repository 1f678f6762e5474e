package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")
	fl := NewFileLock(path)

	require.NoError(t, fl.TryLock())

	// PID recorded for status reporting
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, fl.Unlock())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "lock file removed on unlock")
}

func TestFileLock_SecondHolderRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	first := NewFileLock(path)
	require.NoError(t, first.TryLock())
	defer first.Unlock()

	second := NewFileLock(path)
	assert.Error(t, second.TryLock())
}

func TestFileLock_UnlockWithoutLockIsNoop(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "daemon.lock"))
	assert.NoError(t, fl.Unlock())
}

func TestMutexMap_SerializesPerKey(t *testing.T) {
	m := NewMutexMap()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("incoming")
			counter++
			m.Unlock("incoming")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestMutexMap_IndependentKeys(t *testing.T) {
	m := NewMutexMap()

	m.Lock("incoming")
	done := make(chan struct{})
	go func() {
		m.Lock("voices") // must not block on the incoming lock
		m.Unlock("voices")
		close(done)
	}()
	<-done
	m.Unlock("incoming")
}
