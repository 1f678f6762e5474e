package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	unsub := bus.Subscribe(EventRecordIngested, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventRecordIngested, map[string]any{
		"record_id": "idea_20250314_092653_01HZX",
		"stage":     "incoming",
	})

	// Wait for async delivery
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, EventRecordIngested, received[0].Type)
	assert.Equal(t, "incoming", received[0].Data["stage"])
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	seen := map[EventType]int{}

	unsub := bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventRecordIngested, nil)
	bus.Publish(EventRecordPublished, nil)
	bus.Publish(EventTranscriptionFailed, nil)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen[EventRecordIngested])
	assert.Equal(t, 1, seen[EventRecordPublished])
	assert.Equal(t, 1, seen[EventTranscriptionFailed])
}

func TestBus_PanickingSubscriberDoesNotDisruptOthers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	defer bus.Subscribe(EventRecordProcessed, func(Event) { panic("bad subscriber") })()
	defer bus.Subscribe(EventRecordProcessed, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})()

	bus.Publish(EventRecordProcessed, nil)
	bus.Publish(EventRecordProcessed, nil)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestAuditLogger_RecordEvent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewAuditLogger(logPath, DefaultMaxLogSize)
	require.NoError(t, err)
	defer logger.Close()

	err = logger.Record(Event{
		Type:      EventRecordProcessed,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"record_id": "todo_20250314_092653_01HZX",
			"stage":     "processed",
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "record_processed", entry.EventType)
	assert.Equal(t, "todo_20250314_092653_01HZX", entry.RecordID)
	assert.Equal(t, "processed", entry.Stage)
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	// Small cap so the second entry forces rotation
	logger, err := NewAuditLogger(logPath, 120)
	require.NoError(t, err)
	defer logger.Close()

	entry := &LogEntry{
		Timestamp: time.Now().UTC(),
		EventType: "record_ingested",
		RecordID:  "note_20250314_092653_01HZXAAAAAAAAAAAAAAAAAAAAA",
	}
	require.NoError(t, logger.WriteEntry(entry))
	require.NoError(t, logger.WriteEntry(entry))

	rotated, err := os.ReadDir(filepath.Join(dir, "rotated"))
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	// Current log holds only the post-rotation entry
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}
