package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/recordio"
)

func newTestIngestor(t *testing.T) (*Ingestor, string) {
	t.Helper()
	root := t.TempDir()
	logger := logging.New(io.Discard, logging.LevelError, "ingest")
	return New(root, nil, logger), root
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
}

func TestIngestTextClassifiesAndEnqueues(t *testing.T) {
	ing, root := newTestIngestor(t)
	ing.SetClock(fixedClock)

	id, err := ing.IngestText("TODO: buy milk", map[string]string{"chat": "42"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "todo_20250314_092653_"))
	assert.True(t, model.ValidateRecordID(id))

	rec, err := recordio.ReadRecord(filepath.Join(root, "incoming", id+".yaml"))
	require.NoError(t, err)
	assert.Equal(t, model.KindTodo, rec.Kind)
	assert.Equal(t, "TODO: buy milk", rec.Body)
	assert.Equal(t, "2025-03-14T09:26:53Z", rec.CreatedAt)
	assert.Equal(t, "42", rec.Origin["chat"])
	assert.False(t, rec.Processed)
}

func TestIngestTextRejectsEmpty(t *testing.T) {
	ing, _ := newTestIngestor(t)

	_, err := ing.IngestText("   ", nil)
	assert.Error(t, err)
}

func TestIngestTextPublishesEvent(t *testing.T) {
	root := t.TempDir()
	bus := events.NewBus(10)
	defer bus.Close()

	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventRecordIngested, func(ev events.Event) {
		received <- ev
	})

	ing := New(root, bus, logging.New(io.Discard, logging.LevelError, "ingest"))
	id, err := ing.IngestText("just a note", nil)
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, id, ev.Data["record_id"])
		assert.Equal(t, "note", ev.Data["kind"])
		assert.Equal(t, "incoming", ev.Data["stage"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected record_ingested event")
	}
}

func TestIngestVoiceWritesAudioThenMetadata(t *testing.T) {
	ing, root := newTestIngestor(t)
	ing.SetClock(fixedClock)

	id, err := ing.IngestVoice(strings.NewReader("OggS fake audio"), "ogg", 3.5, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "voice_20250314_092653_"))

	audio, err := os.ReadFile(filepath.Join(root, "voices", id+".ogg"))
	require.NoError(t, err)
	assert.Equal(t, "OggS fake audio", string(audio))

	rec, err := recordio.ReadRecord(filepath.Join(root, "voices", id+".yaml"))
	require.NoError(t, err)
	assert.Equal(t, model.KindVoice, rec.Kind)
	assert.Equal(t, id+".ogg", rec.AudioRef)
	assert.InDelta(t, 3.5, rec.DurationSec, 0.001)
	assert.Empty(t, rec.Transcription)
}

func TestIngestVoiceNormalizesExtension(t *testing.T) {
	ing, root := newTestIngestor(t)

	id, err := ing.IngestVoice(strings.NewReader("x"), ".M4A", 1, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "voices", id+".m4a"))
	assert.NoError(t, err)
}

func TestIngestVoiceRejectsUnknownExtension(t *testing.T) {
	ing, root := newTestIngestor(t)

	_, err := ing.IngestVoice(strings.NewReader("x"), ".flac", 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported audio extension")

	entries, _ := os.ReadDir(filepath.Join(root, "voices"))
	assert.Empty(t, entries)
}
