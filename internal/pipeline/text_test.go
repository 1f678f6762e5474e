package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/recordio"
	"github.com/smizuno/caplog/internal/stage"
)

var processClock = func() time.Time {
	return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError, "pipeline")
}

func seedIncoming(t *testing.T, root, name string, rec *model.Record) string {
	t.Helper()
	q := stage.New(root, model.StageIncoming)
	require.NoError(t, q.PutRecord(name, rec))
	return q.Path(name)
}

func TestTextHandlerProcessesAndArchives(t *testing.T) {
	root := t.TempDir()
	h := NewTextHandler(root, nil, testLogger())
	h.SetClock(processClock)

	id := model.NewRecordID(model.KindTodo, time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC))
	path := seedIncoming(t, root, id+".yaml", &model.Record{
		Kind:      model.KindTodo,
		Body:      "TODO: buy milk",
		CreatedAt: "2025-03-14T09:26:53Z",
	})

	require.NoError(t, h.Handle(path))

	// Active copy in processed/ keeps the source name.
	processed, err := recordio.ReadRecord(filepath.Join(root, "processed", id+".yaml"))
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	assert.Equal(t, "2025-03-14T10:00:00Z", processed.ProcessedAt)
	assert.Equal(t, "TODO: buy milk", processed.Body)
	assert.Equal(t, id+".yaml", processed.OriginalFile)

	// Audit copy carries a timestamp-qualified name; source is gone.
	archived := filepath.Join(root, "archive", "texts", id+"_20250314_100000.yaml")
	_, err = os.Stat(archived)
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTextHandlerRerunIsNoOp(t *testing.T) {
	root := t.TempDir()
	h := NewTextHandler(root, nil, testLogger())
	h.SetClock(processClock)

	id := model.NewRecordID(model.KindNote, processClock())
	path := seedIncoming(t, root, id+".yaml", &model.Record{
		Kind: model.KindNote, Body: "x", CreatedAt: "2025-03-14T10:00:00Z",
	})

	require.NoError(t, h.Handle(path))
	assert.ErrorIs(t, h.Handle(path), stage.ErrGone)

	// Still exactly one processed copy and one archive copy.
	entries, err := os.ReadDir(filepath.Join(root, "processed"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	entries, err = os.ReadDir(filepath.Join(root, "archive", "texts"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTextHandlerQuarantinesUnparseable(t *testing.T) {
	root := t.TempDir()
	h := NewTextHandler(root, nil, testLogger())

	dir := filepath.Join(root, "incoming")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "note_20250314_092653_01ARZ3NDEKTSV4RRFFQ69G5FAV.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kind: [unclosed"), 0644))

	require.NoError(t, h.Handle(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Join(root, "quarantine"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), ".corrupt")
}

func TestTextHandlerMissingSourceIsGone(t *testing.T) {
	root := t.TempDir()
	h := NewTextHandler(root, nil, testLogger())

	err := h.Handle(filepath.Join(root, "incoming", "note_x.yaml"))
	assert.ErrorIs(t, err, stage.ErrGone)
}
