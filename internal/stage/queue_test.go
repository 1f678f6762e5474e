package stage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smizuno/caplog/internal/model"
)

func testRecord() *model.Record {
	return &model.Record{
		Kind:      model.KindNote,
		Body:      "remember the milk",
		CreatedAt: model.Now(time.Now()),
	}
}

func TestQueue_PutAndList(t *testing.T) {
	root := t.TempDir()
	q := New(root, model.StageIncoming)

	require.NoError(t, q.PutRecord("note_b.yaml", testRecord()))
	require.NoError(t, q.PutRecord("note_a.yaml", testRecord()))

	names, err := q.List("*.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"note_a.yaml", "note_b.yaml"}, names, "lexical order")

	assert.Equal(t, 2, q.Count("*.yaml"))
	assert.Equal(t, 0, q.Count("*.ogg"))
}

func TestQueue_List_MissingDirIsEmpty(t *testing.T) {
	q := New(t.TempDir(), model.StageProcessed)
	names, err := q.List("*.yaml")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestQueue_MoveTo_AtomicTransition(t *testing.T) {
	root := t.TempDir()
	incoming := New(root, model.StageIncoming)
	processed := New(root, model.StageProcessed)

	require.NoError(t, incoming.PutRecord("note_1.yaml", testRecord()))
	require.NoError(t, incoming.MoveTo(processed, "note_1.yaml", "note_1.yaml"))

	// Exactly one physical copy, in the destination
	assert.Equal(t, 0, incoming.Count())
	assert.Equal(t, 1, processed.Count())
}

func TestQueue_MoveTo_RejectsInvalidTransition(t *testing.T) {
	root := t.TempDir()
	incoming := New(root, model.StageIncoming)
	ready := New(root, model.StageReady)

	require.NoError(t, incoming.PutRecord("note_1.yaml", testRecord()))
	err := incoming.MoveTo(ready, "note_1.yaml", "note_1.yaml")
	require.Error(t, err)

	// Record stays where it was
	assert.Equal(t, 1, incoming.Count())
}

func TestQueue_MoveTo_GoneSourceIsErrGone(t *testing.T) {
	root := t.TempDir()
	incoming := New(root, model.StageIncoming)
	processed := New(root, model.StageProcessed)

	err := incoming.MoveTo(processed, "never_existed.yaml", "never_existed.yaml")
	assert.ErrorIs(t, err, ErrGone)
}

func TestQueue_ArchiveTo_TimestampQualifiedName(t *testing.T) {
	root := t.TempDir()
	incoming := New(root, model.StageIncoming)
	archive := NewAt(filepath.Join(root, "archive", "texts"), model.StageArchive)

	require.NoError(t, incoming.PutRecord("note_1.yaml", testRecord()))

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	name, err := incoming.ArchiveTo(archive, "note_1.yaml", now)
	require.NoError(t, err)
	assert.Equal(t, "note_1_20250314_092653.yaml", name)

	_, statErr := os.Stat(archive.Path(name))
	assert.NoError(t, statErr)
}

func TestMoveFile_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := MoveFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, ErrGone)
}

func TestCopyFile_PreservesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	dst := filepath.Join(dir, "dst.md")
	require.NoError(t, os.WriteFile(src, []byte("# heading\nbody\n"), 0644))

	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "# heading\nbody\n", string(got))

	// Copy never removes the source
	_, statErr := os.Stat(src)
	assert.NoError(t, statErr)
}

func TestTimestampedName(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "voice_x_20250102_030405.ogg", TimestampedName("voice_x.ogg", now))
	assert.Equal(t, "plain_20250102_030405", TimestampedName("plain", now))
}

func TestMatchAny(t *testing.T) {
	assert.True(t, MatchAny("a.yaml", []string{"*.yaml"}))
	assert.True(t, MatchAny("a.ogg", []string{"*.yaml", "*.ogg"}))
	assert.False(t, MatchAny("a.txt", []string{"*.yaml", "*.ogg"}))
	assert.True(t, MatchAny("anything", nil))
}
