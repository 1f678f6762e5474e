package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/ingest"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/mcp"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/pipeline"
	"github.com/smizuno/caplog/internal/stage"
	"github.com/smizuno/caplog/internal/vault"
)

// TestTextCaptureFlow walks one idea capture through every stage: ingest into
// incoming/, text pipeline to processed/, formatting to ready/, publishing
// into the vault's Ideas folder with the ready copy archived.
func TestTextCaptureFlow(t *testing.T) {
	root := t.TempDir()
	vaultDir := t.TempDir()
	logger := logging.New(io.Discard, logging.LevelError, "test")
	bus := events.NewBus(0)

	captureTime := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	processTime := captureTime.Add(time.Minute)

	ing := ingest.New(root, bus, logger)
	ing.SetClock(func() time.Time { return captureTime })

	id, err := ing.IngestText("IDEA: build a notes bridge", map[string]string{"channel": "test"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "idea_20250314_092653_"))

	incoming := stage.New(root, model.StageIncoming)
	rec, err := incoming.ReadRecord(id + ".yaml")
	require.NoError(t, err)
	assert.Equal(t, model.KindIdea, rec.Kind)

	th := pipeline.NewTextHandler(root, bus, logger)
	th.SetClock(func() time.Time { return processTime })
	require.NoError(t, th.Handle(incoming.Path(id+".yaml")))

	processed := stage.New(root, model.StageProcessed)
	rec, err = processed.ReadRecord(id + ".yaml")
	require.NoError(t, err)
	assert.True(t, rec.Processed)
	processedAt, err := time.Parse(model.TimestampLayout, rec.ProcessedAt)
	require.NoError(t, err)
	assert.False(t, processedAt.Before(captureTime))

	h := mcp.NewHandlers(root, logger)
	h.SetClock(func() time.Time { return processTime })
	res, err := h.HandleFormat(context.Background(), mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{Arguments: map[string]any{"record_id": id}},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	ready := stage.New(root, model.StageReady)
	doc, err := os.ReadFile(ready.Path(id + ".md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "type: idea")

	pub := vault.NewPublisher(root, model.VaultConfig{Path: vaultDir, CapturesFolder: "Captures"}, bus, logger)
	pub.SetClock(func() time.Time { return processTime })
	require.NoError(t, pub.Handle(ready.Path(id+".md")))

	published := filepath.Join(vaultDir, "Captures", "Ideas", id+".md")
	_, err = os.Stat(published)
	require.NoError(t, err, "document should land in the Ideas folder")

	_, err = os.Stat(ready.Path(id + ".md"))
	assert.True(t, os.IsNotExist(err), "ready copy should be archived away")

	archived := filepath.Join(root, "archive", "ready", id+"_20250314_092753.md")
	_, err = os.Stat(archived)
	assert.NoError(t, err, "ready copy should be in archive/ready")
}
