package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/smizuno/caplog/internal/formatter"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/stage"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	root   string
	logger *logging.Logger
	clock  func() time.Time
}

// NewHandlers creates a new Handlers instance over the pipeline root.
func NewHandlers(root string, logger *logging.Logger) *Handlers {
	return &Handlers{root: root, logger: logger, clock: time.Now}
}

// SetClock overrides the wall clock. Used by tests.
func (h *Handlers) SetClock(fn func() time.Time) {
	h.clock = fn
}

// PendingRequest represents the arguments for capture_pending.
type PendingRequest struct {
	Kind string `json:"kind,omitempty"`
}

// FormatRequest represents the arguments for capture_format.
type FormatRequest struct {
	RecordID string `json:"record_id"`
	Analysis string `json:"analysis,omitempty"`
}

// pendingItem is one entry in the capture_pending listing.
type pendingItem struct {
	RecordID  string `json:"record_id"`
	Kind      string `json:"kind"`
	Stage     string `json:"stage"`
	CreatedAt string `json:"created_at"`
	Text      string `json:"text,omitempty"`
}

// pendingLimit bounds the capture_pending listing to the most recent items.
const pendingLimit = 10

// HandlePending lists records awaiting formatting, newest first.
func (h *Handlers) HandlePending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PendingRequest](req)
	if err != nil {
		return errorResult("INVALID_REQUEST", err.Error()), nil
	}

	var items []pendingItem
	for _, s := range []model.Stage{model.StageIncoming, model.StageProcessed} {
		q := stage.New(h.root, s)
		names, err := q.List("*.yaml")
		if err != nil {
			return errorResult("INTERNAL", err.Error()), nil
		}
		for _, name := range names {
			rec, err := q.ReadRecord(name)
			if err != nil {
				h.logger.Warnf("pending: skip unreadable record=%s error=%v", name, err)
				continue
			}
			if input.Kind != "" && input.Kind != "all" && string(rec.Kind) != input.Kind {
				continue
			}
			text := rec.Body
			if rec.Transcription != "" {
				text = rec.Transcription
			}
			items = append(items, pendingItem{
				RecordID:  stem(name),
				Kind:      string(rec.Kind),
				Stage:     string(s),
				CreatedAt: rec.CreatedAt,
				Text:      model.Preview(text),
			})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	count := len(items)
	if len(items) > pendingLimit {
		items = items[:pendingLimit]
	}

	return successResult(map[string]any{"count": count, "items": items})
}

// HandleFormat renders one processed record into a ready document and
// archives the record. Re-invocation after the archive move reports
// NOT_FOUND rather than producing a second document.
func (h *Handlers) HandleFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FormatRequest](req)
	if err != nil {
		return errorResult("INVALID_REQUEST", err.Error()), nil
	}
	if input.RecordID == "" {
		return errorResult("INVALID_REQUEST", "record_id is required"), nil
	}
	if !model.ValidateRecordID(input.RecordID) {
		return errorResult("INVALID_REQUEST", fmt.Sprintf("malformed record_id %q", input.RecordID)), nil
	}

	processed := stage.New(h.root, model.StageProcessed)
	rec, err := processed.ReadRecord(input.RecordID + ".yaml")
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult("NOT_FOUND", fmt.Sprintf("no processed record %s", input.RecordID)), nil
		}
		return errorResult("INTERNAL", err.Error()), nil
	}

	body := rec.Body
	if rec.Transcription != "" {
		body = rec.Transcription
	}

	now := h.clock()
	doc := formatter.Render(rec.Kind, body, formatter.Context{Analysis: input.Analysis, Now: now})
	docName := formatter.DocumentName(input.RecordID)

	ready := stage.New(h.root, model.StageReady)
	if err := writeDoc(ready.Dir(), docName, doc); err != nil {
		return errorResult("INTERNAL", fmt.Sprintf("write ready document: %v", err)), nil
	}

	archive := stage.NewAt(filepath.Join(h.root, string(model.StageArchive), "texts"), model.StageArchive)
	if _, err := processed.ArchiveTo(archive, input.RecordID+".yaml", now); err != nil && err != stage.ErrGone {
		return errorResult("INTERNAL", fmt.Sprintf("archive record: %v", err)), nil
	}

	h.logger.Infof("formatted record=%s doc=%s", input.RecordID, docName)
	return successResult(map[string]any{
		"status":  "success",
		"file":    filepath.Join(ready.Dir(), docName),
		"preview": model.Preview(doc),
	})
}

// dailySummary carries per-kind counts for one calendar day.
type dailySummary struct {
	Date       string `json:"date"`
	Todos      int    `json:"todos"`
	Ideas      int    `json:"ideas"`
	VoiceNotes int    `json:"voice_notes"`
	Notes      int    `json:"notes"`
	Links      int    `json:"links"`
	Total      int    `json:"total"`
}

// HandleDailySummary tallies today's captures from the active stages.
func (h *Handlers) HandleDailySummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	today := h.clock().UTC().Format("2006-01-02")
	summary := dailySummary{Date: today}

	for _, s := range []model.Stage{model.StageIncoming, model.StageProcessed} {
		q := stage.New(h.root, s)
		names, err := q.List("*.yaml")
		if err != nil {
			return errorResult("INTERNAL", err.Error()), nil
		}
		for _, name := range names {
			rec, err := q.ReadRecord(name)
			if err != nil {
				continue
			}
			created := rec.CreatedTime()
			if created.IsZero() || created.UTC().Format("2006-01-02") != today {
				continue
			}
			switch rec.Kind {
			case model.KindTodo:
				summary.Todos++
			case model.KindIdea:
				summary.Ideas++
			case model.KindVoice, model.KindVoiceTranscription:
				summary.VoiceNotes++
			case model.KindLink:
				summary.Links++
			default:
				summary.Notes++
			}
		}
	}

	summary.Total = summary.Todos + summary.Ideas + summary.VoiceNotes + summary.Notes + summary.Links
	return successResult(summary)
}

// writeDoc writes a ready document atomically: temp file, fsync, rename.
// The dot prefix keeps the ready watcher from seeing the partial write.
func writeDoc(dir, name, content string) error {
	tmp, err := os.CreateTemp(dir, ".caplog-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}

func stem(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

// errorResult creates an MCP error result with a structured payload.
func errorResult(code, message string) *mcp.CallToolResult {
	payload := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}
