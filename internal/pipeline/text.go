// Package pipeline implements the stage handlers that move records from
// capture to ready-for-formatting.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/recordio"
	"github.com/smizuno/caplog/internal/stage"
)

// TextHandler processes text records from incoming/: it stamps a processing
// timestamp, writes the updated record to processed/, and archives the
// original under a timestamp-qualified name. Both copies persist: processed/
// is the active queue entry, archive/ the immutable audit trail.
type TextHandler struct {
	root      string
	incoming  *stage.Queue
	processed *stage.Queue
	archive   *stage.Queue
	bus       *events.Bus
	logger    *logging.Logger
	clock     func() time.Time
}

// NewTextHandler builds the incoming-stage handler over the pipeline root.
func NewTextHandler(root string, bus *events.Bus, logger *logging.Logger) *TextHandler {
	return &TextHandler{
		root:      root,
		incoming:  stage.New(root, model.StageIncoming),
		processed: stage.New(root, model.StageProcessed),
		archive:   stage.NewAt(filepath.Join(root, string(model.StageArchive), "texts"), model.StageArchive),
		bus:       bus,
		logger:    logger,
		clock:     time.Now,
	}
}

// SetClock overrides the processing clock. Used by tests.
func (h *TextHandler) SetClock(fn func() time.Time) {
	h.clock = fn
}

// Handle processes one incoming record file. Re-invocation on an already
// archived source returns stage.ErrGone without side effects. The processed
// copy keeps the source name, so a crash between the processed write and the
// archive move is healed by re-running: the write is repeated idempotently
// and the move then completes.
func (h *TextHandler) Handle(path string) error {
	name := filepath.Base(path)

	rec, err := h.incoming.ReadRecord(name)
	if err != nil {
		if os.IsNotExist(err) {
			return stage.ErrGone
		}
		var parseErr *recordio.ParseError
		if errors.As(err, &parseErr) {
			return h.quarantine(name, path, err)
		}
		return fmt.Errorf("read incoming record %s: %w", name, err)
	}

	now := h.clock()
	rec.Processed = true
	rec.ProcessedAt = model.Now(now)
	rec.OriginalFile = name

	if err := h.processed.PutRecord(name, rec); err != nil {
		return fmt.Errorf("write processed record %s: %w", name, err)
	}

	archivedName, err := h.incoming.ArchiveTo(h.archive, name, now)
	if err != nil {
		if errors.Is(err, stage.ErrGone) {
			// A concurrent invocation won the archive move.
			return nil
		}
		return fmt.Errorf("archive record %s: %w", name, err)
	}

	h.logger.Infof("processed text record=%s kind=%s archived=%s", name, rec.Kind, archivedName)
	if h.bus != nil {
		h.bus.Publish(events.EventRecordProcessed, map[string]any{
			"record_id": stem(name),
			"kind":      string(rec.Kind),
			"stage":     string(model.StageProcessed),
		})
	}
	return nil
}

func (h *TextHandler) quarantine(name, path string, cause error) error {
	dst, qErr := recordio.Quarantine(h.root, path)
	if qErr != nil {
		if errors.Is(qErr, os.ErrNotExist) {
			return stage.ErrGone
		}
		return fmt.Errorf("quarantine %s: %w (parse cause: %v)", name, qErr, cause)
	}

	h.logger.Warnf("quarantined unparseable record=%s dst=%s cause=%v", name, dst, cause)
	if h.bus != nil {
		h.bus.Publish(events.EventRecordQuarantined, map[string]any{
			"record_id": stem(name),
			"stage":     string(model.StageIncoming),
			"reason":    cause.Error(),
		})
	}
	return nil
}

// stem strips the extension from a stage entry name.
func stem(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
