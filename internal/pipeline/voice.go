package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/notify"
	"github.com/smizuno/caplog/internal/recordio"
	"github.com/smizuno/caplog/internal/stage"
	"github.com/smizuno/caplog/internal/transcribe"
)

// VoiceHandler processes audio assets from voices/: it transcribes the
// audio, writes a voice_transcription record to processed/, and archives the
// audio with its annotated metadata companion. Failed attempts are counted
// in the metadata; a pair that exhausts its attempt budget moves to
// dead_letters/ instead of clogging the stage forever.
type VoiceHandler struct {
	root        string
	voices      *stage.Queue
	processed   *stage.Queue
	archive     *stage.Queue
	deadLetters *stage.Queue
	transcriber transcribe.Transcriber
	notifier    notify.Notifier
	bus         *events.Bus
	logger      *logging.Logger
	settle      time.Duration
	maxAttempts int
	clock       func() time.Time
}

// NewVoiceHandler builds the voices-stage handler over the pipeline root.
func NewVoiceHandler(root string, tr transcribe.Transcriber, cfg model.PipelineConfig, notifier notify.Notifier, bus *events.Bus, logger *logging.Logger) *VoiceHandler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &VoiceHandler{
		root:        root,
		voices:      stage.New(root, model.StageVoices),
		processed:   stage.New(root, model.StageProcessed),
		archive:     stage.NewAt(filepath.Join(root, string(model.StageArchive), "voices"), model.StageArchive),
		deadLetters: stage.New(root, model.StageDeadLetter),
		transcriber: tr,
		notifier:    notifier,
		bus:         bus,
		logger:      logger,
		settle:      time.Duration(cfg.SettleDelayMs) * time.Millisecond,
		maxAttempts: cfg.VoiceMaxAttempts,
		clock:       time.Now,
	}
}

// SetClock overrides the processing clock. Used by tests.
func (h *VoiceHandler) SetClock(fn func() time.Time) {
	h.clock = fn
}

// SetSettleDelay overrides the settle delay. Used by tests.
func (h *VoiceHandler) SetSettleDelay(d time.Duration) {
	h.settle = d
}

// Handle processes one audio asset. The settle delay guards against
// partially-flushed writes from the capture side; it is a fixed delay, not a
// completeness check, which is acceptable for local-disk writes.
func (h *VoiceHandler) Handle(path string) error {
	audioName := filepath.Base(path)
	recStem := stem(audioName)
	metaName := recStem + ".yaml"

	if h.settle > 0 {
		time.Sleep(h.settle)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return stage.ErrGone
	}

	meta := h.loadMetadata(audioName, metaName)

	text, err := h.transcriber.Transcribe(context.Background(), path)
	if err != nil {
		return h.recordFailure(audioName, metaName, meta, err)
	}

	now := h.clock()
	out := &model.Record{
		Kind:          model.KindVoiceTranscription,
		Transcription: text,
		CreatedAt:     meta.CreatedAt,
		Origin:        meta.Origin,
		AudioRef:      audioName,
		DurationSec:   meta.DurationSec,
		Processed:     true,
		ProcessedAt:   model.Now(now),
		OriginalFile:  audioName,
	}
	if err := h.processed.PutRecord(recStem+".yaml", out); err != nil {
		return fmt.Errorf("write transcription record %s: %w", recStem, err)
	}

	archivedName, err := h.voices.ArchiveTo(h.archive, audioName, now)
	if err != nil && !errors.Is(err, stage.ErrGone) {
		return fmt.Errorf("archive audio %s: %w", audioName, err)
	}

	// Annotate the metadata with the archive outcome before storing it
	// alongside the audio.
	meta.Processed = true
	meta.ProcessedAt = model.Now(now)
	meta.TranscriptionPreview = model.Preview(text)
	meta.ArchivedTo = archivedName
	meta.ArchivedAt = model.Now(now)
	if err := h.voices.PutRecord(metaName, meta); err != nil {
		return fmt.Errorf("annotate metadata %s: %w", metaName, err)
	}
	if _, err := h.voices.ArchiveTo(h.archive, metaName, now); err != nil && !errors.Is(err, stage.ErrGone) {
		return fmt.Errorf("archive metadata %s: %w", metaName, err)
	}

	h.logger.Infof("transcribed record=%s chars=%d archived=%s", recStem, len(text), archivedName)
	if h.bus != nil {
		h.bus.Publish(events.EventRecordProcessed, map[string]any{
			"record_id": recStem,
			"kind":      string(model.KindVoiceTranscription),
			"stage":     string(model.StageProcessed),
		})
	}
	return nil
}

// loadMetadata returns the companion metadata record, synthesizing a minimal
// one when the companion is absent or unreadable. An unreadable companion is
// quarantined first so the synthesized replacement can be persisted.
func (h *VoiceHandler) loadMetadata(audioName, metaName string) *model.Record {
	meta, err := h.voices.ReadRecord(metaName)
	if err == nil {
		return meta
	}

	if !os.IsNotExist(err) {
		var parseErr *recordio.ParseError
		if errors.As(err, &parseErr) {
			if dst, qErr := recordio.Quarantine(h.root, h.voices.Path(metaName)); qErr == nil {
				h.logger.Warnf("quarantined unparseable voice metadata=%s dst=%s", metaName, dst)
			}
		} else {
			h.logger.Warnf("read voice metadata=%s error=%v", metaName, err)
		}
	}

	created := h.clock()
	if ts, tsErr := model.ParseRecordTimestamp(stem(audioName)); tsErr == nil {
		created = ts
	}
	return &model.Record{
		Kind:      model.KindVoice,
		CreatedAt: model.Now(created),
		AudioRef:  audioName,
	}
}

// recordFailure persists the attempt count and either leaves the pair in
// place for the next drain or dead-letters it once the budget is spent.
func (h *VoiceHandler) recordFailure(audioName, metaName string, meta *model.Record, cause error) error {
	meta.Attempts++
	if err := h.voices.PutRecord(metaName, meta); err != nil {
		h.logger.Errorf("persist attempt count metadata=%s error=%v", metaName, err)
	}

	failureStage := "unknown"
	var failure *transcribe.Failure
	if errors.As(cause, &failure) {
		failureStage = string(failure.Stage)
	}
	h.logger.Errorf("transcription failed record=%s attempt=%d/%d stage=%s error=%v",
		stem(audioName), meta.Attempts, h.maxAttempts, failureStage, cause)

	if h.bus != nil {
		h.bus.Publish(events.EventTranscriptionFailed, map[string]any{
			"record_id":     stem(audioName),
			"stage":         string(model.StageVoices),
			"failure_stage": failureStage,
			"attempt":       meta.Attempts,
		})
	}

	if meta.Attempts < h.maxAttempts {
		return fmt.Errorf("transcribe %s: %w", audioName, cause)
	}

	if err := h.voices.MoveTo(h.deadLetters, audioName, audioName); err != nil && !errors.Is(err, stage.ErrGone) {
		return fmt.Errorf("dead-letter audio %s: %w", audioName, err)
	}
	if err := h.voices.MoveTo(h.deadLetters, metaName, metaName); err != nil && !errors.Is(err, stage.ErrGone) {
		return fmt.Errorf("dead-letter metadata %s: %w", metaName, err)
	}

	h.logger.Errorf("dead-lettered record=%s after %d attempts", stem(audioName), meta.Attempts)
	if h.bus != nil {
		h.bus.Publish(events.EventRecordDeadLettered, map[string]any{
			"record_id": stem(audioName),
			"stage":     string(model.StageDeadLetter),
			"attempts":  meta.Attempts,
		})
	}
	if err := h.notifier.Notify("caplog", fmt.Sprintf("voice capture %s failed %d times and was dead-lettered", stem(audioName), meta.Attempts)); err != nil {
		h.logger.Warnf("notify error=%v", err)
	}
	return nil
}
