// Package ingest turns raw captures into durable stage entries.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smizuno/caplog/internal/events"
	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/stage"
)

// AudioPatterns lists the audio asset globs the voice stage accepts.
var AudioPatterns = []string{"*.ogg", "*.wav", "*.m4a", "*.mp3"}

// Ingestor writes new captures into their entry stage. Text captures land in
// incoming/ as classified records; voice captures land in voices/ as an
// audio asset plus a same-stem metadata companion.
type Ingestor struct {
	incoming *stage.Queue
	voices   *stage.Queue
	bus      *events.Bus
	logger   *logging.Logger
	clock    func() time.Time
}

// New creates an ingestor over the pipeline root.
func New(root string, bus *events.Bus, logger *logging.Logger) *Ingestor {
	return &Ingestor{
		incoming: stage.New(root, model.StageIncoming),
		voices:   stage.New(root, model.StageVoices),
		bus:      bus,
		logger:   logger,
		clock:    time.Now,
	}
}

// SetClock overrides the capture clock. Used by tests.
func (i *Ingestor) SetClock(fn func() time.Time) {
	i.clock = fn
}

// IngestText classifies text and enqueues it into incoming/. Returns the
// new record ID.
func (i *Ingestor) IngestText(text string, origin map[string]string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty capture text")
	}

	now := i.clock()
	kind := model.Classify(text)
	id := model.NewRecordID(kind, now)

	rec := &model.Record{
		Kind:      kind,
		Body:      text,
		CreatedAt: model.Now(now),
		Origin:    origin,
	}
	if err := i.incoming.PutRecord(id+".yaml", rec); err != nil {
		return "", fmt.Errorf("enqueue text capture: %w", err)
	}

	i.logger.Infof("ingested text id=%s kind=%s", id, kind)
	i.publish(id, kind, model.StageIncoming)
	return id, nil
}

// IngestVoice stores the audio asset and its metadata companion in voices/.
// The audio is written and synced first so the metadata never references a
// partially-written asset; the voice handler's settle delay covers the gap
// before the companion lands, and it synthesizes metadata if a crash left
// the asset alone.
func (i *Ingestor) IngestVoice(audio io.Reader, ext string, durationSec float64, origin map[string]string) (string, error) {
	ext = normalizeExt(ext)
	if !stage.MatchAny("x"+ext, AudioPatterns) {
		return "", fmt.Errorf("unsupported audio extension %q", ext)
	}

	now := i.clock()
	id := model.NewRecordID(model.KindVoice, now)
	audioName := id + ext

	if err := writeAudio(i.voices.Path(audioName), audio); err != nil {
		return "", fmt.Errorf("store audio asset: %w", err)
	}

	rec := &model.Record{
		Kind:        model.KindVoice,
		CreatedAt:   model.Now(now),
		Origin:      origin,
		AudioRef:    audioName,
		DurationSec: durationSec,
	}
	if err := i.voices.PutRecord(id+".yaml", rec); err != nil {
		// Remove the asset so a retried capture does not accumulate orphans.
		_ = os.Remove(i.voices.Path(audioName))
		return "", fmt.Errorf("enqueue voice capture: %w", err)
	}

	i.logger.Infof("ingested voice id=%s audio=%s duration=%.1fs", id, audioName, durationSec)
	i.publish(id, model.KindVoice, model.StageVoices)
	return id, nil
}

func (i *Ingestor) publish(id string, kind model.Kind, s model.Stage) {
	if i.bus == nil {
		return
	}
	i.bus.Publish(events.EventRecordIngested, map[string]any{
		"record_id": id,
		"kind":      string(kind),
		"stage":     string(s),
	})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// writeAudio copies the asset to path and fsyncs before returning, so the
// bytes are durable before the metadata commit references them.
func writeAudio(path string, audio io.Reader) error {
	// The voices queue is created by setup, but keep ingest usable on a
	// fresh root.
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, audio); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
