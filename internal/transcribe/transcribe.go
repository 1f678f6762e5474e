// Package transcribe wraps the external speech-to-text engine and the audio
// conversion tool it depends on.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smizuno/caplog/internal/logging"
	"github.com/smizuno/caplog/internal/model"
)

// FailureStage says which external step failed, so the voice pipeline can
// log precisely and the failure can be retried or dead-lettered accordingly.
type FailureStage string

const (
	FailureConversion FailureStage = "conversion"
	FailureEngine     FailureStage = "engine"
	FailureNoOutput   FailureStage = "no_output"
	FailureTimeout    FailureStage = "timeout"
)

// Failure is the typed transcription failure. It is an ordinary error value;
// callers distinguish stages with errors.As.
type Failure struct {
	Stage  FailureStage
	Err    error
	Stderr string
}

func (f *Failure) Error() string {
	if f.Stderr != "" {
		return fmt.Sprintf("transcription %s failure: %v: %s", f.Stage, f.Err, f.Stderr)
	}
	return fmt.Sprintf("transcription %s failure: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// killGrace bounds how long Wait may linger after the deadline kill. The
// engine can leave a grandchild holding the stderr pipe open, and Wait
// blocks on that pipe until WaitDelay forces it closed.
const killGrace = 2 * time.Second

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// WhisperTranscriber shells out to a whisper.cpp-style binary, converting
// the input to mono fixed-rate WAV first when needed. Both external calls
// run under a deadline; an expired deadline surfaces as FailureTimeout.
type WhisperTranscriber struct {
	enginePath string
	modelPath  string
	ffmpegPath string
	sampleRate int
	timeout    time.Duration
	logger     *logging.Logger
}

// NewWhisperTranscriber validates prerequisites and constructs the adapter.
// A missing model file or engine binary is fatal here, before any watch loop
// starts: no work can proceed without them.
func NewWhisperTranscriber(cfg model.TranscriberConfig, logger *logging.Logger) (*WhisperTranscriber, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found at %s: %w", cfg.ModelPath, err)
	}
	if _, err := os.Stat(cfg.EnginePath); err != nil {
		if _, lookErr := exec.LookPath(cfg.EnginePath); lookErr != nil {
			return nil, fmt.Errorf("whisper engine not found at %s: %w", cfg.EnginePath, err)
		}
	}

	return &WhisperTranscriber{
		enginePath: cfg.EnginePath,
		modelPath:  cfg.ModelPath,
		ffmpegPath: cfg.FFmpegPath,
		sampleRate: cfg.SampleRateHz,
		timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		logger:     logger,
	}, nil
}

// SetTimeout overrides the external-call deadline (used by tests).
func (w *WhisperTranscriber) SetTimeout(d time.Duration) {
	w.timeout = d
}

// Transcribe runs the conversion (if needed) and the engine, returning the
// trimmed transcript. Temporary artifacts (converted WAV, raw engine output)
// are removed after a successful read and left in place on failure for
// diagnosis.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	wavPath := audioPath
	converted := false
	if strings.ToLower(filepath.Ext(audioPath)) != ".wav" {
		var err error
		wavPath, err = w.convertToWAV(ctx, audioPath)
		if err != nil {
			return "", err
		}
		converted = true
	}

	outStem := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	txtPath := outStem + ".txt"

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.enginePath,
		"-m", w.modelPath,
		"-f", wavPath,
		"-otxt",
		"-of", outStem,
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	w.logger.Infof("running engine file=%s", filepath.Base(wavPath))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Failure{Stage: FailureTimeout, Err: ctx.Err()}
		}
		return "", &Failure{Stage: FailureEngine, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	data, err := os.ReadFile(txtPath)
	if err != nil {
		return "", &Failure{Stage: FailureNoOutput, Err: err}
	}
	text := strings.TrimSpace(string(data))

	// Success: clean up temporary artifacts
	_ = os.Remove(txtPath)
	if converted {
		_ = os.Remove(wavPath)
	}

	w.logger.Infof("transcription complete file=%s chars=%d", filepath.Base(audioPath), len(text))
	return text, nil
}

// convertToWAV resamples the input to single-channel WAV at the engine's
// expected sample rate. The artifact gets a dot-prefixed name so stage
// watchers skip it.
func (w *WhisperTranscriber) convertToWAV(ctx context.Context, src string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(filepath.Dir(src), "."+base+".wav")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.ffmpegPath,
		"-i", src,
		"-ar", strconv.Itoa(w.sampleRate),
		"-ac", "1",
		"-y",
		dst,
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	w.logger.Infof("converting file=%s rate=%d", filepath.Base(src), w.sampleRate)
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Failure{Stage: FailureTimeout, Err: ctx.Err()}
		}
		return "", &Failure{Stage: FailureConversion, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}
	return dst, nil
}
