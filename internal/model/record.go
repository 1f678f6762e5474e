package model

import "time"

// TimestampLayout is the wall-clock format used inside record fields.
const TimestampLayout = time.RFC3339

// Record is the unit of work flowing through the pipeline. It is stored as a
// YAML document whose filename doubles as its identifier. Stage-specific
// fields are additive only: once written, a field is never removed, since
// downstream stages and the audit trail may depend on it.
type Record struct {
	Kind          Kind   `yaml:"kind"`
	Body          string `yaml:"body,omitempty"`
	Transcription string `yaml:"transcription,omitempty"`
	CreatedAt     string `yaml:"created_at"`

	// Origin is opaque capture-source metadata (user/session identifiers).
	// The pipeline never interprets it, only passes it through.
	Origin map[string]string `yaml:"origin,omitempty"`

	// AudioRef names the companion audio asset for voice records prior to
	// transcription (same stem, audio extension).
	AudioRef    string  `yaml:"audio_ref,omitempty"`
	DurationSec float64 `yaml:"duration_sec,omitempty"`

	Processed    bool   `yaml:"processed"`
	ProcessedAt  string `yaml:"processed_at,omitempty"`
	OriginalFile string `yaml:"original_file,omitempty"`

	// Attempts counts transcription attempts for voice metadata; the voice
	// pipeline dead-letters the pair once the attempt budget is exhausted.
	Attempts int `yaml:"attempts,omitempty"`

	TranscriptionPreview string `yaml:"transcription_preview,omitempty"`
	ArchivedTo           string `yaml:"archived_to,omitempty"`
	ArchivedAt           string `yaml:"archived_at,omitempty"`
}

// Now formats t for storage in record fields.
func Now(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CreatedTime parses the record's capture time. The zero time is returned
// for records whose created_at is missing or malformed.
func (r *Record) CreatedTime() time.Time {
	t, err := time.Parse(TimestampLayout, r.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// previewLimit bounds the transcript preview stored in archived metadata.
const previewLimit = 100

// Preview returns the first previewLimit characters of s, with an ellipsis
// when truncated.
func Preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "..."
}
