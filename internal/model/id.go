package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record IDs double as filenames (plus an extension), so they must stay
// unique even when several captures land within the same second. The wall
// timestamp keeps lexical order close to chronological; the ULID suffix
// supplies monotonic sub-second entropy.
//
// Format: {kind}_{YYYYMMDD_HHMMSS}_{ULID}

// IDTimestampLayout is the second-resolution timestamp embedded in IDs.
const IDTimestampLayout = "20060102_150405"

var idRegex = regexp.MustCompile(
	`^(todo|idea|link|note|voice_transcription|voice)_[0-9]{8}_[0-9]{6}_[0-9A-HJKMNP-TV-Z]{26}$`)

// NewRecordID generates a collision-free identifier for a capture of the
// given kind taken at ts.
func NewRecordID(kind Kind, ts time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, ts.UTC().Format(IDTimestampLayout), ulid.Make())
}

// ValidateRecordID reports whether id matches the record ID format.
func ValidateRecordID(id string) bool {
	return idRegex.MatchString(id)
}

// ParseRecordKind extracts the kind prefix from a record ID or a filename
// derived from one. Longer kind names are matched first so that
// voice_transcription is never mistaken for voice.
func ParseRecordKind(id string) (Kind, bool) {
	for _, k := range []Kind{KindVoiceTranscription, KindTodo, KindIdea, KindLink, KindNote, KindVoice} {
		if strings.HasPrefix(id, string(k)+"_") {
			return k, true
		}
	}
	return "", false
}

// ParseRecordTimestamp extracts the embedded capture timestamp from a
// record ID.
func ParseRecordTimestamp(id string) (time.Time, error) {
	if !ValidateRecordID(id) {
		return time.Time{}, fmt.Errorf("invalid record ID format: %s", id)
	}
	// Timestamp sits between the ULID suffix and the kind prefix:
	// strip "_{26-char ULID}" then take the trailing 15 characters.
	trimmed := id[:len(id)-27]
	tsStr := trimmed[len(trimmed)-len(IDTimestampLayout):]
	ts, err := time.ParseInLocation(IDTimestampLayout, tsStr, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp from ID %s: %w", id, err)
	}
	return ts, nil
}
