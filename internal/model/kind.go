// Package model defines the data structures for caplog's records, stages, and configuration.
package model

import "strings"

// Kind is the fixed content category of a capture.
type Kind string

const (
	KindTodo  Kind = "todo"
	KindIdea  Kind = "idea"
	KindLink  Kind = "link"
	KindNote  Kind = "note"
	KindVoice Kind = "voice"
	// KindVoiceTranscription is produced by the voice pipeline once an audio
	// capture has been transcribed.
	KindVoiceTranscription Kind = "voice_transcription"
)

var knownKinds = map[Kind]bool{
	KindTodo:               true,
	KindIdea:               true,
	KindLink:               true,
	KindNote:               true,
	KindVoice:              true,
	KindVoiceTranscription: true,
}

// KnownKinds returns the fixed kind enumeration in routing order.
func KnownKinds() []Kind {
	return []Kind{KindTodo, KindIdea, KindLink, KindNote, KindVoice, KindVoiceTranscription}
}

// Valid reports whether k is part of the fixed enumeration.
func (k Kind) Valid() bool {
	return knownKinds[k]
}

// ideaGlyph marks an idea capture regardless of prefix.
const ideaGlyph = "\U0001F4A1" // 💡

// Classify maps free-form capture text to a Kind using the fixed
// prefix/keyword policy. Prefixes are case-sensitive.
func Classify(text string) Kind {
	switch {
	case strings.HasPrefix(text, "TODO:") || strings.HasPrefix(text, "Task:"):
		return KindTodo
	case strings.HasPrefix(text, "IDEA:") || strings.Contains(text, ideaGlyph):
		return KindIdea
	case strings.HasPrefix(text, "http") || strings.Contains(text, "www."):
		return KindLink
	default:
		return KindNote
	}
}
