// Package formatter renders records into vault-ready markdown documents.
//
// Render is pure: no filesystem access, no clock reads. The same inputs
// always produce the same document, which keeps re-formatting idempotent.
package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/smizuno/caplog/internal/model"
)

// Context carries the render-time inputs that are not part of the record
// body.
type Context struct {
	// Analysis is optional assistant commentary folded into the document's
	// context section.
	Analysis string
	// Now is the render wall time stamped into the document.
	Now time.Time
}

// DocumentName derives the ready document filename from a record stem. The
// stem already starts with "{kind}_", which the vault publisher relies on
// for routing, and stays stable across re-formatting.
func DocumentName(stem string) string {
	return stem + ".md"
}

// Render maps (kind, body, context) to a markdown document with YAML
// front-matter. It is total over the kind enumeration: unrecognized kinds
// fall through to the generic note template rather than failing.
func Render(kind model.Kind, body string, ctx Context) string {
	switch kind {
	case model.KindTodo:
		return renderTodo(body, ctx)
	case model.KindIdea:
		return renderIdea(body, ctx)
	case model.KindLink:
		return renderLink(body, ctx)
	case model.KindVoice, model.KindVoiceTranscription:
		return renderVoice(body, ctx)
	default:
		return renderNote(body, ctx)
	}
}

func renderTodo(body string, ctx Context) string {
	return fmt.Sprintf(`---
type: todo
created: %s
status: open
tags: [capture, todo]
---

# TODO: %s

## Task Description
%s

## Context & Analysis
%s

## Action Steps
- [ ] Review and break down task
- [ ] Set priority and deadline
- [ ] Add to appropriate project

---
*Captured at %s*
`, stamp(ctx.Now), title(body), body, ctx.Analysis, human(ctx.Now))
}

func renderIdea(body string, ctx Context) string {
	return fmt.Sprintf(`---
type: idea
created: %s
tags: [capture, idea]
---

# 💡 Idea: %s

## Description
%s

## Initial Thoughts
%s

## Next Steps
- [ ] Evaluate feasibility
- [ ] Research similar concepts
- [ ] Create action plan if viable

---
*Captured at %s*
`, stamp(ctx.Now), title(body), body, ctx.Analysis, human(ctx.Now))
}

func renderLink(body string, ctx Context) string {
	return fmt.Sprintf(`---
type: link
created: %s
tags: [capture, link]
---

# Link - %s

## URL
%s

## Why Saved
%s

## Follow-up
- [ ] Read or review
- [ ] File under a topic
- [ ] Extract key takeaways

---
*Captured at %s*
`, stamp(ctx.Now), human(ctx.Now), body, ctx.Analysis, human(ctx.Now))
}

func renderVoice(body string, ctx Context) string {
	return fmt.Sprintf(`---
type: voice-note
created: %s
tags: [capture, voice, transcription]
---

# Voice Note - %s

## Transcription
%s

## Key Points
%s

## Follow-up Actions
- [ ] Review and extract action items
- [ ] Link to relevant projects
- [ ] Archive or process further

---
*Voice message transcribed*
`, stamp(ctx.Now), human(ctx.Now), body, ctx.Analysis)
}

func renderNote(body string, ctx Context) string {
	return fmt.Sprintf(`---
type: note
created: %s
tags: [capture, quick-capture]
---

# Quick Note - %s

%s

## Additional Context
%s

---
*Captured*
`, stamp(ctx.Now), human(ctx.Now), body, ctx.Analysis)
}

// titleLimit bounds the heading snippet taken from the body.
const titleLimit = 50

// title flattens the body's first line into a heading snippet.
func title(body string) string {
	line := body
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return line
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func human(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}
