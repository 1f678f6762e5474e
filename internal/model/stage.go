package model

import "fmt"

// Stage names a directory acting as a durable queue for one lifecycle phase.
// Membership in a stage directory is the sole source of truth for a record's
// position; the transition table below is enforced on every physical move.
type Stage string

const (
	StageIncoming   Stage = "incoming"
	StageVoices     Stage = "voices"
	StageProcessed  Stage = "processed"
	StageReady      Stage = "ready"
	StageArchive    Stage = "archive"
	StageDeadLetter Stage = "dead_letters"
	StageVault      Stage = "vault"
)

// validStageTransitions maps each stage to its allowed successors. The
// physical rename remains the persistence mechanism for the transition.
var validStageTransitions = map[Stage]map[Stage]bool{
	StageIncoming: {
		StageProcessed: true,
		StageArchive:   true,
	},
	StageVoices: {
		StageProcessed:  true,
		StageArchive:    true,
		StageDeadLetter: true,
	},
	StageProcessed: {
		StageReady:   true,
		StageArchive: true,
	},
	StageReady: {
		StageVault:   true,
		StageArchive: true,
	},
}

var terminalStages = map[Stage]bool{
	StageArchive:    true,
	StageDeadLetter: true,
	StageVault:      true,
}

// IsTerminal reports whether records in s never move again.
func IsTerminal(s Stage) bool {
	return terminalStages[s]
}

// ValidateStageTransition checks the transition table.
func ValidateStageTransition(from, to Stage) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal stage %q", from)
	}
	allowed, ok := validStageTransitions[from]
	if !ok {
		return fmt.Errorf("unknown stage %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid stage transition: %q to %q", from, to)
	}
	return nil
}
