// Package notify provides desktop notification support.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier delivers a short user-facing alert. Implementations must be safe
// to call from pipeline workers; a failed delivery is reported as an error,
// never a panic.
type Notifier interface {
	Notify(title, message string) error
}

// Noop discards notifications. Used when notifications are disabled.
type Noop struct{}

func (Noop) Notify(string, string) error { return nil }

// Desktop sends a native desktop notification: osascript on macOS,
// notify-send elsewhere.
type Desktop struct{}

func (Desktop) Notify(title, message string) error {
	if runtime.GOOS == "darwin" {
		return sendOSAScript(title, message)
	}
	return sendNotifySend(title, message)
}

func sendOSAScript(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func sendNotifySend(title, message string) error {
	cmd := exec.Command("notify-send", title, message)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify-send: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
