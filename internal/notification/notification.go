// Package notification provides cross-platform desktop notifications.
// It uses the beeep library to send notifications on macOS, Linux, and Windows.
package notification

import (
	"github.com/gen2brain/beeep"

	"github.com/ScriptedAlchemy/corral/internal/logger"
)

// Send sends a desktop notification with the given title and message.
// On macOS, it uses terminal-notifier or AppleScript.
// On Linux, it uses D-Bus or notify-send.
// On Windows, it uses the Windows Runtime COM API.
func Send(title, message string) error {
	logger.Debug("Notification: sending title=%q message=%q", title, message)
	// Use empty string for icon - beeep handles platform defaults
	err := beeep.Notify(title, message, "")
	if err != nil {
		logger.Warn("Notification: failed to send: %v", err)
	}
	return err
}

// SessionCompleted announces that a session finished a unit of work and is
// waiting to be viewed.
func SessionCompleted(sessionName string) error {
	return Send("Corral", sessionName+" is ready")
}

// SessionFailed announces that a session's agent hit an error.
func SessionFailed(sessionName string) error {
	return Send("Corral", sessionName+" hit an error")
}
