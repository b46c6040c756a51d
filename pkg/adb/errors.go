package adb

import "github.com/pkg/errors"

// Semantic errors raised when an expected marker or pattern is absent
// from the bridge tool's output. Execution-time degradation (timeouts,
// garbled output) is never reported here; it is absorbed into the
// returned output text.
var (
	// ErrConnection indicates the connect command did not confirm a
	// device connection.
	ErrConnection = errors.New("device connection not confirmed")

	// ErrWindowNotFound indicates no focused window token was present in
	// the window-manager dump.
	ErrWindowNotFound = errors.New("current window focus not found in dump")

	// ErrApplicationError indicates the focused window is an application
	// error dialog.
	ErrApplicationError = errors.New("application error")

	// ErrApplicationNotResponding indicates the focused window is an ANR
	// dialog.
	ErrApplicationNotResponding = errors.New("application not responding")

	// ErrWakeupFailed indicates the screen power state was not
	// recognized as on after a wakeup attempt.
	ErrWakeupFailed = errors.New("screen state not recognized after wakeup")

	// ErrUnknownKey indicates a key name with no code mapping.
	ErrUnknownKey = errors.New("key has no code mapping")
)
