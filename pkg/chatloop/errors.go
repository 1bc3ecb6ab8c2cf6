package chatloop

import "errors"

// Sentinel errors for the Streaming Tool Loop's failure kinds (spec.md
// §4.I/§7), grounded on the teacher's ElicitationError pattern of typed,
// wrapped sentinels rather than ad hoc string errors.
var (
	// ErrSessionBusy is returned when a turn is requested on a session
	// that already has a turn in flight (spec.md §5: one turn per session
	// at a time, enforced by sessionLock).
	ErrSessionBusy = errors.New("chatloop: session has a turn already in progress")

	// ErrSessionNotFound means the session ID does not exist in the store.
	ErrSessionNotFound = errors.New("chatloop: session not found")

	// ErrMaxRoundsExceeded means the model kept requesting tool calls past
	// MaxRounds without producing a final text response.
	ErrMaxRoundsExceeded = errors.New("chatloop: max tool-call rounds exceeded without a final response")

	// ErrCancelled is returned when a turn is cancelled via its task
	// registry entry (client disconnect, explicit stop).
	ErrCancelled = errors.New("chatloop: turn cancelled")

	// ErrNoModelConfigured means the session's project has no active
	// model configuration to stream against.
	ErrNoModelConfigured = errors.New("chatloop: no model configuration available")
)
