package bot

import "errors"

// The error taxonomy observed at the orchestrator boundary. In
// continuous mode none of these crash the process; each one ends the
// cycle with a logged result and the loop goes on.
var (
	// ErrTransient covers network and browser hiccups. The cycle is
	// abandoned without corrupting state and retried next time.
	ErrTransient = errors.New("bot: transient failure")
	// ErrGeneration marks a failed model invocation. No approval
	// request is created for the candidate.
	ErrGeneration = errors.New("bot: generation failed")
	// ErrBusy is returned by TryRunOnce when a cycle is already in
	// flight in this process.
	ErrBusy = errors.New("bot: a cycle is already running")
)
