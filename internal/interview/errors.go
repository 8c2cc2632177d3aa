package interview

import "errors"

// Sentinel errors surfaced by the orchestrator. Transport code maps
// these to client-facing error codes with errors.Is().
var (
	// ErrTurnInFlight indicates a generation turn is already running for
	// the session.
	ErrTurnInFlight = errors.New("turn already in flight")

	// ErrSessionCompleted indicates the interview has reached its
	// terminal state and accepts no further turns.
	ErrSessionCompleted = errors.New("session completed")

	// ErrMalformedToolArgs indicates the model's accumulated tool
	// arguments did not parse as the expected structure.
	ErrMalformedToolArgs = errors.New("malformed tool arguments")

	// ErrUnknownTool indicates the model invoked a tool that was never
	// offered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrNoPendingToolCall indicates a client submitted input for a tool
	// the assistant has not requested.
	ErrNoPendingToolCall = errors.New("no pending tool call")

	// ErrTranslationFailed indicates translation failed after retry. The
	// client should be told to resend the message.
	ErrTranslationFailed = errors.New("translation failed")
)
