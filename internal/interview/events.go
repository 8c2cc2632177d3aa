package interview

import (
	"encoding/json"

	"github.com/boganlabs/bogan/internal/conversation"
)

// EventKind identifies a turn event on the transport stream.
type EventKind string

const (
	// EventText carries one text delta (or, for translated sessions, the
	// full translated reply).
	EventText EventKind = "text"

	// EventTool signals a client-interactive tool request. The turn is
	// suspended until the client answers it.
	EventTool EventKind = "tool"

	// EventAssessmentLoading tells the client the terminal tool fired
	// and retrieval plus synthesis are running.
	EventAssessmentLoading EventKind = "assessment_loading"

	// EventDone terminates a successful turn.
	EventDone EventKind = "done"
)

// ToolEvent describes a client-interactive tool request.
type ToolEvent struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// DoneMeta is the terminal event's metadata.
type DoneMeta struct {
	AwaitingInput bool                    `json:"awaiting_input"`
	Diagnosed     bool                    `json:"diagnosed"`
	Assessment    string                  `json:"assessment,omitempty"`
	Citations     []conversation.Citation `json:"citations,omitempty"`
}

// Event is one transport event. Exactly one payload field matching
// Kind is set.
type Event struct {
	Kind EventKind  `json:"kind"`
	Text string     `json:"text,omitempty"`
	Tool *ToolEvent `json:"tool,omitempty"`
	Done *DoneMeta  `json:"done,omitempty"`
}

// EmitFunc delivers one event to the transport. Returning an error
// signals the client is gone and the turn should stop forwarding.
type EmitFunc func(Event) error
