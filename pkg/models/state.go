package models

// Progress carries per-cycle worker counters.
type Progress struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ProcessingState is the published state of one (profile, kind) worker as
// seen by one session. Timestamp is unix milliseconds; readers observe
// timestamps as monotonically non-decreasing per key.
type ProcessingState struct {
	Status    string   `json:"status"`
	Progress  Progress `json:"progress"`
	Timestamp int64    `json:"timestamp"`
}

// StateKey identifies a processing state within a session.
type StateKey struct {
	ProfileID string      `json:"profile_id"`
	Kind      MessageKind `json:"kind"`
}

// StateEntry is a keyed processing state, the unit of snapshots and deltas.
type StateEntry struct {
	ProfileID string          `json:"profile_id"`
	Kind      MessageKind     `json:"kind"`
	State     ProcessingState `json:"state"`
}

// Stream event types emitted by the realtime gateway.
const (
	EventInitialState  = "initialState"
	EventStateUpdate   = "stateUpdate"
	EventSessionUpdate = "sessionUpdate"
)

// StreamEvent is one newline-delimited JSON event on the update stream.
type StreamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
