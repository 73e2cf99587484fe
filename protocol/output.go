package protocol

import "github.com/creastat/dataflow/core"

// MessageType defines the control messages mirrored to remote observers
type MessageType string

const (
	// Scope lifecycle
	MessageScopeEnd    MessageType = "scope.end"    // Scope completed on an output
	MessageScopeCancel MessageType = "scope.cancel" // Consumer gave up on a scope

	// Port lifecycle
	MessagePortClose MessageType = "port.close" // Output closed

	// Operator statistics
	MessageOperatorStats MessageType = "operator.stats"
)

// Message represents a control message sent to an observer
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`       // Generated message ID
	Operator  string      `json:"operator"` // Operator name and index
	Port      *core.Port  `json:"port,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// WeightPayload describes the producers that completed a scope
type WeightPayload struct {
	All   bool     `json:"all,omitempty"`
	Peers []uint32 `json:"peers,omitempty"`
}

// EndPayload for scope.end
type EndPayload struct {
	Tag    core.Tag      `json:"tag"`
	Weight WeightPayload `json:"weight"`
}

// CancelPayload for scope.cancel
type CancelPayload struct {
	Tag core.Tag `json:"tag"`
}

// StatsPayload for operator.stats
type StatsPayload struct {
	Fires      uint64 `json:"fires"`
	BusyMicros int64  `json:"busyMicros"`
}
