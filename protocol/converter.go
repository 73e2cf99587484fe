package protocol

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/creastat/dataflow/core"
)

// NewEndMessage creates a scope.end message
func NewEndMessage(operator string, port core.Port, sig core.EndSignal) *Message {
	return &Message{
		Type:     MessageScopeEnd,
		ID:       generateMessageID(),
		Operator: operator,
		Port:     &port,
		Payload: EndPayload{
			Tag:    sig.Tag,
			Weight: weightPayload(sig.Weight),
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewCancelMessage creates a scope.cancel message
func NewCancelMessage(operator string, port core.Port, tag core.Tag) *Message {
	return &Message{
		Type:      MessageScopeCancel,
		ID:        generateMessageID(),
		Operator:  operator,
		Port:      &port,
		Payload:   CancelPayload{Tag: tag},
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewCloseMessage creates a port.close message
func NewCloseMessage(operator string, port core.Port) *Message {
	return &Message{
		Type:      MessagePortClose,
		ID:        generateMessageID(),
		Operator:  operator,
		Port:      &port,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewStatsMessage creates an operator.stats message
func NewStatsMessage(operator string, fires uint64, busy time.Duration) *Message {
	return &Message{
		Type:     MessageOperatorStats,
		ID:       generateMessageID(),
		Operator: operator,
		Payload: StatsPayload{
			Fires:      fires,
			BusyMicros: busy.Microseconds(),
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

func weightPayload(w core.Weight) WeightPayload {
	if w.IsAll() {
		return WeightPayload{All: true}
	}
	return WeightPayload{Peers: w.Peers()}
}

// Weight converts the payload back into a core.Weight
func (p WeightPayload) Weight() core.Weight {
	if p.All {
		return core.AllWeight()
	}
	return core.NewWeight(p.Peers...)
}

var messageSeq atomic.Uint64

// generateMessageID generates a unique message ID
func generateMessageID() string {
	return "msg-" + time.Now().Format("20060102150405.000000") + "-" + strconv.FormatUint(messageSeq.Add(1), 10)
}
