package stages

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/dataflow/protocol"
	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"
)

// WebSocketMirrorConfig holds WebSocket mirror configuration
type WebSocketMirrorConfig struct {
	Output core.Output
	Conn   *websocket.Conn
	// Operator names the operator owning the output in mirrored messages
	Operator string
	Port     core.Port
	Logger   telemetry.Logger
}

// WebSocketMirror decorates an output and reports its scope ends, cancels
// and close to a WebSocket observer. Data still flows through the wrapped
// output only. A failing connection is logged and never fails the operator.
type WebSocketMirror struct {
	config WebSocketMirrorConfig
	logger telemetry.Logger
}

// NewWebSocketMirror creates a new WebSocket mirror
func NewWebSocketMirror(config WebSocketMirrorConfig) *WebSocketMirror {
	return &WebSocketMirror{
		config: config,
		logger: config.Logger.WithModule("websocket_mirror"),
	}
}

// TryUnblock implements core.Output
func (m *WebSocketMirror) TryUnblock() error {
	return m.config.Output.TryUnblock()
}

// Blocks implements core.Output
func (m *WebSocketMirror) Blocks() []core.BlockState {
	return m.config.Output.Blocks()
}

// NotifyEnd implements core.Output
func (m *WebSocketMirror) NotifyEnd(sig core.EndSignal) error {
	if err := m.config.Output.NotifyEnd(sig); err != nil {
		return err
	}
	m.publish(protocol.NewEndMessage(m.config.Operator, m.config.Port, sig))
	return nil
}

// Cancel implements core.Output
func (m *WebSocketMirror) Cancel(tag core.Tag) error {
	if err := m.config.Output.Cancel(tag); err != nil {
		return err
	}
	m.publish(protocol.NewCancelMessage(m.config.Operator, m.config.Port, tag))
	return nil
}

// Flush implements core.Output
func (m *WebSocketMirror) Flush() error {
	return m.config.Output.Flush()
}

// Close implements core.Output
func (m *WebSocketMirror) Close() error {
	if err := m.config.Output.Close(); err != nil {
		return err
	}
	m.publish(protocol.NewCloseMessage(m.config.Operator, m.config.Port))
	return nil
}

// Push implements core.BatchWriter when the wrapped output does
func (m *WebSocketMirror) Push(b core.Batch) error {
	w, ok := m.config.Output.(core.BatchWriter)
	if !ok {
		return core.Fatal(fmt.Errorf("output %v cannot be written", m.config.Port))
	}
	return w.Push(b)
}

// HasCapacity implements core.CapacityReporter. An output that does not
// report capacity is assumed to have some.
func (m *WebSocketMirror) HasCapacity() bool {
	if cr, ok := m.config.Output.(core.CapacityReporter); ok {
		return cr.HasCapacity()
	}
	return true
}

// PublishStats reports operator statistics to the observer
func (m *WebSocketMirror) PublishStats(fires uint64, busy time.Duration) {
	m.publish(protocol.NewStatsMessage(m.config.Operator, fires, busy))
}

func (m *WebSocketMirror) publish(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("Failed to marshal message", telemetry.Err(err), telemetry.String("type", string(msg.Type)))
		return
	}
	if err := m.config.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Error("Failed to send message to WebSocket",
			telemetry.Err(err),
			telemetry.String("operator", m.config.Operator),
			telemetry.String("type", string(msg.Type)))
		return
	}
	m.logger.Debug("Sent message to WebSocket", telemetry.String("type", string(msg.Type)))
}

// MirrorOutput wraps an output builder so that the output it builds is
// mirrored to conn
func MirrorOutput(inner core.OutputBuilder, conn *websocket.Conn, operator string, logger telemetry.Logger) core.OutputBuilder {
	return &mirrorBuilder{
		inner:    inner,
		conn:     conn,
		operator: operator,
		logger:   logger,
	}
}

type mirrorBuilder struct {
	inner    core.OutputBuilder
	conn     *websocket.Conn
	operator string
	logger   telemetry.Logger
	built    *WebSocketMirror
}

func (b *mirrorBuilder) Port() core.Port {
	return b.inner.Port()
}

func (b *mirrorBuilder) Build() (core.Output, bool) {
	if b.built != nil {
		return b.built, true
	}
	output, ok := b.inner.Build()
	if !ok {
		return nil, false
	}
	b.built = NewWebSocketMirror(WebSocketMirrorConfig{
		Output:   output,
		Conn:     b.conn,
		Operator: b.operator,
		Port:     b.inner.Port(),
		Logger:   b.logger,
	})
	return b.built, true
}
