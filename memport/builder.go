package memport

import "github.com/creastat/dataflow/core"

// OutputBuilder declares an in-memory output before it is materialized
type OutputBuilder struct {
	port       core.Port
	spec       core.OutputSpec
	scopeLevel int
	target     *Channel
	discard    bool
	built      *Output
}

// NewOutputBuilder declares an output port without a target
func NewOutputBuilder(port core.Port, scopeLevel int, spec core.OutputSpec) *OutputBuilder {
	return &OutputBuilder{
		port:       port,
		spec:       spec,
		scopeLevel: scopeLevel,
	}
}

// Factory has the shape of dataflow.OutputFactory
func Factory(port core.Port, scopeLevel int, spec core.OutputSpec) core.OutputBuilder {
	return NewOutputBuilder(port, scopeLevel, spec)
}

// Port implements core.OutputBuilder
func (b *OutputBuilder) Port() core.Port {
	return b.port
}

// Connect sets the channel the output delivers to
func (b *OutputBuilder) Connect(target *Channel) {
	b.target = target
}

// Discard makes Build decline to materialize the port
func (b *OutputBuilder) Discard() {
	b.discard = true
}

// Build implements core.OutputBuilder. It returns the same Output on every
// call.
func (b *OutputBuilder) Build() (core.Output, bool) {
	if b.discard {
		return nil, false
	}
	if b.built == nil {
		b.built = NewOutput(b.port, b.scopeLevel, b.spec, b.target)
	}
	return b.built, true
}

// Output returns the materialized output, or nil before Build
func (b *OutputBuilder) Output() *Output {
	return b.built
}
