package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// OutputFactory creates the builder of a newly declared output port
type OutputFactory func(port core.Port, scopeLevel int, spec core.OutputSpec) core.OutputBuilder

// BuilderConfig configures an OperatorBuilder
type BuilderConfig struct {
	Info core.OperatorInfo
	Core core.GeneralOperator
	// Outputs creates output builders for NewOutputPort
	Outputs OutputFactory
	Logger  telemetry.Logger
}

// OperatorBuilder collects the ports of an operator while the dataflow graph
// is being wired, then assembles the Operator
type OperatorBuilder struct {
	info         core.OperatorInfo
	inputs       []core.Input
	inputsNotify []core.EndNotifier
	outputs      []core.OutputBuilder
	compute      core.GeneralOperator
	factory      OutputFactory
	logger       telemetry.Logger
}

// NewOperatorBuilder creates a builder without ports
func NewOperatorBuilder(config BuilderConfig) *OperatorBuilder {
	return &OperatorBuilder{
		info:    config.Info,
		compute: config.Core,
		factory: config.Outputs,
		logger:  config.Logger,
	}
}

// Index returns the operator index
func (b *OperatorBuilder) Index() int {
	return b.info.Index
}

// Info returns the operator identity
func (b *OperatorBuilder) Info() core.OperatorInfo {
	return b.info
}

// NextInputPort returns the port the next AddInput call binds
func (b *OperatorBuilder) NextInputPort() core.Port {
	return core.NewPort(b.info.Index, len(b.inputs))
}

// NextOutputPort returns the port the next declared output gets
func (b *OperatorBuilder) NextOutputPort() core.Port {
	return core.NewPort(b.info.Index, len(b.outputs))
}

// AddInput binds input, and the optional push endpoint carrying its end
// signals upstream, to target. Inputs must be added in port order.
func (b *OperatorBuilder) AddInput(target core.Port, input core.Input, notify core.EndNotifier) error {
	if next := b.NextInputPort(); target != next {
		return fmt.Errorf("add input %v, expected %v: %w", target, next, core.ErrPortOrder)
	}
	b.inputs = append(b.inputs, input)
	b.inputsNotify = append(b.inputsNotify, notify)
	return nil
}

// NewOutputPort declares the next output port
func (b *OperatorBuilder) NewOutputPort(spec core.OutputSpec) (core.OutputBuilder, error) {
	if b.factory == nil {
		return nil, ValidationError{
			Message: "output declaration failed",
			Details: fmt.Sprintf("operator %v has no output factory", b.info),
		}
	}
	if err := ValidateOutputSpec(spec); err != nil {
		return nil, err
	}
	ob := b.factory(b.NextOutputPort(), b.info.ScopeLevel, spec)
	b.outputs = append(b.outputs, ob)
	return ob, nil
}

// AddOutput registers an output builder created elsewhere. It must address
// the next output port.
func (b *OperatorBuilder) AddOutput(ob core.OutputBuilder) error {
	if next := b.NextOutputPort(); ob.Port() != next {
		return fmt.Errorf("add output %v, expected %v: %w", ob.Port(), next, core.ErrPortOrder)
	}
	b.outputs = append(b.outputs, ob)
	return nil
}

// TakeInputsNotify hands over the end-notification endpoints of the inputs.
// Subsequent calls return nil.
func (b *OperatorBuilder) TakeInputsNotify() []core.EndNotifier {
	notify := b.inputsNotify
	b.inputsNotify = nil
	return notify
}

// Build materializes the outputs and assembles the operator. A plain
// computation is wrapped with the default notification behavior.
func (b *OperatorBuilder) Build() (*Operator, error) {
	if err := ValidateBuilder(b); err != nil {
		return nil, err
	}

	outputs := make([]core.Output, 0, len(b.outputs))
	for _, ob := range b.outputs {
		if o, ok := ob.Build(); ok {
			outputs = append(outputs, o)
		}
	}

	var notifiable core.NotifiableOperator
	if n, ok := b.compute.Notifiable(); ok {
		notifiable = n
	} else {
		op, _ := b.compute.Core()
		notifiable = NewDefaultNotifyOperator(len(b.inputs), len(outputs), b.info.ScopeLevel, op)
	}

	return &Operator{
		info:    b.info,
		inputs:  b.inputs,
		outputs: outputs,
		compute: notifiable,
		logger:  b.logger.WithModule("operator"),
	}, nil
}
