package dataflow

import (
	"github.com/creastat/dataflow/core"
)

// SelectStrategy picks the merge strategy for the given port counts. A single
// input already represents full completion and a single output trivially
// agrees with itself, so a barrier is only paid for on the multi-port side.
func SelectStrategy(inputs, outputs int) core.NotifyStrategy {
	switch {
	case inputs > 1 && outputs > 1:
		return core.StrategyMIMO
	case inputs > 1:
		return core.StrategyMISO
	case outputs > 1:
		return core.StrategySIMO
	default:
		return core.StrategySISO
	}
}

// defaultNotify routes notifications through the barriers its strategy needs
type defaultNotify struct {
	strategy core.NotifyStrategy
	ends     *EndBarrier
	cancels  *CancelBarrier
}

func newDefaultNotify(inputs, outputs, scopeLevel int) *defaultNotify {
	n := &defaultNotify{strategy: SelectStrategy(inputs, outputs)}
	if n.strategy.MergesEnd() {
		n.ends = NewEndBarrier(inputs, scopeLevel)
	}
	if n.strategy.MergesCancel() {
		n.cancels = NewCancelBarrier(outputs, scopeLevel)
	}
	return n
}

func (n *defaultNotify) mergeEnd(end core.EndScope) (core.EndScope, bool, error) {
	if n.ends == nil {
		return end, true, nil
	}
	return n.ends.MergeEnd(end)
}

func (n *defaultNotify) mergeCancel(cancel core.CancelScope) (core.Tag, bool, error) {
	if n.cancels == nil {
		return cancel.Tag, true, nil
	}
	return n.cancels.MergeCancel(cancel)
}

// DefaultNotifyOperator gives a plain computation the default notification
// behavior: a scope end is broadcast to every output once all inputs ended
// it, and a cancel is sent to every input once all outputs requested it.
type DefaultNotifyOperator struct {
	op     core.OperatorCore
	notify *defaultNotify
}

// NewDefaultNotifyOperator wraps op for an operator with the given shape
func NewDefaultNotifyOperator(inputs, outputs, scopeLevel int, op core.OperatorCore) *DefaultNotifyOperator {
	return &DefaultNotifyOperator{
		op:     op,
		notify: newDefaultNotify(inputs, outputs, scopeLevel),
	}
}

// Strategy returns the merge strategy selected for this operator
func (d *DefaultNotifyOperator) Strategy() core.NotifyStrategy {
	return d.notify.strategy
}

// OnReceive runs the wrapped computation
func (d *DefaultNotifyOperator) OnReceive(inputs []core.Input, outputs []core.Output) error {
	return d.op.OnReceive(inputs, outputs)
}

// OnNotify delivers the merged end of a scope to every output in port order
func (d *DefaultNotifyOperator) OnNotify(n core.EndScope, outputs []core.Output) error {
	if len(outputs) == 0 {
		return nil
	}
	end, ok, err := d.notify.mergeEnd(n)
	if err != nil || !ok {
		return err
	}
	sig := end.Signal()
	for _, output := range outputs {
		if err := output.NotifyEnd(sig); err != nil {
			return err
		}
	}
	return nil
}

// OnCancel asks every input to stop producing a tag all outputs gave up on
func (d *DefaultNotifyOperator) OnCancel(n core.CancelScope, inputs []core.Input) error {
	if len(inputs) == 0 {
		return nil
	}
	tag, ok, err := d.notify.mergeCancel(n)
	if err != nil || !ok {
		return err
	}
	for _, input := range inputs {
		input.CancelScope(tag)
	}
	return nil
}
