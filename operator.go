package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// Operator is the schedulable unit of a dataflow. It owns its ports and its
// computation and is driven by an external scheduler through Fire, Cancel
// and Close.
//
// An Operator is not safe for concurrent use: at most one call may be in
// flight at any time.
//
// Scheduling condition: an operator is worth firing when an output has spare
// capacity and either an input has data or the operator is marked active.
type Operator struct {
	info    core.OperatorInfo
	inputs  []core.Input
	outputs []core.Output
	compute core.NotifiableOperator
	stats   Stats
	closed  bool
	logger  telemetry.Logger
}

// Info returns the identity of the operator
func (op *Operator) Info() core.OperatorInfo {
	return op.info
}

// InputCount returns the number of input ports
func (op *Operator) InputCount() int {
	return len(op.inputs)
}

// OutputCount returns the number of output ports
func (op *Operator) OutputCount() int {
	return len(op.outputs)
}

// Stats returns the accumulated fire statistics
func (op *Operator) Stats() Stats {
	return op.stats
}

// HasOutstanding reports whether any input holds data not yet delivered
func (op *Operator) HasOutstanding() (bool, error) {
	for _, input := range op.inputs {
		ok, err := input.HasOutstanding()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsFinished reports whether no output is blocked and every input is
// exhausted
func (op *Operator) IsFinished() bool {
	if op.hasBlocks() {
		return false
	}
	for _, input := range op.inputs {
		if !input.IsExhausted() {
			return false
		}
	}
	return true
}

// IsIdle reports whether no output is blocked and no input has data
func (op *Operator) IsIdle() (bool, error) {
	if op.hasBlocks() {
		return false, nil
	}
	outstanding, err := op.HasOutstanding()
	if err != nil {
		return false, err
	}
	return !outstanding, nil
}

// Schedulable evaluates the scheduling condition. active marks an operator
// that has work of its own (e.g. a source) even without input data.
func (op *Operator) Schedulable(active bool) (bool, error) {
	if op.closed || !op.hasCapacity() {
		return false, nil
	}
	if active {
		return true, nil
	}
	return op.HasOutstanding()
}

// State reports where the operator is in its lifecycle
func (op *Operator) State() (core.State, error) {
	if op.closed {
		return core.StateClosed, nil
	}
	if op.IsFinished() {
		return core.StateFinished, nil
	}
	idle, err := op.IsIdle()
	if err != nil {
		return core.StateActive, err
	}
	if idle {
		return core.StateIdle, nil
	}
	return core.StateActive, nil
}

func (op *Operator) hasBlocks() bool {
	for _, output := range op.outputs {
		if len(output.Blocks()) > 0 {
			return true
		}
	}
	return false
}

func (op *Operator) hasCapacity() bool {
	if len(op.outputs) == 0 {
		return true
	}
	for _, output := range op.outputs {
		cr, ok := output.(core.CapacityReporter)
		if !ok || cr.HasCapacity() {
			return true
		}
	}
	return false
}

// Fire runs one execution quantum. A retryable computation error is returned
// only after pending scope ends were drained and every output was flushed; a
// fatal one is returned at once.
func (op *Operator) Fire() error {
	if op.closed {
		return fmt.Errorf("fire %v: %w", op.info, core.ErrOperatorClosed)
	}
	defer op.stats.track()()

	for _, output := range op.outputs {
		if err := output.TryUnblock(); err != nil {
			return err
		}
	}

	result := op.compute.OnReceive(op.inputs, op.outputs)

	for _, output := range op.outputs {
		for _, bs := range output.Blocks() {
			for index, input := range op.inputs {
				if !bs.HasBlock(index) {
					bs.Block(index, input.Block(bs.Tag()))
				}
			}
		}
	}

	var retry error
	if result != nil {
		if !core.IsRetryable(result) {
			return result
		}
		op.logger.Debug("carrying retryable error through fire",
			telemetry.String("operator", op.info.String()),
			telemetry.Err(result))
		retry = result
	}

	for port, input := range op.inputs {
		for {
			end, ok := input.ExtractEnd()
			if !ok {
				break
			}
			n := core.EndScope{Port: port, Tag: end.Tag, Weight: end.Weight}
			if err := op.compute.OnNotify(n, op.outputs); err != nil {
				return err
			}
		}
	}

	for _, output := range op.outputs {
		if err := output.Flush(); err != nil {
			return err
		}
	}
	return retry
}

// Cancel stops output port from sending data of tag and, once every output
// has done so, asks the inputs to stop producing it. A closed operator
// accepts no cancels.
func (op *Operator) Cancel(port int, tag core.Tag) error {
	if op.closed {
		return fmt.Errorf("cancel %v on output %d: %w", tag, port, core.ErrOperatorClosed)
	}
	if port < 0 || port >= len(op.outputs) {
		return fmt.Errorf("cancel %v on output %d: %w", tag, port, core.ErrUnknownPort)
	}
	op.logger.Debug("output stops sending scope",
		telemetry.String("port", core.NewPort(op.info.Index, port).String()),
		telemetry.String("tag", tag.String()))

	if err := op.outputs[port].Cancel(tag); err != nil {
		return err
	}
	return op.compute.OnCancel(core.CancelScope{Port: port, Tag: tag}, op.inputs)
}

// Close closes every output. A failing output is logged and skipped since the
// operator is discarded either way. Calling Close again does nothing.
func (op *Operator) Close() {
	if op.closed {
		op.logger.Warn("operator closed twice", telemetry.String("operator", op.info.String()))
		return
	}
	op.closed = true

	for index, output := range op.outputs {
		if err := output.Close(); err != nil {
			op.logger.Warn("failed to close output",
				telemetry.String("operator", op.info.String()),
				telemetry.Int("port", index),
				telemetry.Err(err))
		}
	}

	op.logger.Debug("operator finished",
		telemetry.String("operator", op.info.String()),
		telemetry.Float64("busy_ms", float64(op.stats.Busy.Microseconds())/1000.0),
		telemetry.Int("fires", int(op.stats.Fires)),
		telemetry.Int("avg_fire_us", int(op.stats.AvgFire().Microseconds())))
}
