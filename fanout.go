package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
)

// CancelBarrier merges cancellation requests arriving through multiple output
// ports. While any output still wants data of a tag the inputs must keep
// producing it, so the tag is released upstream only once every output has
// asked to stop.
//
// Cancelling a tag does not cancel the scopes nested inside it.
type CancelBarrier struct {
	outputs int
	levels  []map[core.Tag]map[int]struct{}
}

// NewCancelBarrier creates a barrier waiting for the given number of outputs
// on tags up to scopeLevel deep
func NewCancelBarrier(outputs, scopeLevel int) *CancelBarrier {
	levels := make([]map[core.Tag]map[int]struct{}, scopeLevel+1)
	for i := range levels {
		levels[i] = make(map[core.Tag]map[int]struct{})
	}
	return &CancelBarrier{
		outputs: outputs,
		levels:  levels,
	}
}

// MergeCancel records one cancellation request and returns the tag once all
// outputs have requested it. Repeated requests from one port count once.
func (b *CancelBarrier) MergeCancel(n core.CancelScope) (core.Tag, bool, error) {
	level := n.Tag.Len()
	if level >= len(b.levels) {
		return core.Tag{}, false, fmt.Errorf("cancel of %v from output %d: %w", n.Tag, n.Port, core.ErrScopeTooDeep)
	}

	pending := b.levels[level]
	ports, ok := pending[n.Tag]
	if !ok {
		ports = make(map[int]struct{}, b.outputs)
		pending[n.Tag] = ports
	}
	ports[n.Port] = struct{}{}
	if len(ports) < b.outputs {
		return core.Tag{}, false, nil
	}

	delete(pending, n.Tag)
	return n.Tag, true, nil
}

// Pending returns the number of tags some but not all outputs have cancelled
func (b *CancelBarrier) Pending() int {
	count := 0
	for _, level := range b.levels {
		count += len(level)
	}
	return count
}

// Waiting returns how many outputs still want data of tag
func (b *CancelBarrier) Waiting(tag core.Tag) int {
	if tag.Len() >= len(b.levels) {
		return b.outputs
	}
	return b.outputs - len(b.levels[tag.Len()][tag])
}
