package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
)

// EndBarrier merges end-of-scope notifications arriving through multiple
// input ports. A scope is reported complete only after every input has
// reported its end; the weights of all reports are merged into the result.
//
// Merge state is kept per nesting depth so tags of different depths never
// share a table. Entries live only while a scope is partially ended.
type EndBarrier struct {
	inputs int
	levels []map[core.Tag]*endMerge
}

type endMerge struct {
	end   core.EndScope
	ports map[int]struct{}
}

// NewEndBarrier creates a barrier waiting for the given number of inputs on
// tags up to scopeLevel deep
func NewEndBarrier(inputs, scopeLevel int) *EndBarrier {
	levels := make([]map[core.Tag]*endMerge, scopeLevel+1)
	for i := range levels {
		levels[i] = make(map[core.Tag]*endMerge)
	}
	return &EndBarrier{
		inputs: inputs,
		levels: levels,
	}
}

// MergeEnd records one end notification. It returns the merged notification
// once the last distinct input has reported the tag. A repeated report from
// a port that already reported is ignored.
func (b *EndBarrier) MergeEnd(n core.EndScope) (core.EndScope, bool, error) {
	level := n.Tag.Len()
	if level >= len(b.levels) {
		return core.EndScope{}, false, fmt.Errorf("end of %v from input %d: %w", n.Tag, n.Port, core.ErrScopeTooDeep)
	}

	pending := b.levels[level]
	m, ok := pending[n.Tag]
	if !ok {
		if b.inputs <= 1 {
			return n, true, nil
		}
		pending[n.Tag] = &endMerge{
			end:   n,
			ports: map[int]struct{}{n.Port: {}},
		}
		return core.EndScope{}, false, nil
	}

	if _, dup := m.ports[n.Port]; dup {
		return core.EndScope{}, false, nil
	}
	m.ports[n.Port] = struct{}{}
	m.end.Weight.Merge(n.Weight)
	if len(m.ports) < b.inputs {
		return core.EndScope{}, false, nil
	}

	delete(pending, n.Tag)
	return m.end, true, nil
}

// Pending returns the number of scopes some but not all inputs have ended
func (b *EndBarrier) Pending() int {
	count := 0
	for _, level := range b.levels {
		count += len(level)
	}
	return count
}

// Reported returns how many inputs have ended tag so far
func (b *EndBarrier) Reported(tag core.Tag) int {
	if tag.Len() >= len(b.levels) {
		return 0
	}
	if m, ok := b.levels[tag.Len()][tag]; ok {
		return len(m.ports)
	}
	return 0
}
