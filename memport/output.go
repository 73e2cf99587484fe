package memport

import (
	"fmt"

	"github.com/creastat/dataflow/core"
)

// Output buffers records per scope and delivers them in batches to a target
// Channel. Without a target it acts as a sink that retains what it delivers.
//
// A scope blocks when the target holds ScopeCapacity or more of its batches;
// the block is lifted by TryUnblock once the consumer drained below that.
type Output struct {
	port       core.Port
	spec       core.OutputSpec
	scopeLevel int
	target     *Channel

	buffers   map[core.Tag][]any
	order     []core.Tag
	blocks    []*blockState
	cancelled map[core.Tag]struct{}
	delivered []core.Batch
	ends      []core.EndSignal
	flushes   int
	closed    bool
}

// NewOutput creates an output for port. target may be nil for a sink.
func NewOutput(port core.Port, scopeLevel int, spec core.OutputSpec, target *Channel) *Output {
	return &Output{
		port:       port,
		spec:       spec,
		scopeLevel: scopeLevel,
		target:     target,
		buffers:    make(map[core.Tag][]any),
		cancelled:  make(map[core.Tag]struct{}),
	}
}

// Port returns the output port address
func (o *Output) Port() core.Port {
	return o.port
}

// Push implements core.BatchWriter. Records of a cancelled scope are
// silently dropped.
func (o *Output) Push(b core.Batch) error {
	if o.closed {
		return fmt.Errorf("push to %v: %w", o.port, ErrClosed)
	}
	if b.Tag.Len() > o.scopeLevel {
		return fmt.Errorf("push %v to %v: %w", b.Tag, o.port, core.ErrScopeTooDeep)
	}
	if _, ok := o.cancelled[b.Tag]; ok {
		return nil
	}

	buf, ok := o.buffers[b.Tag]
	if !ok {
		buf = make([]any, 0, o.spec.BatchCapacity)
		o.order = append(o.order, b.Tag)
	}
	buf = append(buf, b.Records...)
	for len(buf) >= o.spec.BatchSize {
		o.deliver(b.Tag, buf[:o.spec.BatchSize:o.spec.BatchSize])
		buf = buf[o.spec.BatchSize:]
	}
	o.buffers[b.Tag] = buf
	return nil
}

func (o *Output) deliver(tag core.Tag, records []any) {
	batch := core.Batch{Tag: tag, Records: records}
	if o.target != nil {
		o.target.Send(batch)
	} else {
		o.delivered = append(o.delivered, batch)
	}
	if o.inFlight(tag) >= o.spec.ScopeCapacity && o.findBlock(tag) < 0 {
		o.blocks = append(o.blocks, newBlockState(tag))
	}
}

func (o *Output) inFlight(tag core.Tag) int {
	if o.target != nil {
		return o.target.Queued(tag)
	}
	n := 0
	for _, b := range o.delivered {
		if b.Tag == tag {
			n++
		}
	}
	return n
}

func (o *Output) findBlock(tag core.Tag) int {
	for i, bs := range o.blocks {
		if bs.tag == tag {
			return i
		}
	}
	return -1
}

func (o *Output) flushTag(tag core.Tag) {
	if buf := o.buffers[tag]; len(buf) > 0 {
		o.deliver(tag, buf)
	}
	delete(o.buffers, tag)
	for i, t := range o.order {
		if t == tag {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// TryUnblock implements core.Output
func (o *Output) TryUnblock() error {
	kept := o.blocks[:0]
	for _, bs := range o.blocks {
		if o.inFlight(bs.tag) < o.spec.ScopeCapacity {
			bs.release()
			continue
		}
		kept = append(kept, bs)
	}
	o.blocks = kept
	return nil
}

// HasCapacity implements core.CapacityReporter. A blocked output still has
// capacity if any of its blocks would be lifted by TryUnblock.
func (o *Output) HasCapacity() bool {
	if o.closed {
		return false
	}
	if len(o.blocks) == 0 {
		return true
	}
	for _, bs := range o.blocks {
		if o.inFlight(bs.tag) < o.spec.ScopeCapacity {
			return true
		}
	}
	return false
}

// Blocks implements core.Output
func (o *Output) Blocks() []core.BlockState {
	if len(o.blocks) == 0 {
		return nil
	}
	states := make([]core.BlockState, len(o.blocks))
	for i, bs := range o.blocks {
		states[i] = bs
	}
	return states
}

// NotifyEnd implements core.Output. Buffered data of the scope and of the
// scopes nested in it is delivered before the end.
func (o *Output) NotifyEnd(sig core.EndSignal) error {
	if o.closed {
		return fmt.Errorf("end %v on %v: %w", sig.Tag, o.port, ErrClosed)
	}
	for _, tag := range append([]core.Tag(nil), o.order...) {
		if tag == sig.Tag || sig.Tag.IsParentOf(tag) {
			o.flushTag(tag)
		}
	}
	if o.target != nil {
		o.target.SendEnd(sig)
	}
	o.ends = append(o.ends, sig)
	return nil
}

// Cancel implements core.Output. Buffered data and any block of the tag are
// dropped. Cancelling again is a no-op.
func (o *Output) Cancel(tag core.Tag) error {
	if _, ok := o.cancelled[tag]; ok {
		return nil
	}
	o.cancelled[tag] = struct{}{}
	if _, ok := o.buffers[tag]; ok {
		delete(o.buffers, tag)
		for i, t := range o.order {
			if t == tag {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
	if i := o.findBlock(tag); i >= 0 {
		o.blocks[i].release()
		o.blocks = append(o.blocks[:i], o.blocks[i+1:]...)
	}
	return nil
}

// Flush implements core.Output
func (o *Output) Flush() error {
	if o.closed {
		return fmt.Errorf("flush %v: %w", o.port, ErrClosed)
	}
	o.flushes++
	for _, tag := range append([]core.Tag(nil), o.order...) {
		o.flushTag(tag)
	}
	return nil
}

// Close implements core.Output. It flushes, lifts every block and rejects
// later writes.
func (o *Output) Close() error {
	if o.closed {
		return fmt.Errorf("close %v: %w", o.port, ErrClosed)
	}
	if err := o.Flush(); err != nil {
		return err
	}
	o.closed = true
	for _, bs := range o.blocks {
		bs.release()
	}
	o.blocks = nil
	return nil
}

// Closed reports whether Close succeeded
func (o *Output) Closed() bool {
	return o.closed
}

// Cancelled reports whether tag was cancelled on this output
func (o *Output) Cancelled(tag core.Tag) bool {
	_, ok := o.cancelled[tag]
	return ok
}

// Ends returns every end signal sent through the output
func (o *Output) Ends() []core.EndSignal {
	return o.ends
}

// Flushes returns how many times Flush was called
func (o *Output) Flushes() int {
	return o.flushes
}

// Buffered returns the number of records of tag not yet delivered
func (o *Output) Buffered(tag core.Tag) int {
	return len(o.buffers[tag])
}

// Delivered returns the batches a sink output retained
func (o *Output) Delivered() []core.Batch {
	return o.delivered
}

// Drain hands the retained batches of a sink to the caller, freeing its
// capacity
func (o *Output) Drain() []core.Batch {
	out := o.delivered
	o.delivered = nil
	return out
}

type blockState struct {
	tag     core.Tag
	handles map[int]core.BlockHandle
}

func newBlockState(tag core.Tag) *blockState {
	return &blockState{tag: tag, handles: make(map[int]core.BlockHandle)}
}

func (bs *blockState) Tag() core.Tag { return bs.tag }

func (bs *blockState) HasBlock(input int) bool {
	_, ok := bs.handles[input]
	return ok
}

func (bs *blockState) Block(input int, handle core.BlockHandle) {
	bs.handles[input] = handle
}

func (bs *blockState) release() {
	for _, h := range bs.handles {
		if r, ok := h.(releaser); ok {
			r.Release()
		}
	}
	bs.handles = nil
}
