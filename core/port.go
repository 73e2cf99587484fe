package core

// BlockHandle is an opaque token returned by Input.Block. Data-plane
// implementations use it to lift the block later.
type BlockHandle any

// BlockState describes a tag an output could not accept more data for,
// together with the inputs that have already been told to hold it back
type BlockState interface {
	Tag() Tag
	// HasBlock reports whether input already withholds the tag
	HasBlock(input int) bool
	// Block registers the handle the input returned for the tag
	Block(input int, handle BlockHandle)
}

// Input is the pull side of a port as seen by an operator
type Input interface {
	// HasOutstanding reports buffered data not yet delivered for any scope
	HasOutstanding() (bool, error)
	// IsExhausted reports that no more data or ends will ever arrive
	IsExhausted() bool
	// ExtractEnd pops the next pending end-of-scope record
	ExtractEnd() (EndSignal, bool)
	// Block withholds further delivery of tag until the handle is released
	Block(tag Tag) BlockHandle
	// CancelScope asks the upstream to stop producing tag
	CancelScope(tag Tag)
}

// Output is the push side of a port as seen by an operator
type Output interface {
	// TryUnblock releases blocked tags whose downstream capacity recovered
	TryUnblock() error
	// Blocks lists the tags currently blocked by capacity, in block order
	Blocks() []BlockState
	NotifyEnd(sig EndSignal) error
	// Cancel stops emitting data of tag; repeating it is a no-op
	Cancel(tag Tag) error
	Flush() error
	Close() error
}

// OutputBuilder declares an output port before the graph is finalized.
// Build returns false when the port should not be materialized.
type OutputBuilder interface {
	Port() Port
	Build() (Output, bool)
}

// EndNotifier is the optional push endpoint that carries end signals of an
// input back to its producer
type EndNotifier interface {
	NotifyEnd(sig EndSignal) error
}

// BatchReader is implemented by inputs that hand data to computations
type BatchReader interface {
	Pull() (Batch, bool)
}

// BatchRequeuer is implemented by inputs that can take back a batch the
// computation pulled but could not finish. The batch is served again before
// anything queued behind it.
type BatchRequeuer interface {
	Requeue(b Batch)
}

// BatchWriter is implemented by outputs that accept data from computations
type BatchWriter interface {
	Push(b Batch) error
}

// CapacityReporter is implemented by outputs that can tell whether they are
// able to take more data right now
type CapacityReporter interface {
	HasCapacity() bool
}
