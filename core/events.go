package core

// EndScope is emitted by an input when it observes the end of a scope
// arriving through Port
type EndScope struct {
	Port   int
	Tag    Tag
	Weight Weight
}

// CancelScope is emitted when the consumer attached to output Port no longer
// wants data of Tag
type CancelScope struct {
	Port int
	Tag  Tag
}

// EndSignal is the port-independent completion record carried between
// operators: the scope that ended and the merged progress behind it
type EndSignal struct {
	Tag    Tag
	Weight Weight
}

// Signal strips the port from an end notification
func (e EndScope) Signal() EndSignal {
	return EndSignal{Tag: e.Tag, Weight: e.Weight}
}

// Batch is a group of records of the same scope moved between operators
type Batch struct {
	Tag     Tag
	Records []any
}

// Len returns the number of records in the batch
func (b Batch) Len() int {
	return len(b.Records)
}
