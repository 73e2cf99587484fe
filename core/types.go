package core

import "fmt"

// Port addresses one input or output of an operator
type Port struct {
	Operator int `json:"operator"`
	Index    int `json:"index"`
}

// NewPort creates a port address
func NewPort(operator, index int) Port {
	return Port{Operator: operator, Index: index}
}

func (p Port) String() string {
	return fmt.Sprintf("(%d.%d)", p.Operator, p.Index)
}

// OperatorInfo identifies an operator in the dataflow
type OperatorInfo struct {
	Name  string
	Index int
	// ScopeLevel is the deepest tag length the operator will see
	ScopeLevel int
}

func (i OperatorInfo) String() string {
	return fmt.Sprintf("%s[%d]", i.Name, i.Index)
}

// OutputSpec configures an output port
type OutputSpec struct {
	// BatchSize is the number of records buffered before a batch is sent
	BatchSize int `yaml:"batch_size"`
	// ScopeCapacity is how many batches of one scope may be in flight
	// before the scope blocks
	ScopeCapacity int `yaml:"scope_capacity"`
	// BatchCapacity is the initial record capacity of a batch buffer
	BatchCapacity int `yaml:"batch_capacity"`
}

// DefaultOutputSpec returns the spec used when nothing is configured
func DefaultOutputSpec() OutputSpec {
	return OutputSpec{
		BatchSize:     1024,
		ScopeCapacity: 64,
		BatchCapacity: 1024,
	}
}

// State is the lifecycle state of an operator
type State string

const (
	StateActive   State = "active"
	StateIdle     State = "idle"
	StateFinished State = "finished"
	StateClosed   State = "closed"
)
