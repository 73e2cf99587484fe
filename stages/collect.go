package stages

import (
	"fmt"

	"github.com/creastat/dataflow"
	"github.com/creastat/dataflow/core"
	"github.com/creastat/infra/telemetry"
)

// CollectConfig holds collect stage configuration
type CollectConfig struct {
	// Inputs is the number of input ports whose ends are merged
	Inputs     int
	ScopeLevel int
	Logger     telemetry.Logger
}

// Collect is a sink that gathers records per scope and records when each
// scope completed. It handles notifications itself: ends are merged across
// its inputs and a cancel reaches the inputs as soon as it is requested.
type Collect struct {
	config    CollectConfig
	ends      *dataflow.EndBarrier
	records   map[core.Tag][]any
	completed map[core.Tag]core.Weight
	order     []core.Tag
}

// NewCollect creates a new collect stage
func NewCollect(config CollectConfig) *Collect {
	return &Collect{
		config:    config,
		ends:      dataflow.NewEndBarrier(config.Inputs, config.ScopeLevel),
		records:   make(map[core.Tag][]any),
		completed: make(map[core.Tag]core.Weight),
	}
}

// Name returns the stage name
func (c *Collect) Name() string {
	return "collect"
}

// OnReceive implements core.OperatorCore
func (c *Collect) OnReceive(inputs []core.Input, _ []core.Output) error {
	for index, input := range inputs {
		reader, ok := input.(core.BatchReader)
		if !ok {
			return core.Fatal(fmt.Errorf("%s: input %d cannot be read", c.Name(), index))
		}
		for {
			batch, ok := reader.Pull()
			if !ok {
				break
			}
			c.records[batch.Tag] = append(c.records[batch.Tag], batch.Records...)
		}
	}
	return nil
}

// OnNotify implements core.Notifiable. Once every input ended the scope the
// completion is recorded and the end is passed to every output.
func (c *Collect) OnNotify(n core.EndScope, outputs []core.Output) error {
	merged, done, err := c.ends.MergeEnd(n)
	if err != nil || !done {
		return err
	}

	c.completed[merged.Tag] = merged.Weight
	c.order = append(c.order, merged.Tag)
	c.config.Logger.Debug("scope collected",
		telemetry.String("tag", merged.Tag.String()),
		telemetry.Int("records", len(c.records[merged.Tag])),
		telemetry.String("weight", merged.Weight.String()))

	for _, output := range outputs {
		if err := output.NotifyEnd(merged.Signal()); err != nil {
			return err
		}
	}
	return nil
}

// OnCancel implements core.Notifiable. Records of the scope gathered so far
// are dropped.
func (c *Collect) OnCancel(n core.CancelScope, inputs []core.Input) error {
	delete(c.records, n.Tag)
	for _, input := range inputs {
		input.CancelScope(n.Tag)
	}
	return nil
}

// Records returns the records gathered for tag in arrival order
func (c *Collect) Records(tag core.Tag) []any {
	return c.records[tag]
}

// Completed returns the merged weight of tag once it completed
func (c *Collect) Completed(tag core.Tag) (core.Weight, bool) {
	w, ok := c.completed[tag]
	return w, ok
}

// Completions returns the completed scopes in completion order
func (c *Collect) Completions() []core.Tag {
	return c.order
}
