package dataflow

import (
	"fmt"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/dataflow/memport"
	"github.com/creastat/infra/telemetry"
)

// Graph assembles operators connected by in-memory channels. Nodes are
// numbered in the order they are added; that number is the operator index.
type Graph struct {
	config Config
	logger telemetry.Logger

	nodes map[string]*graphNode
	order []*graphNode
}

// graphNode represents an operator being wired
type graphNode struct {
	name    string
	builder *OperatorBuilder
	inputs  []*graphEdge
	outputs []*graphEdge
	// notify holds the end-notification endpoints of the inputs once built
	notify []core.EndNotifier
}

// graphEdge represents a channel from an output of one node to an input of
// another
type graphEdge struct {
	from    *graphNode
	to      *graphNode
	output  *memport.OutputBuilder
	channel *memport.Channel
}

// NewGraph creates an empty graph whose operators use config
func NewGraph(config Config, logger telemetry.Logger) *Graph {
	return &Graph{
		config: config,
		logger: logger,
		nodes:  make(map[string]*graphNode),
	}
}

// AddNode declares an operator running op
func (g *Graph) AddNode(name string, op core.GeneralOperator) (*OperatorBuilder, error) {
	if _, exists := g.nodes[name]; exists {
		return nil, fmt.Errorf("node %q already exists in graph", name)
	}

	builder := NewOperatorBuilder(BuilderConfig{
		Info: core.OperatorInfo{
			Name:       name,
			Index:      len(g.order),
			ScopeLevel: g.config.ScopeLevel,
		},
		Core:    op,
		Outputs: memport.Factory,
		Logger:  g.logger,
	})
	node := &graphNode{name: name, builder: builder}
	g.nodes[name] = node
	g.order = append(g.order, node)
	return builder, nil
}

// AddEdge connects a new output of fromName to a new input of toName
func (g *Graph) AddEdge(fromName, toName string) error {
	from, exists := g.nodes[fromName]
	if !exists {
		return fmt.Errorf("source node %q does not exist", fromName)
	}
	to, exists := g.nodes[toName]
	if !exists {
		return fmt.Errorf("destination node %q does not exist", toName)
	}

	output, err := g.newOutput(from)
	if err != nil {
		return err
	}
	channel := memport.NewChannel(to.builder.NextInputPort())
	output.Connect(channel)
	if err := to.builder.AddInput(channel.Port(), channel, channel); err != nil {
		return err
	}

	edge := &graphEdge{from: from, to: to, output: output, channel: channel}
	from.outputs = append(from.outputs, edge)
	to.inputs = append(to.inputs, edge)
	return nil
}

// Feed adds an input to the node that is driven from outside the graph
func (g *Graph) Feed(name string) (*memport.Channel, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %q does not exist", name)
	}
	channel := memport.NewChannel(node.builder.NextInputPort())
	if err := node.builder.AddInput(channel.Port(), channel, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// Sink adds an output to the node that retains what it delivers. The
// returned output exists once Build succeeded.
func (g *Graph) Sink(name string) (*memport.OutputBuilder, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %q does not exist", name)
	}
	return g.newOutput(node)
}

func (g *Graph) newOutput(node *graphNode) (*memport.OutputBuilder, error) {
	ob, err := node.builder.NewOutputPort(g.config.Output)
	if err != nil {
		return nil, err
	}
	output, ok := ob.(*memport.OutputBuilder)
	if !ok {
		return nil, fmt.Errorf("node %q declared a non in-memory output", node.name)
	}
	return output, nil
}

// Sources returns the nodes without inputs from other nodes, in index order
func (g *Graph) Sources() []string {
	var names []string
	for _, node := range g.order {
		if len(node.inputs) == 0 {
			names = append(names, node.name)
		}
	}
	return names
}

// Sinks returns the nodes without outputs to other nodes, in index order
func (g *Graph) Sinks() []string {
	var names []string
	for _, node := range g.order {
		if len(node.outputs) == 0 {
			names = append(names, node.name)
		}
	}
	return names
}

// Channel returns the channel of the first edge from fromName to toName
func (g *Graph) Channel(fromName, toName string) *memport.Channel {
	from, exists := g.nodes[fromName]
	if !exists {
		return nil
	}
	for _, edge := range from.outputs {
		if edge.to.name == toName {
			return edge.channel
		}
	}
	return nil
}

// Notifiers returns the endpoints that carry end signals of each input of
// name back to its producer, in input port order. They are available once
// Build succeeded.
func (g *Graph) Notifiers(name string) []core.EndNotifier {
	node, exists := g.nodes[name]
	if !exists {
		return nil
	}
	return node.notify
}

// Build assembles every operator in index order
func (g *Graph) Build() ([]*Operator, error) {
	ops := make([]*Operator, 0, len(g.order))
	for _, node := range g.order {
		op, err := node.builder.Build()
		if err != nil {
			return nil, fmt.Errorf("build node %q: %w", node.name, err)
		}
		ops = append(ops, op)
		node.notify = node.builder.TakeInputsNotify()
	}
	g.logger.Debug("graph built",
		telemetry.Int("operators", len(ops)),
		telemetry.Int("sources", len(g.Sources())),
		telemetry.Int("sinks", len(g.Sinks())))
	return ops, nil
}

// NewRunner creates a runner over the operators of the graph. active may be
// nil.
func (g *Graph) NewRunner(ops []*Operator, active func(op *Operator) bool) *Runner {
	return NewRunner(RunnerConfig{
		Operators:     ops,
		Active:        active,
		MaxIdleRounds: g.config.Runner.MaxIdleRounds,
		Logger:        g.logger,
	})
}
