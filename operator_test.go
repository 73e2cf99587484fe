package dataflow

import (
	"errors"
	"testing"

	"github.com/creastat/dataflow/core"
	"github.com/creastat/dataflow/memport"
	"github.com/creastat/infra/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: "error"})
}

// callLog records the order in which ports and the computation are invoked
type callLog struct {
	calls []string
}

func (l *callLog) add(call string) {
	l.calls = append(l.calls, call)
}

type MockInput struct {
	mock.Mock
	name string
	log  *callLog
}

func (m *MockInput) HasOutstanding() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockInput) IsExhausted() bool {
	return m.Called().Bool(0)
}

func (m *MockInput) ExtractEnd() (core.EndSignal, bool) {
	m.log.add(m.name + ".ExtractEnd")
	args := m.Called()
	return args.Get(0).(core.EndSignal), args.Bool(1)
}

func (m *MockInput) Block(tag core.Tag) core.BlockHandle {
	m.log.add(m.name + ".Block")
	return m.Called(tag).Get(0)
}

func (m *MockInput) CancelScope(tag core.Tag) {
	m.log.add(m.name + ".CancelScope")
	m.Called(tag)
}

type MockOutput struct {
	mock.Mock
	name string
	log  *callLog
}

func (m *MockOutput) TryUnblock() error {
	m.log.add(m.name + ".TryUnblock")
	return m.Called().Error(0)
}

func (m *MockOutput) Blocks() []core.BlockState {
	args := m.Called()
	if bs := args.Get(0); bs != nil {
		return bs.([]core.BlockState)
	}
	return nil
}

func (m *MockOutput) NotifyEnd(sig core.EndSignal) error {
	m.log.add(m.name + ".NotifyEnd")
	return m.Called(sig).Error(0)
}

func (m *MockOutput) Cancel(tag core.Tag) error {
	m.log.add(m.name + ".Cancel")
	return m.Called(tag).Error(0)
}

func (m *MockOutput) Flush() error {
	m.log.add(m.name + ".Flush")
	return m.Called().Error(0)
}

func (m *MockOutput) Close() error {
	m.log.add(m.name + ".Close")
	return m.Called().Error(0)
}

type MockCore struct {
	mock.Mock
	log *callLog
}

func (m *MockCore) OnReceive(inputs []core.Input, outputs []core.Output) error {
	m.log.add("core.OnReceive")
	return m.Called(inputs, outputs).Error(0)
}

func (m *MockCore) OnNotify(n core.EndScope, outputs []core.Output) error {
	m.log.add("core.OnNotify")
	return m.Called(n, outputs).Error(0)
}

func (m *MockCore) OnCancel(n core.CancelScope, inputs []core.Input) error {
	m.log.add("core.OnCancel")
	return m.Called(n, inputs).Error(0)
}

// fakeBlock is a block state whose registered handles can be inspected
type fakeBlock struct {
	tag     core.Tag
	handles map[int]core.BlockHandle
}

func (b *fakeBlock) Tag() core.Tag { return b.tag }

func (b *fakeBlock) HasBlock(input int) bool {
	_, ok := b.handles[input]
	return ok
}

func (b *fakeBlock) Block(input int, handle core.BlockHandle) {
	b.handles[input] = handle
}

// staticOutput is an output builder for an already built output
type staticOutput struct {
	port   core.Port
	output core.Output
}

func (s staticOutput) Port() core.Port { return s.port }

func (s staticOutput) Build() (core.Output, bool) { return s.output, true }

func newTestOperator(t *testing.T, c core.GeneralOperator, inputs []core.Input, outputs []core.Output) *Operator {
	t.Helper()
	b := NewOperatorBuilder(BuilderConfig{
		Info:   core.OperatorInfo{Name: "test", Index: 1, ScopeLevel: 2},
		Core:   c,
		Logger: testLogger(),
	})
	for i, input := range inputs {
		require.NoError(t, b.AddInput(core.NewPort(1, i), input, nil))
	}
	for i, output := range outputs {
		require.NoError(t, b.AddOutput(staticOutput{port: core.NewPort(1, i), output: output}))
	}
	op, err := b.Build()
	require.NoError(t, err)
	return op
}

// mockShape builds one mocked input and one mocked output around a mocked
// notifiable computation
func mockShape(t *testing.T) (*Operator, *MockInput, *MockOutput, *MockCore, *callLog) {
	log := &callLog{}
	in := &MockInput{name: "in", log: log}
	out := &MockOutput{name: "out", log: log}
	c := &MockCore{log: log}
	op := newTestOperator(t, core.WithNotify(c), []core.Input{in}, []core.Output{out})
	return op, in, out, c, log
}

func TestFireRunsStepsInOrder(t *testing.T) {
	op, in, out, c, log := mockShape(t)
	sig := core.EndSignal{Tag: core.NewTag(1), Weight: core.NewWeight(0)}

	out.On("TryUnblock").Return(nil)
	out.On("Blocks").Return(nil)
	out.On("Flush").Return(nil)
	c.On("OnReceive", mock.Anything, mock.Anything).Return(nil)
	c.On("OnNotify", core.EndScope{Port: 0, Tag: sig.Tag, Weight: sig.Weight}, mock.Anything).Return(nil)
	in.On("ExtractEnd").Return(sig, true).Once()
	in.On("ExtractEnd").Return(core.EndSignal{}, false)

	require.NoError(t, op.Fire())

	assert.Equal(t, []string{
		"out.TryUnblock",
		"core.OnReceive",
		"in.ExtractEnd",
		"core.OnNotify",
		"in.ExtractEnd",
		"out.Flush",
	}, log.calls)
	assert.Equal(t, uint64(1), op.Stats().Fires)
	c.AssertExpectations(t)
}

func TestFireCarriesRetryableError(t *testing.T) {
	log := &callLog{}
	a := &MockInput{name: "a", log: log}
	b := &MockInput{name: "b", log: log}
	out := &MockOutput{name: "out", log: log}
	c := &MockCore{log: log}
	op := newTestOperator(t, core.WithNotify(c), []core.Input{a, b}, []core.Output{out})
	busy := core.Retryable(errors.New("busy"))

	out.On("TryUnblock").Return(nil)
	out.On("Blocks").Return(nil)
	out.On("Flush").Return(nil)
	c.On("OnReceive", mock.Anything, mock.Anything).Return(busy)

	pending := map[int][]core.EndSignal{
		0: {{Tag: core.NewTag(1), Weight: core.NewWeight(0)}, {Tag: core.NewTag(2), Weight: core.NewWeight(0)}},
		1: {{Tag: core.NewTag(1), Weight: core.NewWeight(1)}, {Tag: core.NewTag(3), Weight: core.NewWeight(1)}, {Weight: core.NewWeight(1)}},
	}
	for port, input := range []*MockInput{a, b} {
		for _, sig := range pending[port] {
			input.On("ExtractEnd").Return(sig, true).Once()
			c.On("OnNotify", core.EndScope{Port: port, Tag: sig.Tag, Weight: sig.Weight}, mock.Anything).Return(nil).Once()
		}
		input.On("ExtractEnd").Return(core.EndSignal{}, false)
	}

	err := op.Fire()
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	c.AssertNumberOfCalls(t, "OnNotify", 5)
	c.AssertExpectations(t)
	assert.Equal(t, []string{
		"out.TryUnblock",
		"core.OnReceive",
		"a.ExtractEnd", "core.OnNotify", "a.ExtractEnd", "core.OnNotify", "a.ExtractEnd",
		"b.ExtractEnd", "core.OnNotify", "b.ExtractEnd", "core.OnNotify", "b.ExtractEnd", "core.OnNotify", "b.ExtractEnd",
		"out.Flush",
	}, log.calls, "every pending end of every input is drained before the flush")
}

func TestFireReturnsFatalErrorAtOnce(t *testing.T) {
	op, in, out, c, log := mockShape(t)
	broken := errors.New("broken")

	out.On("TryUnblock").Return(nil)
	out.On("Blocks").Return(nil)
	c.On("OnReceive", mock.Anything, mock.Anything).Return(broken)

	err := op.Fire()
	assert.ErrorIs(t, err, broken)
	assert.NotContains(t, log.calls, "in.ExtractEnd")
	assert.NotContains(t, log.calls, "out.Flush")
	assert.Equal(t, uint64(1), op.Stats().Fires, "a failed fire is still counted")
	in.AssertNotCalled(t, "ExtractEnd")
}

func TestFireStopsWhenUnblockFails(t *testing.T) {
	op, _, out, c, _ := mockShape(t)
	out.On("TryUnblock").Return(errors.New("unreachable"))

	assert.Error(t, op.Fire())
	c.AssertNotCalled(t, "OnReceive", mock.Anything, mock.Anything)
}

func TestFireRegistersBlocksOnEveryInput(t *testing.T) {
	log := &callLog{}
	a := &MockInput{name: "a", log: log}
	b := &MockInput{name: "b", log: log}
	out := &MockOutput{name: "out", log: log}
	c := &MockCore{log: log}
	op := newTestOperator(t, core.WithNotify(c), []core.Input{a, b}, []core.Output{out})

	tag := core.NewTag(2)
	block := &fakeBlock{tag: tag, handles: map[int]core.BlockHandle{1: "held"}}

	out.On("TryUnblock").Return(nil)
	out.On("Blocks").Return([]core.BlockState{block})
	out.On("Flush").Return(nil)
	c.On("OnReceive", mock.Anything, mock.Anything).Return(nil)
	a.On("Block", tag).Return("handle-a")
	a.On("ExtractEnd").Return(core.EndSignal{}, false)
	b.On("ExtractEnd").Return(core.EndSignal{}, false)

	require.NoError(t, op.Fire())

	assert.Equal(t, "handle-a", block.handles[0])
	assert.Equal(t, "held", block.handles[1], "an input already holding the tag is not blocked again")
	b.AssertNotCalled(t, "Block", mock.Anything)
}

func TestFireAfterClose(t *testing.T) {
	op, _, out, _, _ := mockShape(t)
	out.On("Close").Return(nil)

	op.Close()
	assert.ErrorIs(t, op.Fire(), core.ErrOperatorClosed)
	assert.Zero(t, op.Stats().Fires)
}

func TestOperatorStateTable(t *testing.T) {
	tests := []struct {
		name        string
		blocked     bool
		exhausted   bool
		outstanding bool
		finished    bool
		idle        bool
		state       core.State
	}{
		{name: "exhausted and unblocked", exhausted: true, finished: true, idle: true, state: core.StateFinished},
		{name: "exhausted but blocked", blocked: true, exhausted: true, state: core.StateActive},
		{name: "waiting for data", idle: true, state: core.StateIdle},
		{name: "data available", outstanding: true, state: core.StateActive},
		{name: "data behind a block", blocked: true, outstanding: true, state: core.StateActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, in, out, _, _ := mockShape(t)
			var blocks []core.BlockState
			if tt.blocked {
				blocks = []core.BlockState{&fakeBlock{tag: core.NewTag(1)}}
			}
			out.On("Blocks").Return(blocks)
			in.On("IsExhausted").Return(tt.exhausted)
			in.On("HasOutstanding").Return(tt.outstanding, nil)

			assert.Equal(t, tt.finished, op.IsFinished())
			idle, err := op.IsIdle()
			require.NoError(t, err)
			assert.Equal(t, tt.idle, idle)
			state, err := op.State()
			require.NoError(t, err)
			assert.Equal(t, tt.state, state)
		})
	}
}

func TestHasOutstandingPropagatesInputError(t *testing.T) {
	op, in, out, _, _ := mockShape(t)
	failed := errors.New("link down")
	out.On("Blocks").Return(nil)
	in.On("HasOutstanding").Return(false, failed)

	_, err := op.HasOutstanding()
	assert.ErrorIs(t, err, failed)
	_, err = op.IsIdle()
	assert.ErrorIs(t, err, failed)
}

func TestSchedulable(t *testing.T) {
	op, in, out, _, _ := mockShape(t)
	in.On("HasOutstanding").Return(false, nil)

	ok, err := op.Schedulable(false)
	require.NoError(t, err)
	assert.False(t, ok, "no data and not active")

	ok, err = op.Schedulable(true)
	require.NoError(t, err)
	assert.True(t, ok, "an output without capacity reporting is assumed to accept data")

	out.On("Close").Return(nil)
	op.Close()
	ok, err = op.Schedulable(true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSchedulableWaitsForCapacity(t *testing.T) {
	spec := core.OutputSpec{BatchSize: 1, ScopeCapacity: 1}
	in := memport.NewChannel(core.NewPort(1, 0))
	target := memport.NewChannel(core.NewPort(2, 0))
	out := memport.NewOutput(core.NewPort(1, 0), 2, spec, target)
	op := newTestOperator(t, core.Simple(passthrough{}), []core.Input{in}, []core.Output{out})

	in.Send(core.Batch{Tag: core.NewTag(1), Records: []any{1}})
	in.Send(core.Batch{Tag: core.NewTag(1), Records: []any{2}})
	require.NoError(t, op.Fire())

	assert.Len(t, out.Blocks(), 1)
	assert.True(t, in.Blocked(core.NewTag(1)), "the input holds the blocked scope back")
	ok, err := op.Schedulable(true)
	require.NoError(t, err)
	assert.False(t, ok)

	_, pulled := target.Pull()
	require.True(t, pulled)
	ok, err = op.Schedulable(true)
	require.NoError(t, err)
	assert.False(t, ok, "one batch of the scope is still in flight")

	_, pulled = target.Pull()
	require.True(t, pulled)
	ok, err = op.Schedulable(true)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, op.Fire())
	assert.False(t, in.Blocked(core.NewTag(1)))
}

func TestCancelOrder(t *testing.T) {
	op, _, out, c, log := mockShape(t)
	tag := core.NewTag(3)
	out.On("Cancel", tag).Return(nil)
	c.On("OnCancel", core.CancelScope{Port: 0, Tag: tag}, mock.Anything).Return(nil)

	require.NoError(t, op.Cancel(0, tag))
	assert.Equal(t, []string{"out.Cancel", "core.OnCancel"}, log.calls)
}

func TestCancelUnknownPort(t *testing.T) {
	op, _, _, _, _ := mockShape(t)
	assert.ErrorIs(t, op.Cancel(1, core.NewTag()), core.ErrUnknownPort)
	assert.ErrorIs(t, op.Cancel(-1, core.NewTag()), core.ErrUnknownPort)
}

func TestCancelAfterClose(t *testing.T) {
	op, _, out, c, _ := mockShape(t)
	out.On("Close").Return(nil)

	op.Close()
	assert.ErrorIs(t, op.Cancel(0, core.NewTag(1)), core.ErrOperatorClosed)
	out.AssertNotCalled(t, "Cancel", mock.Anything)
	c.AssertNotCalled(t, "OnCancel", mock.Anything, mock.Anything)
}

func TestCancelIsIdempotent(t *testing.T) {
	in := memport.NewChannel(core.NewPort(1, 0))
	out := memport.NewOutput(core.NewPort(1, 0), 2, core.DefaultOutputSpec(), nil)
	op := newTestOperator(t, core.Simple(passthrough{}), []core.Input{in}, []core.Output{out})

	require.NoError(t, op.Cancel(0, core.NewTag(4)))
	require.NoError(t, op.Cancel(0, core.NewTag(4)))
	assert.True(t, out.Cancelled(core.NewTag(4)))
	assert.True(t, in.Cancelled(core.NewTag(4)))
}

func TestCloseSurvivesFailingOutput(t *testing.T) {
	log := &callLog{}
	first := &MockOutput{name: "first", log: log}
	second := &MockOutput{name: "second", log: log}
	c := &MockCore{log: log}
	op := newTestOperator(t, core.WithNotify(c), nil, []core.Output{first, second})

	first.On("Close").Return(errors.New("peer gone"))
	second.On("Close").Return(nil)

	op.Close()
	op.Close()

	assert.Equal(t, []string{"first.Close", "second.Close"}, log.calls, "closing twice does nothing")
	state, err := op.State()
	require.NoError(t, err)
	assert.Equal(t, core.StateClosed, state)
}

// passthrough moves every available batch from every input to every output
type passthrough struct{}

func (passthrough) OnReceive(inputs []core.Input, outputs []core.Output) error {
	for _, input := range inputs {
		reader := input.(core.BatchReader)
		for {
			b, ok := reader.Pull()
			if !ok {
				break
			}
			for _, output := range outputs {
				if err := output.(core.BatchWriter).Push(b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Scenario: two inputs feed one output. The scope ends downstream only after
// both inputs ended it, carrying both weights.
func TestFanInEndsAfterAllInputs(t *testing.T) {
	a := memport.NewChannel(core.NewPort(1, 0))
	b := memport.NewChannel(core.NewPort(1, 1))
	x := memport.NewOutput(core.NewPort(1, 0), 2, core.DefaultOutputSpec(), nil)
	op := newTestOperator(t, core.Simple(passthrough{}), []core.Input{a, b}, []core.Output{x})
	tag := core.NewTag(1)

	a.Send(core.Batch{Tag: tag, Records: []any{"a"}})
	a.SendEnd(core.EndSignal{Tag: tag, Weight: core.NewWeight(10)})
	require.NoError(t, op.Fire())
	assert.Empty(t, x.Ends())
	assert.Len(t, x.Delivered(), 1, "data of the open scope is flushed")

	b.SendEnd(core.EndSignal{Tag: tag, Weight: core.NewWeight(11)})
	require.NoError(t, op.Fire())
	require.Len(t, x.Ends(), 1)
	assert.Equal(t, tag, x.Ends()[0].Tag)
	assert.True(t, x.Ends()[0].Weight.Equal(core.NewWeight(10, 11)))
}

// Scenario: one input feeds two outputs. The input is cancelled only once
// both outputs gave the scope up.
func TestFanOutCancelsAfterAllOutputs(t *testing.T) {
	in := memport.NewChannel(core.NewPort(1, 0))
	x := memport.NewOutput(core.NewPort(1, 0), 2, core.DefaultOutputSpec(), nil)
	y := memport.NewOutput(core.NewPort(1, 1), 2, core.DefaultOutputSpec(), nil)
	op := newTestOperator(t, core.Simple(passthrough{}), []core.Input{in}, []core.Output{x, y})
	tag := core.NewTag(6)

	require.NoError(t, op.Cancel(0, tag))
	assert.False(t, in.Cancelled(tag))
	require.NoError(t, op.Cancel(1, tag))
	assert.True(t, in.Cancelled(tag))
}

// Scenario: one input to two outputs broadcasts an end to both in port order.
func TestEndBroadcastInPortOrder(t *testing.T) {
	log := &callLog{}
	in := &MockInput{name: "in", log: log}
	x := &MockOutput{name: "x", log: log}
	y := &MockOutput{name: "y", log: log}
	op := newTestOperator(t, core.Simple(noop{}), []core.Input{in}, []core.Output{x, y})
	sig := core.EndSignal{Tag: core.NewTag(2), Weight: core.NewWeight(1)}

	for _, out := range []*MockOutput{x, y} {
		out.On("TryUnblock").Return(nil)
		out.On("Blocks").Return(nil)
		out.On("NotifyEnd", sig).Return(nil)
		out.On("Flush").Return(nil)
	}
	in.On("ExtractEnd").Return(sig, true).Once()
	in.On("ExtractEnd").Return(core.EndSignal{}, false)

	require.NoError(t, op.Fire())
	assert.Equal(t, []string{
		"x.TryUnblock", "y.TryUnblock",
		"in.ExtractEnd", "x.NotifyEnd", "y.NotifyEnd", "in.ExtractEnd",
		"x.Flush", "y.Flush",
	}, log.calls)
}

type noop struct{}

func (noop) OnReceive([]core.Input, []core.Output) error { return nil }
