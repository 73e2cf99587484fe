package dataflow

import (
	"testing"

	"github.com/creastat/dataflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Property 1: For any arrival order of the ends of N inputs, the barrier
// SHALL report the scope exactly once, on the last distinct arrival, with
// the union of all weights.
func TestPropertyEndBarrierCompletesOnLastInput(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		inputs := rapid.IntRange(2, 6).Draw(rt, "inputs")
		ports := rapid.Permutation(rangeOf(inputs)).Draw(rt, "order")
		// duplicates of already reported ports are interleaved
		dups := rapid.SliceOfN(rapid.IntRange(0, inputs-1), 0, 4).Draw(rt, "dups")
		tag := core.NewTag(rapid.SliceOfN(rapid.Uint32(), 0, 3).Draw(rt, "tag")...)

		b := NewEndBarrier(inputs, 3)
		completions := 0
		var result core.EndScope
		reported := map[int]bool{}

		for i, port := range ports {
			end, done, err := b.MergeEnd(core.EndScope{Port: port, Tag: tag, Weight: core.NewWeight(uint32(port))})
			require.NoError(rt, err)
			reported[port] = true
			if done {
				completions++
				result = end
				if i != len(ports)-1 {
					rt.Fatalf("completed after %d of %d inputs", i+1, inputs)
				}
			}
			if i < len(dups) && reported[dups[i]] && i != len(ports)-1 {
				_, done, err := b.MergeEnd(core.EndScope{Port: dups[i], Tag: tag, Weight: core.NewWeight(99)})
				require.NoError(rt, err)
				assert.False(rt, done, "duplicate report must not complete the scope")
			}
		}

		assert.Equal(rt, 1, completions)
		assert.Equal(rt, tag, result.Tag)
		want := make([]uint32, inputs)
		for i := range want {
			want[i] = uint32(i)
		}
		assert.True(rt, result.Weight.Equal(core.NewWeight(want...)), "weight %v", result.Weight)
		assert.Zero(rt, b.Pending())
	})
}

func rangeOf(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestEndBarrierSingleInputPassesThrough(t *testing.T) {
	b := NewEndBarrier(1, 2)
	n := core.EndScope{Port: 0, Tag: core.NewTag(4), Weight: core.NewWeight(7)}

	end, done, err := b.MergeEnd(n)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, n, end)
	assert.Zero(t, b.Pending())
}

func TestEndBarrierTracksScopesIndependently(t *testing.T) {
	b := NewEndBarrier(2, 2)

	_, done, err := b.MergeEnd(core.EndScope{Port: 0, Tag: core.NewTag(1)})
	require.NoError(t, err)
	assert.False(t, done)
	_, done, err = b.MergeEnd(core.EndScope{Port: 1, Tag: core.NewTag(1, 1)})
	require.NoError(t, err)
	assert.False(t, done, "a nested scope is a different scope")

	assert.Equal(t, 2, b.Pending())
	assert.Equal(t, 1, b.Reported(core.NewTag(1)))
	assert.Equal(t, 1, b.Reported(core.NewTag(1, 1)))
	assert.Zero(t, b.Reported(core.NewTag(2)))

	end, done, err := b.MergeEnd(core.EndScope{Port: 1, Tag: core.NewTag(1)})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, core.NewTag(1), end.Tag)
	assert.Equal(t, 1, b.Pending())
}

func TestEndBarrierRejectsTooDeepTag(t *testing.T) {
	b := NewEndBarrier(2, 1)
	_, _, err := b.MergeEnd(core.EndScope{Tag: core.NewTag(1, 2)})
	assert.ErrorIs(t, err, core.ErrScopeTooDeep)
	assert.Zero(t, b.Reported(core.NewTag(1, 2)))
}

func TestEndBarrierAllWeightAbsorbs(t *testing.T) {
	b := NewEndBarrier(2, 0)
	_, _, err := b.MergeEnd(core.EndScope{Port: 0, Weight: core.AllWeight()})
	require.NoError(t, err)
	end, done, err := b.MergeEnd(core.EndScope{Port: 1, Weight: core.NewWeight(3)})
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, end.Weight.IsAll())
}
