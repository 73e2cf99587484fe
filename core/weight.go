package core

import (
	"slices"
	"strconv"
	"strings"
)

// Weight records which upstream producers have confirmed the end of a scope.
// Merging is a set union, so it is associative, commutative and idempotent:
// partial merges converge to the same value in any order.
type Weight struct {
	all   bool
	peers []uint32 // sorted, unique; nil when all is set
}

// AllWeight returns a weight that already covers every producer
func AllWeight() Weight {
	return Weight{all: true}
}

// NewWeight returns a weight contributed by the given producers
func NewWeight(peers ...uint32) Weight {
	if len(peers) == 0 {
		return Weight{}
	}
	p := slices.Clone(peers)
	slices.Sort(p)
	return Weight{peers: slices.Compact(p)}
}

// IsAll reports whether the weight covers every producer
func (w Weight) IsAll() bool {
	return w.all
}

// Count returns the number of distinct contributors, or -1 for an all-weight
func (w Weight) Count() int {
	if w.all {
		return -1
	}
	return len(w.peers)
}

// Contains reports whether peer contributed to the weight
func (w Weight) Contains(peer uint32) bool {
	if w.all {
		return true
	}
	_, found := slices.BinarySearch(w.peers, peer)
	return found
}

// Peers returns a copy of the contributors. It is nil for an all-weight.
func (w Weight) Peers() []uint32 {
	if w.all {
		return nil
	}
	return slices.Clone(w.peers)
}

// Merge folds other into w
func (w *Weight) Merge(other Weight) {
	*w = w.Merged(other)
}

// Merged returns the union of w and other without modifying either
func (w Weight) Merged(other Weight) Weight {
	if w.all || other.all {
		return Weight{all: true}
	}
	out := make([]uint32, 0, len(w.peers)+len(other.peers))
	i, j := 0, 0
	for i < len(w.peers) && j < len(other.peers) {
		switch a, b := w.peers[i], other.peers[j]; {
		case a < b:
			out = append(out, a)
			i++
		case a > b:
			out = append(out, b)
			j++
		default:
			out = append(out, a)
			i++
			j++
		}
	}
	out = append(out, w.peers[i:]...)
	out = append(out, other.peers[j:]...)
	if len(out) == 0 {
		return Weight{}
	}
	return Weight{peers: out}
}

// Equal reports whether both weights cover the same producers
func (w Weight) Equal(other Weight) bool {
	if w.all || other.all {
		return w.all == other.all
	}
	return slices.Equal(w.peers, other.peers)
}

func (w Weight) String() string {
	if w.all {
		return "all"
	}
	parts := make([]string, len(w.peers))
	for i, p := range w.peers {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
