// Package memport is an in-memory data plane for operators. A Channel links
// one output to one input inside a single process; it is what tests and the
// reference Runner use in place of a networked transport.
package memport

import (
	"errors"
	"slices"

	"github.com/creastat/dataflow/core"
)

var (
	ErrClosed        = errors.New("port closed")
	ErrChannelFailed = errors.New("channel failed")
)

// Channel queues batches and end signals from a producer and serves them to
// an operator as its core.Input. Channel is not safe for concurrent use.
type Channel struct {
	port      core.Port
	queue     []core.Batch
	ends      []core.EndSignal
	blocked   map[core.Tag]int
	cancelled map[core.Tag]struct{}
	rootEnded bool
	acked     []core.EndSignal
	err       error
}

// NewChannel creates an empty channel feeding the given input port
func NewChannel(target core.Port) *Channel {
	return &Channel{
		port:      target,
		blocked:   make(map[core.Tag]int),
		cancelled: make(map[core.Tag]struct{}),
	}
}

// Port returns the input port the channel feeds
func (c *Channel) Port() core.Port {
	return c.port
}

// Send enqueues a batch. Batches of a cancelled tag are discarded.
func (c *Channel) Send(b core.Batch) {
	if _, ok := c.cancelled[b.Tag]; ok {
		return
	}
	c.queue = append(c.queue, b)
}

// SendEnd enqueues the end of a scope
func (c *Channel) SendEnd(sig core.EndSignal) {
	c.ends = append(c.ends, sig)
}

// Fail makes every later HasOutstanding call report err
func (c *Channel) Fail(err error) {
	c.err = err
}

// Queued returns the number of batches of tag waiting to be pulled
func (c *Channel) Queued(tag core.Tag) int {
	n := 0
	for _, b := range c.queue {
		if b.Tag == tag {
			n++
		}
	}
	return n
}

// Blocked reports whether some output holds tag back
func (c *Channel) Blocked(tag core.Tag) bool {
	return c.blocked[tag] > 0
}

// Cancelled reports whether the consumer gave up on tag
func (c *Channel) Cancelled(tag core.Tag) bool {
	_, ok := c.cancelled[tag]
	return ok
}

// HasOutstanding implements core.Input. Pending end signals count as
// outstanding so the operator is fired to drain them.
func (c *Channel) HasOutstanding() (bool, error) {
	if c.err != nil {
		return false, errors.Join(ErrChannelFailed, c.err)
	}
	return len(c.queue) > 0 || len(c.ends) > 0, nil
}

// IsExhausted implements core.Input
func (c *Channel) IsExhausted() bool {
	return c.rootEnded && len(c.queue) == 0 && len(c.ends) == 0
}

// ExtractEnd implements core.Input. An end is held back while data of its
// scope, or of a scope nested in it, is still queued.
func (c *Channel) ExtractEnd() (core.EndSignal, bool) {
	for i, end := range c.ends {
		if c.hasData(end.Tag) {
			continue
		}
		c.ends = slices.Delete(c.ends, i, i+1)
		if end.Tag.IsRoot() {
			c.rootEnded = true
		}
		return end, true
	}
	return core.EndSignal{}, false
}

func (c *Channel) hasData(tag core.Tag) bool {
	for _, b := range c.queue {
		if b.Tag == tag || tag.IsParentOf(b.Tag) {
			return true
		}
	}
	return false
}

// Block implements core.Input. The tag stays blocked until every handle
// returned for it has been released.
func (c *Channel) Block(tag core.Tag) core.BlockHandle {
	c.blocked[tag]++
	return &blockHandle{ch: c, tag: tag}
}

// CancelScope implements core.Input. Queued data of the tag is dropped.
func (c *Channel) CancelScope(tag core.Tag) {
	if _, ok := c.cancelled[tag]; ok {
		return
	}
	c.cancelled[tag] = struct{}{}
	c.queue = slices.DeleteFunc(c.queue, func(b core.Batch) bool {
		return b.Tag == tag
	})
}

// Pull implements core.BatchReader. It returns the oldest batch whose tag is
// not blocked.
func (c *Channel) Pull() (core.Batch, bool) {
	for i, b := range c.queue {
		if c.blocked[b.Tag] > 0 {
			continue
		}
		c.queue = slices.Delete(c.queue, i, i+1)
		return b, true
	}
	return core.Batch{}, false
}

// NotifyEnd implements core.EndNotifier. The consumer reports back that it
// is done with a scope; the producer reads the reports with Acked.
func (c *Channel) NotifyEnd(sig core.EndSignal) error {
	c.acked = append(c.acked, sig)
	return nil
}

// Acked returns the end signals the consumer reported back, in order
func (c *Channel) Acked() []core.EndSignal {
	return c.acked
}

// Requeue implements core.BatchRequeuer
func (c *Channel) Requeue(b core.Batch) {
	if _, ok := c.cancelled[b.Tag]; ok {
		return
	}
	c.queue = slices.Insert(c.queue, 0, b)
}

type blockHandle struct {
	ch       *Channel
	tag      core.Tag
	released bool
}

// Release lifts this block; releasing twice is a no-op
func (h *blockHandle) Release() {
	if h.released {
		return
	}
	h.released = true
	if h.ch.blocked[h.tag] <= 1 {
		delete(h.ch.blocked, h.tag)
		return
	}
	h.ch.blocked[h.tag]--
}

type releaser interface {
	Release()
}
