package channel

import (
	"errors"

	"github.com/nx-io/framed/arena"
	"github.com/nx-io/framed/codec"
	"github.com/nx-io/framed/reactor"
)

// handleReadable is the reactor callback body for read-ready events (§4.2).
// It rotates the ingress arena if needed, performs one non-blocking read,
// then drives the framing loop over whatever arrived.
func (c *Channel) handleReadable() {
	c.maybeRotate()

	free := c.curA.Bytes()[c.written:]
	if len(free) == 0 {
		// the arena is full and less than ¾ of it has been consumed, so
		// maybeRotate did not rotate; nothing is read on this callback
		return
	}

	n, err := reactor.ReadFD(c.fd, free)
	if err != nil {
		if isWouldBlock(err) {
			return
		}
		c.fail(err)
		return
	}
	if n == 0 {
		c.closePeer()
		return
	}
	c.written += n

	c.runFramingLoop()

	c.drainEgress(c.iovMax)
}

// runFramingLoop implements §4.2 steps 1-3: repeatedly hand the codec the
// unconsumed prefix, bounded by MaxReadSize, until it peels nothing more.
func (c *Channel) runFramingLoop() {
	for {
		available := c.written - c.consume
		if available <= 0 {
			return
		}
		if available > MaxReadSize {
			available = MaxReadSize
		}

		view := arena.NewBoundedView(c.curA, c.consume, c.consume+available)
		consumed, err := codec.ReadBatch(c.cdc, view, available, func(msg codec.Message) {
			if c.onRead != nil {
				c.onRead(c, msg)
			}
		})
		c.consume += consumed
		if err != nil {
			if errors.Is(err, codec.ErrCorrupted) {
				c.fail(err)
				return
			}
			c.fail(err)
			return
		}
		if consumed == 0 {
			// incomplete prefix: wait for more bytes on the next
			// read-ready callback
			return
		}
	}
}

// maybeRotate implements the arena rotation discipline (§4.2): once the
// consumed cursor has eaten at least ¾ of the arena's size and the arena is
// physically full, the unconsumed tail is copied to a fresh arena so the
// codec always sees a contiguous prefix without the arena growing without
// bound.
func (c *Channel) maybeRotate() {
	if c.consume < (3*c.curA.Size())/4 || c.written != c.curA.Size() {
		return
	}

	tail := c.written - c.consume
	var next *arena.Arena
	if tail <= c.curA.Size() {
		next = c.ingestPool.Get()
	} else {
		next = arena.New(tail+c.curA.Size(), c.id)
	}

	copy(next.Bytes(), c.curA.Bytes()[c.consume:c.written])

	old := c.curA
	c.curA = next
	c.written = tail
	c.consume = 0
	old.Release()
}
