package channel

import (
	"github.com/nx-io/framed/arena"
	"github.com/nx-io/framed/reactor"
)

// drainEgress implements §4.4. budget bounds how many refill rounds it
// performs before giving up voluntarily even if more work remains and the
// socket is still writable: 0 means drain until the ring and staging array
// are empty or the socket blocks, iovMax (the value handleReadable and the
// write-wake handle pass) caps a single read callback's egress work so one very write-heavy
// connection cannot starve the reactor's fairness to the rest.
func (c *Channel) drainEgress(budget int) {
	defer c.syncWriteInterest()
	rounds := 0
	for {
		c.refillStaging()
		if len(c.staging) == 0 {
			return
		}

		c.coalesceTail()

		n, err := c.writeStaging()
		if err != nil {
			if isWouldBlock(err) {
				return
			}
			if c.log != nil {
				c.log.Err().Err(err).Uint64("channel", c.id).Log("channel: vectored write failed")
			}
			c.fail(err)
			return
		}
		if n == 0 {
			return // socket not writable right now; staging left intact
		}
		c.advanceStaging(n)

		rounds++
		if budget > 0 && rounds >= budget {
			return
		}
		if len(c.staging) > 0 {
			// a partial write remains; the socket will report writable
			// again when it can accept more, so stop this pass rather
			// than busy-spin on a non-blocking write that will just
			// return 0
			return
		}
		if c.egress.Size() == 0 {
			return
		}
	}
}

// syncWriteInterest arms EventWrite on the socket whenever a drain pass
// leaves unwritten bytes behind — either a short/blocked writeStaging call
// (egress.go's writeStaging returning less than the full staging array) or
// undrained items still sitting in the per-CPU ring — and disarms it once
// there is nothing left, so a stalled write is retried the moment the
// socket reports writable again rather than waiting on the next Write call
// or read event to re-signal the wake handle.
func (c *Channel) syncWriteInterest() {
	if c.State() != StateOpen {
		return
	}
	pending := len(c.staging) > 0 || c.egress.Size() > 0
	if pending == c.writeArmed {
		return
	}
	events := reactor.EventRead
	if pending {
		events |= reactor.EventWrite
	}
	if err := c.rct.ModifyFD(c.fd, events); err != nil {
		if c.log != nil {
			c.log.Err().Err(err).Uint64("channel", c.id).Log("channel: failed to sync write interest")
		}
		return
	}
	c.writeArmed = pending
}

// refillStaging tops up the staging array from the per-CPU ring, up to
// iovMax total entries, scanning queues round-robin.
func (c *Channel) refillStaging() {
	room := c.iovMax - len(c.staging)
	if room <= 0 {
		return
	}
	c.staging = c.egress.Drain(c.staging, len(c.staging)+room)
}

// coalesceTail implements the tail-coalescing step: entries at the end of
// the staging array no larger than CopyThresh are copied into one fresh
// arena and replaced by a single descriptor, bounding both scatter-entry
// count and syscall amplification for small-message traffic.
func (c *Channel) coalesceTail() {
	n := len(c.staging)
	total := 0
	start := n
	for start > 0 && len(c.staging[start-1].Base) <= CopyThresh {
		total += len(c.staging[start-1].Base)
		start--
	}
	tailCount := n - start
	if tailCount < 2 || total <= CopyThresh {
		return
	}

	dst := c.writePool.Get()
	if dst.Size() < total {
		dst.Release()
		dst = arena.New(total, c.id)
	}
	off := 0
	for i := start; i < n; i++ {
		off += copy(dst.Bytes()[off:], c.staging[i].Base)
		c.staging[i].Arena.Release()
	}
	c.staging = append(c.staging[:start], EgressSlot{Base: dst.Bytes()[:off], Arena: dst})
}

// writeStaging issues one non-blocking vectored write across every
// descriptor currently in the staging array.
func (c *Channel) writeStaging() (int, error) {
	iovs := make([][]byte, len(c.staging))
	for i, s := range c.staging {
		iovs[i] = s.Base
	}
	return reactor.WritevFD(c.fd, iovs)
}

// advanceStaging drops fully-written descriptors from the front of the
// staging array and, if a descriptor was only partially written, mutates
// it in place to cover just the unwritten remainder — the rephrased
// "write_a_batch" contract from §9's open questions.
func (c *Channel) advanceStaging(written int) {
	i := 0
	for i < len(c.staging) && written >= len(c.staging[i].Base) {
		written -= len(c.staging[i].Base)
		c.staging[i].Arena.Release()
		i++
	}
	if i > 0 {
		c.staging = c.staging[i:]
	}
	if written > 0 && len(c.staging) > 0 {
		c.staging[0].Base = c.staging[0].Base[written:]
	}
}
