// Package channel implements the packet-streaming connection abstraction:
// a length-prefixed framing engine over a raw TCP socket, a per-CPU
// lock-free egress queue, and the lifecycle protocol tying them to a
// reactor.Reactor.
package channel

import (
	"sync/atomic"

	"github.com/nx-io/framed/arena"
	"github.com/nx-io/framed/codec"
	"github.com/nx-io/framed/internal/cpuid"
	"github.com/nx-io/framed/internal/logging"
	"github.com/nx-io/framed/reactor"
	"github.com/nx-io/framed/ring"
)

var nextID atomic.Uint64

// EgressSlot is one queued write request: a byte range plus a retaining
// handle to the arena that owns it, so the bytes stay alive until the
// reactor thread has actually written them to the socket.
type EgressSlot struct {
	Base  []byte
	Arena *arena.Arena
}

// ReadHandler receives one framed message, along with the channel it
// arrived on. It runs on the reactor thread; it must not block.
type ReadHandler func(c *Channel, msg codec.Message)

// ErrorHandler receives a fatal channel-level error, immediately before
// the channel transitions to Closing.
type ErrorHandler func(c *Channel, err error)

// CloseHandler is invoked exactly once, on the reactor thread, when a
// channel finishes closing.
type CloseHandler func(c *Channel)

// Channel is a single framed TCP connection. Values are always created via
// New and referenced through the returned pointer; the pointer is safe to
// share across goroutines, but OnRead/OnError/OnClose must be registered
// before the reactor starts servicing the channel's socket (typically from
// within a listener's OnAccept or a client's OnConnect handler), matching
// §9's "no re-entrancy beyond write() and close()" design note.
type Channel struct {
	id  uint64
	fd  int
	rct *reactor.Reactor
	cdc codec.Codec
	log *logging.Logger

	// ingestPool and writePool are private to this channel: an arena's meta
	// tag is tied to the owning channel's id, so pooling across
	// channels would either lose that tag or force every pooled arena to
	// share one id. A per-channel pool keeps the tag accurate and still
	// amortizes allocation across this channel's own rotations.
	ingestPool *arena.Pool
	writePool  *arena.Pool

	curA    *arena.Arena
	written int
	consume int

	egress     *ring.PerCPU[EgressSlot]
	staging    []EgressSlot
	iovMax     int
	writeArmed bool

	writeWake *reactor.WakeHandle
	closeWake *reactor.WakeHandle

	state atomic.Int32

	onRead  ReadHandler
	onError ErrorHandler
	onClose CloseHandler

	refCount atomic.Int32
}

// New wraps fd (already connected, already non-blocking) in a Channel
// registered on rct. The caller (a Listener or Client) owns fd's lifetime
// up until New succeeds; afterward the Channel owns it.
func New(fd int, rct *reactor.Reactor, opts ...Option) (*Channel, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	id := nextID.Add(1)
	c := &Channel{
		id:         id,
		fd:         fd,
		rct:        rct,
		cdc:        cfg.codec,
		log:        cfg.logger,
		ingestPool: arena.NewPool(cfg.arenaSize, id),
		writePool:  arena.NewPool(cfg.writeArenaSize, id),
		iovMax:     cfg.iovMax,
		egress:     ring.NewPerCPU[EgressSlot](cfg.egressQueues, cfg.egressCapacity),
	}
	c.refCount.Store(1)
	c.curA = c.ingestPool.Get()

	c.writeWake = rct.NewWakeHandle(func() { c.drainEgress(c.iovMax) })
	c.closeWake = rct.NewWakeHandle(func() { c.finishClose() })

	if err := reactor.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	if err := rct.RegisterFD(fd, reactor.EventRead, c.onFDEvent); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the channel's stable, opaque identifier.
func (c *Channel) ID() uint64 { return c.id }

// State returns the channel's current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// OnRead registers the handler invoked for every framed message.
func (c *Channel) OnRead(h ReadHandler) { c.onRead = h }

// OnError registers the handler invoked on a fatal channel-level error.
func (c *Channel) OnError(h ErrorHandler) { c.onError = h }

// OnClose registers the handler invoked once the channel has fully closed.
func (c *Channel) OnClose(h CloseHandler) { c.onClose = h }

// Write enqueues frame for asynchronous send. It copies frame into a
// freshly retained arena (the caller's slice is not retained), selects an
// egress queue by the calling goroutine's best-effort CPU id, and wakes
// the reactor thread to drain it. It returns false, without blocking, if
// the channel is closed or the selected egress queue is momentarily full.
func (c *Channel) Write(frame []byte) bool {
	if c.State() != StateOpen {
		return false
	}
	a := c.writePool.Get()
	if a.Size() < len(frame) {
		a.Release()
		a = arena.New(len(frame), c.id)
	}
	n := copy(a.Bytes(), frame)
	slot := EgressSlot{Base: a.Bytes()[:n], Arena: a}

	if !c.egress.Push(cpuid.Current(), slot) {
		a.Release()
		return false
	}
	c.writeWake.Signal()
	return true
}

// Close requests that the channel shut down. Idempotent and safe from any
// goroutine. It does not flush pending egress writes (§4.5, deliberate).
func (c *Channel) Close() {
	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.closeWake.Signal()
	}
}

// closePeer transitions the channel toward Closed the way a graceful
// peer-initiated disconnect does (EOF, or a hangup event): the on-close
// handler still fires, but on-error never does, matching the PingPong and
// ServerClose scenarios' "no error callback is ever invoked" outcome for a
// clean shutdown.
func (c *Channel) closePeer() {
	c.Close()
}

func (c *Channel) fail(err error) {
	if State(c.state.Load()) != StateOpen {
		return
	}
	if c.log != nil {
		c.log.Err().Err(err).Uint64("channel", c.id).Log("channel: fatal error")
	}
	if c.onError != nil {
		c.onError(c, err)
	}
	c.Close()
}

// onFDEvent is the reactor callback registered against the raw socket fd.
func (c *Channel) onFDEvent(ev reactor.Events) {
	if State(c.state.Load()) == StateClosed {
		return
	}
	if ev&reactor.EventError != 0 {
		c.fail(errHangup)
		return
	}
	if ev&reactor.EventHangup != 0 {
		c.closePeer()
		return
	}
	if ev&reactor.EventRead != 0 {
		c.handleReadable()
	}
	if State(c.state.Load()) == StateClosing {
		c.finishClose()
		return
	}
	if ev&reactor.EventWrite != 0 {
		c.drainEgress(c.iovMax)
	}
}

// finishClose runs the terminal transition exactly once, whether reached
// via the close-wake handle or directly from onFDEvent after a fatal I/O
// error observed mid read/write dispatch.
func (c *Channel) finishClose() {
	if !c.state.CompareAndSwap(int32(StateClosing), int32(StateClosed)) {
		return
	}
	_ = c.rct.UnregisterFD(c.fd)
	_ = reactor.CloseFD(c.fd)
	c.writeWake.Remove()
	c.closeWake.Remove()
	c.discardPendingEgress()
	if c.onClose != nil {
		c.onClose(c)
	}
	c.release()
}

// discardPendingEgress releases every arena still retained by a queued but
// never-written EgressSlot, in the staging array and every per-CPU ring.
// Close never attempts to flush these bytes to the peer (§4.5, deliberate)
// but still must not leak the arenas backing them.
func (c *Channel) discardPendingEgress() {
	for _, s := range c.staging {
		s.Arena.Release()
	}
	c.staging = nil

	var buf []EgressSlot
	for {
		buf = buf[:0]
		buf = c.egress.Drain(buf, c.egress.NumQueues())
		if len(buf) == 0 {
			return
		}
		for _, s := range buf {
			s.Arena.Release()
		}
	}
}

// AddRef and release implement §3's shared-ownership count: one held from
// New until finishClose, plus one per caller that wants to keep the
// Channel value alive past a close it observed concurrently (e.g. a
// listener's connection table).
func (c *Channel) AddRef() { c.refCount.Add(1) }

func (c *Channel) release() {
	if c.refCount.Add(-1) == 0 && c.curA != nil {
		c.curA.Release()
	}
}

var errHangup = &fatalError{"channel: socket hangup or error"}

type fatalError struct{ msg string }

func (e *fatalError) Error() string { return e.msg }
