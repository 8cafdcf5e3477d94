// Package reactor implements the non-blocking, single-goroutine I/O event
// loop that channels, listeners, and clients run on: an epoll or kqueue
// poller plus a cross-thread wake signal, so that producers on arbitrary
// goroutines can prod a socket's owning loop into action without ever
// touching that loop's data structures directly.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nx-io/framed/internal/logging"
)

// State is the reactor's run state.
type State uint32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyRunning = errors.New("reactor: already running")
	ErrNotRunning     = errors.New("reactor: not running")
)

// Reactor owns exactly one poller and one wake descriptor. A listener owns
// one Reactor multiplexing every accepted channel's socket; a client owns
// one Reactor for its single channel.
type Reactor struct {
	poll *poller

	wakeReadFD  int
	wakeWriteFD int

	handlesMu sync.RWMutex
	handles   []*WakeHandle

	state    atomic.Uint32
	stopOnce sync.Once
	done     chan struct{}

	log *logging.Logger
}

// New creates a Reactor without starting it.
func New() (*Reactor, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	rfd, wfd, err := createWakeFD()
	if err != nil {
		p.Close()
		return nil, err
	}
	r := &Reactor{
		poll:        p,
		wakeReadFD:  rfd,
		wakeWriteFD: wfd,
		done:        make(chan struct{}),
		log:         logging.Disabled(),
	}
	r.state.Store(uint32(StateIdle))
	if err := r.poll.Add(rfd, EventRead, func(Events) { r.dispatchWakeups() }); err != nil {
		r.poll.Close()
		CloseFD(rfd)
		return nil, err
	}
	return r, nil
}

// SetLogger installs a diagnostic logger. Must be called before Run.
func (r *Reactor) SetLogger(l *logging.Logger) {
	if l != nil {
		r.log = l
	}
}

// State returns the current run state.
func (r *Reactor) State() State {
	return State(r.state.Load())
}

// RegisterFD binds a socket into this reactor's poller. cb runs on the
// reactor's calling goroutine only.
func (r *Reactor) RegisterFD(fd int, events Events, cb Callback) error {
	return r.poll.Add(fd, events, cb)
}

// ModifyFD changes which readiness conditions are monitored for fd.
func (r *Reactor) ModifyFD(fd int, events Events) error {
	return r.poll.Modify(fd, events)
}

// UnregisterFD stops monitoring fd. See poller.Remove for the callback
// lifetime caveat: the caller must not close fd until it is certain no
// dispatched-but-not-yet-run callback still references it.
func (r *Reactor) UnregisterFD(fd int) error {
	return r.poll.Remove(fd)
}

// WakeHandle is a debounced, cross-thread wake signal: any number of calls
// to Signal between two reactor wake-ups collapse into a single callback
// invocation, matching the "at least one drain per successful write"
// contract egress producers need, not "exactly one".
type WakeHandle struct {
	r        *Reactor
	pending  atomic.Bool
	callback func()
}

// NewWakeHandle registers a new debounced wake source on r. callback runs
// on the reactor's goroutine.
func (r *Reactor) NewWakeHandle(callback func()) *WakeHandle {
	h := &WakeHandle{r: r, callback: callback}
	r.handlesMu.Lock()
	r.handles = append(r.handles, h)
	r.handlesMu.Unlock()
	return h
}

// Signal requests a wake-up. Safe to call from any goroutine, including
// concurrently with itself.
func (h *WakeHandle) Signal() {
	if h.pending.CompareAndSwap(false, true) {
		signalWakeFD(h.r.wakeWriteFD)
	}
}

// Remove unregisters the handle so the reactor no longer considers it
// during dispatch. Safe to call once the owning channel or driver is done
// with cross-thread wake-ups.
func (h *WakeHandle) Remove() {
	r := h.r
	r.handlesMu.Lock()
	for i, hh := range r.handles {
		if hh == h {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			break
		}
	}
	r.handlesMu.Unlock()
}

func (r *Reactor) dispatchWakeups() {
	drainWakeFD(r.wakeReadFD)

	r.handlesMu.RLock()
	handles := make([]*WakeHandle, len(r.handles))
	copy(handles, r.handles)
	r.handlesMu.RUnlock()

	for _, h := range handles {
		if h.pending.CompareAndSwap(true, false) {
			h.callback()
		}
	}
}

// Run blocks, servicing registered descriptors and wake handles, until
// Stop is called or ctx is canceled. It is not reentrant: call it from a
// single goroutine, the reactor thread the rest of the package's docs refer
// to.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(uint32(StateIdle), uint32(StateRunning)) {
		return ErrAlreadyRunning
	}
	defer close(r.done)

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-watchDone:
		}
	}()

	for r.State() == StateRunning {
		if _, err := r.poll.Wait(-1); err != nil {
			r.log.Err().Err(err).Log("reactor: poll wait failed")
			r.state.Store(uint32(StateStopped))
			return err
		}
	}
	r.state.Store(uint32(StateStopped))
	return nil
}

// Stop requests that Run return. Idempotent and safe from any goroutine,
// including the reactor's own.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		r.state.CompareAndSwap(uint32(StateRunning), uint32(StateStopping))
		signalWakeFD(r.wakeWriteFD)
	})
}

// Wait blocks until Run has returned.
func (r *Reactor) Wait() {
	<-r.done
}

// Close releases the poller and wake descriptors. Call only after Run has
// returned.
func (r *Reactor) Close() error {
	err := r.poll.Close()
	if e := CloseFD(r.wakeReadFD); e != nil && err == nil {
		err = e
	}
	if r.wakeWriteFD != r.wakeReadFD {
		if e := CloseFD(r.wakeWriteFD); e != nil && err == nil {
			err = e
		}
	}
	return err
}
