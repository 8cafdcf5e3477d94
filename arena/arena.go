// Package arena implements the reference-counted byte block that backs
// every in-flight message view on the ingress path, and the bounds-checked
// cursor (View) used to read and write through it.
package arena

import (
	"sync"
	"sync/atomic"
)

// Arena is a contiguous byte block shared by every view that references
// its bytes. It is allocated once and freed only when the last view
// (or retaining egress slot) releases it.
//
// meta is an opaque tag set once at construction, typically the owning
// channel's id, and never mutated afterward.
type Arena struct {
	buf  []byte
	meta uint64
	refs atomic.Int32
	pool *Pool
}

// New allocates a fresh, unpooled arena of the given size. meta is stored
// verbatim and never interpreted by the arena itself.
func New(size int, meta uint64) *Arena {
	if size <= 0 {
		panic("arena: size must be > 0")
	}
	a := &Arena{buf: make([]byte, size), meta: meta}
	a.refs.Store(1)
	return a
}

// Size returns the arena's fixed byte length.
func (a *Arena) Size() int { return len(a.buf) }

// Meta returns the opaque tag set at construction.
func (a *Arena) Meta() uint64 { return a.meta }

// Bytes exposes the full backing slice. Callers outside this package
// should go through a View, which enforces bounds on the readable region;
// Bytes exists for the framing engine's arena-rotation copy and for tests.
func (a *Arena) Bytes() []byte { return a.buf }

// AddRef increments the reference count. The increment itself needs no
// ordering with respect to other goroutines (Go's atomic add already
// provides the necessary synchronization for the paired Release to be
// safe); it only needs to happen before the matching Release call, which
// callers guarantee by construction.
func (a *Arena) AddRef() { a.refs.Add(1) }

// Release decrements the reference count. When it reaches zero, the arena
// is returned to its owning pool if it came from one, and otherwise left
// for the garbage collector. Go's atomic operations already give
// the decrement-to-zero the acquire semantics needed to observe every
// prior write to buf from any goroutine that held a reference.
func (a *Arena) Release() {
	if a.refs.Add(-1) == 0 {
		if a.pool != nil {
			a.pool.put(a)
		}
	}
}

// RefCount reports the current reference count. Intended for tests and
// diagnostics, not for control flow: it is a snapshot the instant it is
// read.
func (a *Arena) RefCount() int32 { return a.refs.Load() }

// Pool recycles fixed-size arenas so the steady-state ingress path avoids
// allocating a fresh block on every rotation. It wraps sync.Pool: Get
// either reuses a retired arena or builds one and sets its refcount to 1;
// put (invoked automatically by the last Release) returns it to the pool.
type Pool struct {
	size int
	meta uint64
	p    sync.Pool
}

// NewPool creates a pool that hands out arenas of the given size, tagged
// with meta.
func NewPool(size int, meta uint64) *Pool {
	pl := &Pool{size: size, meta: meta}
	pl.p.New = func() any {
		return &Arena{buf: make([]byte, size), meta: meta}
	}
	return pl
}

// Get returns an arena with refcount 1, either freshly allocated or
// recycled.
func (p *Pool) Get() *Arena {
	a := p.p.Get().(*Arena)
	a.pool = p
	a.refs.Store(1)
	return a
}

func (p *Pool) put(a *Arena) {
	p.p.Put(a)
}
