package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaRefCountBalance(t *testing.T) {
	a := New(64, 7)
	require.EqualValues(t, 1, a.RefCount())

	a.AddRef()
	a.AddRef()
	require.EqualValues(t, 3, a.RefCount())

	a.Release()
	a.Release()
	require.EqualValues(t, 1, a.RefCount())

	a.Release()
	require.EqualValues(t, 0, a.RefCount())
}

func TestArenaRefCountConcurrent(t *testing.T) {
	a := New(64, 1)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		a.AddRef()
		go func() {
			defer wg.Done()
			a.Release()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, a.RefCount())
	a.Release()
	require.EqualValues(t, 0, a.RefCount())
}

func TestPoolRecyclesArenaOnZeroRefs(t *testing.T) {
	p := NewPool(32, 5)
	a1 := p.Get()
	require.EqualValues(t, 1, a1.RefCount())
	a1.Release()

	a2 := p.Get()
	require.EqualValues(t, 1, a2.RefCount())
	require.EqualValues(t, 5, a2.Meta())
}

func TestArenaSizeInvariant(t *testing.T) {
	require.Panics(t, func() { New(0, 0) })
	require.Panics(t, func() { New(-1, 0) })
}
