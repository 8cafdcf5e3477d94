package stream

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nx-io/framed/channel"
	"github.com/nx-io/framed/codec"
)

func encodeID(t *testing.T, lp *codec.LengthPrefixed, id byte) []byte {
	t.Helper()
	buf := make([]byte, 8)
	n, err := lp.Encode(buf, []byte{id})
	require.NoError(t, err)
	return buf[:n]
}

func runReactorsUntilCleanup(t *testing.T, ctx context.Context, cancel context.CancelFunc, reactors ...interface {
	Run(context.Context) error
}) {
	t.Helper()
	var wg sync.WaitGroup
	for _, r := range reactors {
		wg.Add(1)
		go func(r interface {
			Run(context.Context) error
		}) {
			defer wg.Done()
			_ = r.Run(ctx)
		}(r)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

// TestPingPong implements the §8 PingPong scenario: client sends id=1,
// server replies id=2, client replies id=2, server closes. Neither side's
// on-error handler should ever fire.
func TestPingPong(t *testing.T) {
	lp := codec.NewLengthPrefixed(codec.Width1, binary.BigEndian)
	ctx, cancel := context.WithCancel(context.Background())

	ls, lsReactor, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr, err := ls.Addr()
	require.NoError(t, err)

	var errored atomic.Int32
	serverClosed := make(chan struct{})

	ls.OnAccept(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, _ := msg.Payload(lp.HeaderLen())
			switch p[0] {
			case 1:
				require.True(t, c.Write(encodeID(t, lp, 2)))
			case 2:
				c.Close()
			}
		})
		c.OnError(func(*channel.Channel, error) { errored.Add(1) })
		c.OnClose(func(*channel.Channel) { close(serverClosed) })
	})

	cl, clReactor, err := Dial(addr)
	require.NoError(t, err)

	clientClosed := make(chan struct{})
	cl.OnConnect(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, _ := msg.Payload(lp.HeaderLen())
			if p[0] == 2 {
				require.True(t, c.Write(encodeID(t, lp, 2)))
			}
		})
		c.OnError(func(*channel.Channel, error) { errored.Add(1) })
		c.OnClose(func(*channel.Channel) { close(clientClosed) })
		require.True(t, c.Write(encodeID(t, lp, 1)))
	})

	runReactorsUntilCleanup(t, ctx, cancel, lsReactor, clReactor)
	t.Cleanup(ls.Stop)

	select {
	case <-serverClosed:
	case <-time.After(3 * time.Second):
		t.Fatal("server channel never closed")
	}
	select {
	case <-clientClosed:
	case <-time.After(3 * time.Second):
		t.Fatal("client channel never observed close")
	}
	require.EqualValues(t, 0, errored.Load())
}

// TestReliableMessaging implements the §8 ReliableMessaging scenario: the
// client sends id=0, the server echoes each id back unchanged, and the
// client replies with the echoed value plus one until the echo reaches 10,
// at which point both sides have observed 0..10 in order.
func TestReliableMessaging(t *testing.T) {
	lp := codec.NewLengthPrefixed(codec.Width2, binary.BigEndian)
	encode := func(t *testing.T, id uint32) []byte {
		t.Helper()
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, id)
		buf := make([]byte, lp.HeaderLen()+4)
		n, err := lp.Encode(buf, payload)
		require.NoError(t, err)
		return buf[:n]
	}
	decode := func(t *testing.T, msg codec.Message) uint32 {
		t.Helper()
		p, err := msg.Payload(lp.HeaderLen())
		require.NoError(t, err)
		return binary.BigEndian.Uint32(p)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ls, lsReactor, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr, err := ls.Addr()
	require.NoError(t, err)

	var mu sync.Mutex
	var serverSeen []uint32
	ls.OnAccept(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			id := decode(t, msg)
			mu.Lock()
			serverSeen = append(serverSeen, id)
			mu.Unlock()
			require.True(t, c.Write(encode(t, id)))
		})
	})

	cl, clReactor, err := Dial(addr)
	require.NoError(t, err)

	var clientSeen []uint32
	done := make(chan struct{})
	cl.OnConnect(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			id := decode(t, msg)
			mu.Lock()
			clientSeen = append(clientSeen, id)
			mu.Unlock()
			if id >= 10 {
				close(done)
				return
			}
			require.True(t, c.Write(encode(t, id+1)))
		})
		require.True(t, c.Write(encode(t, 0)))
	})

	runReactorsUntilCleanup(t, ctx, cancel, lsReactor, clReactor)
	t.Cleanup(ls.Stop)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("reliable messaging exchange never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	expected := make([]uint32, 11)
	for i := range expected {
		expected[i] = uint32(i)
	}
	require.Equal(t, expected, serverSeen)
	require.Equal(t, expected, clientSeen)
}

// TestServerClose implements the §8 ServerClose scenario: the server
// accepts and immediately closes; the client observes the disconnect via
// on-close (a graceful EOF, not on-error) and stops.
func TestServerClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ls, lsReactor, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	addr, err := ls.Addr()
	require.NoError(t, err)

	ls.OnAccept(func(c *channel.Channel) {
		c.Close()
	})

	cl, clReactor, err := Dial(addr)
	require.NoError(t, err)

	clientClosed := make(chan struct{})
	cl.OnConnect(func(c *channel.Channel) {
		c.OnClose(func(*channel.Channel) { close(clientClosed) })
	})

	runReactorsUntilCleanup(t, ctx, cancel, lsReactor, clReactor)
	t.Cleanup(ls.Stop)

	select {
	case <-clientClosed:
	case <-time.After(3 * time.Second):
		t.Fatal("client never observed server-initiated close")
	}
}
