package stream

import (
	"context"
	"errors"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/nx-io/framed/channel"
	"github.com/nx-io/framed/internal/logging"
	"github.com/nx-io/framed/reactor"
)

var errNotIPv4 = errors.New("stream: listener socket is not IPv4")

// AcceptHandler is invoked on the reactor thread for each accepted
// connection. Implementations register per-channel callbacks before
// returning, per §9's re-entrancy note.
type AcceptHandler func(c *channel.Channel)

// ListenerErrorHandler receives bind, listen, and accept failures. It does
// not receive per-channel errors; those go to the channel's own OnError.
type ListenerErrorHandler func(err error)

// Listener binds a TCP socket, accepts connections, and constructs a
// Channel per accepted socket, all multiplexed on one Reactor.
type Listener struct {
	rct *reactor.Reactor
	fd  int
	log *logging.Logger

	channelOpts []channel.Option

	onAccept AcceptHandler
	onError  ListenerErrorHandler
}

// ListenerOption configures a Listener at construction time.
type ListenerOption func(*Listener)

// WithListenerLogger installs a diagnostic logger.
func WithListenerLogger(l *logging.Logger) ListenerOption {
	return func(ls *Listener) {
		if l != nil {
			ls.log = l
		}
	}
}

// WithChannelOptions passes through options applied to every accepted
// Channel.
func WithChannelOptions(opts ...channel.Option) ListenerOption {
	return func(ls *Listener) { ls.channelOpts = opts }
}

// Listen binds address (host:port, IPv4 only) and returns a Listener ready
// to have OnAccept/OnError registered before Run is called on the
// returned Reactor.
func Listen(address string, opts ...ListenerOption) (*Listener, *reactor.Reactor, error) {
	sa, err := resolveTCP4(address)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}
	if err := unix.Listen(fd, channel.Backlog); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	rct, err := reactor.New()
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	ls := &Listener{rct: rct, fd: fd, log: logging.Disabled()}
	for _, opt := range opts {
		opt(ls)
	}

	if err := rct.RegisterFD(fd, reactor.EventRead, ls.onAcceptable); err != nil {
		unix.Close(fd)
		_ = rct.Close()
		return nil, nil, err
	}
	return ls, rct, nil
}

// OnAccept registers the handler invoked for each accepted connection.
func (ls *Listener) OnAccept(h AcceptHandler) { ls.onAccept = h }

// OnError registers the listener-level error handler.
func (ls *Listener) OnError(h ListenerErrorHandler) { ls.onError = h }

// Addr returns the listener's bound address, resolving an ephemeral port
// (":0") to the one the kernel actually assigned.
func (ls *Listener) Addr() (string, error) {
	sa, err := unix.Getsockname(ls.fd)
	if err != nil {
		return "", err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", errNotIPv4
	}
	ip := net.IP(in4.Addr[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(in4.Port)), nil
}

func (ls *Listener) onAcceptable(reactor.Events) {
	for {
		fd, _, err := unix.Accept4(ls.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if ls.onError != nil {
				ls.onError(err)
			}
			return
		}

		c, err := channel.New(fd, ls.rct, ls.channelOpts...)
		if err != nil {
			unix.Close(fd)
			if ls.onError != nil {
				ls.onError(err)
			}
			continue
		}
		if ls.onAccept != nil {
			ls.onAccept(c)
		}
	}
}

// Stop unregisters and closes the listening socket on the calling
// goroutine, then signals the listener's reactor to exit its run loop.
// Safe to call from any goroutine; it does not close channels already
// accepted.
func (ls *Listener) Stop() {
	_ = ls.rct.UnregisterFD(ls.fd)
	_ = unix.Close(ls.fd)
	ls.rct.Stop()
}

// Run is a convenience wrapper around the listener's own reactor's Run,
// for callers that don't need to share a Reactor across multiple drivers.
func (ls *Listener) Run(ctx context.Context) error {
	return ls.rct.Run(ctx)
}
