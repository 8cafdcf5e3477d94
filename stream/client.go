package stream

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/nx-io/framed/channel"
	"github.com/nx-io/framed/internal/logging"
	"github.com/nx-io/framed/reactor"
)

// ConnectHandler is invoked on the reactor thread once a connect completes
// successfully.
type ConnectHandler func(c *channel.Channel)

// Client owns a Reactor and dials a single Channel to a remote address.
type Client struct {
	rct *reactor.Reactor
	fd  int
	log *logging.Logger

	channelOpts []channel.Option

	onConnect ConnectHandler
	onError   ListenerErrorHandler
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithClientLogger installs a diagnostic logger.
func WithClientLogger(l *logging.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// WithClientChannelOptions passes through options applied to the dialed
// Channel.
func WithClientChannelOptions(opts ...channel.Option) ClientOption {
	return func(cl *Client) { cl.channelOpts = opts }
}

// Dial begins a non-blocking connect to address (host:port, IPv4 only).
// The returned Client's OnConnect/OnError must be registered before its
// Reactor's Run is called.
func Dial(address string, opts ...ClientOption) (*Client, *reactor.Reactor, error) {
	sa, err := resolveTCP4(address)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}

	rct, err := reactor.New()
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	cl := &Client{rct: rct, fd: fd, log: logging.Disabled()}
	for _, opt := range opts {
		opt(cl)
	}

	err = unix.Connect(fd, &sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		_ = rct.Close()
		return nil, nil, err
	}

	if err := rct.RegisterFD(fd, reactor.EventWrite, cl.onWritable); err != nil {
		unix.Close(fd)
		_ = rct.Close()
		return nil, nil, err
	}
	return cl, rct, nil
}

// OnConnect registers the handler invoked once the connect completes.
func (cl *Client) OnConnect(h ConnectHandler) { cl.onConnect = h }

// OnError registers the client-level error handler for a failed connect.
func (cl *Client) OnError(h ListenerErrorHandler) { cl.onError = h }

func (cl *Client) onWritable(reactor.Events) {
	_ = cl.rct.UnregisterFD(cl.fd)

	errno, err := unix.GetsockoptInt(cl.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil || errno != 0 {
		unix.Close(cl.fd)
		if cl.onError != nil {
			if err == nil {
				err = unix.Errno(errno)
			}
			cl.onError(err)
		}
		return
	}

	c, err := channel.New(cl.fd, cl.rct, cl.channelOpts...)
	if err != nil {
		unix.Close(cl.fd)
		if cl.onError != nil {
			cl.onError(err)
		}
		return
	}
	if cl.onConnect != nil {
		cl.onConnect(c)
	}
}

// Stop signals the client's reactor to exit its run loop.
func (cl *Client) Stop() {
	cl.rct.Stop()
}

// Run is a convenience wrapper around the client's own reactor's Run.
func (cl *Client) Run(ctx context.Context) error {
	return cl.rct.Run(ctx)
}
