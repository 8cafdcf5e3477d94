// Command pingpong runs the PingPong end-to-end scenario as a standalone
// process: a server and a client, each on its own reactor, exchanging a
// one-byte length-prefixed id handshake before the server closes the
// connection and neither side's on-error handler ever fires.
package main

import (
	"context"
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"

	"github.com/nx-io/framed/channel"
	"github.com/nx-io/framed/codec"
	"github.com/nx-io/framed/internal/logging"
	"github.com/nx-io/framed/stream"
)

const addr = "127.0.0.1:22223"

func encode(lp *codec.LengthPrefixed, id byte) []byte {
	buf := make([]byte, lp.HeaderLen()+1)
	n, err := lp.Encode(buf, []byte{id})
	if err != nil {
		panic(err)
	}
	return buf[:n]
}

func main() {
	log := logging.New(os.Stderr, logiface.LevelInformational)
	lp := codec.NewLengthPrefixed(codec.Width1, binary.BigEndian)

	ls, lsReactor, err := stream.Listen(addr, stream.WithListenerLogger(log))
	if err != nil {
		log.Emerg().Err(err).Log("pingpong: listen failed")
		os.Exit(1)
	}
	ls.OnAccept(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, err := msg.Payload(lp.HeaderLen())
			if err != nil {
				return
			}
			switch p[0] {
			case 1:
				c.Write(encode(lp, 2))
			case 2:
				c.Close()
			}
		})
		c.OnError(func(c *channel.Channel, err error) {
			log.Err().Err(err).Uint64("channel", c.ID()).Log("pingpong: server channel error")
		})
	})
	ls.OnError(func(err error) {
		log.Err().Err(err).Log("pingpong: listener error")
	})

	cl, clReactor, err := stream.Dial(addr, stream.WithClientLogger(log))
	if err != nil {
		log.Emerg().Err(err).Log("pingpong: dial failed")
		os.Exit(1)
	}
	cl.OnConnect(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, err := msg.Payload(lp.HeaderLen())
			if err != nil {
				return
			}
			if p[0] == 2 {
				c.Write(encode(lp, 2))
			}
		})
		c.OnClose(func(*channel.Channel) {
			cl.Stop()
			ls.Stop()
		})
		c.Write(encode(lp, 1))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() { _ = lsReactor.Run(ctx); done <- struct{}{} }()
	go func() { _ = clReactor.Run(ctx); done <- struct{}{} }()
	<-done
	<-done
}
