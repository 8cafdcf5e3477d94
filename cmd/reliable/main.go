// Command reliable runs the ReliableMessaging end-to-end scenario as a
// standalone process: a client sends ids 0..10 in order, the server
// echoes each one back verbatim, and the client observes all eleven
// replies in order before both sides shut down.
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

const (
	addr    = "127.0.0.1:22224"
	lastID  = 10
	msgSize = 4
)

func encode(lp *codec.LengthPrefixed, id uint32) []byte {
	buf := make([]byte, lp.HeaderLen()+msgSize)
	payload := make([]byte, msgSize)
	binary.BigEndian.PutUint32(payload, id)
	n, err := lp.Encode(buf, payload)
	if err != nil {
		panic(err)
	}
	return buf[:n]
}

func main() {
	log := logging.New(os.Stderr, logiface.LevelInformational)
	lp := codec.NewLengthPrefixed(codec.Width2, binary.BigEndian)

	ls, lsReactor, err := stream.Listen(addr, stream.WithListenerLogger(log))
	if err != nil {
		log.Emerg().Err(err).Log("reliable: listen failed")
		os.Exit(1)
	}
	ls.OnAccept(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, err := msg.Payload(lp.HeaderLen())
			if err != nil || len(p) < msgSize {
				return
			}
			id := binary.BigEndian.Uint32(p)
			log.Info().Uint64("id", uint64(id)).Log("reliable: server received")
			c.Write(encode(lp, id))
		})
		c.OnError(func(c *channel.Channel, err error) {
			log.Err().Err(err).Uint64("channel", c.ID()).Log("reliable: server channel error")
		})
	})
	ls.OnError(func(err error) {
		log.Err().Err(err).Log("reliable: listener error")
	})

	cl, clReactor, err := stream.Dial(addr, stream.WithClientLogger(log))
	if err != nil {
		log.Emerg().Err(err).Log("reliable: dial failed")
		os.Exit(1)
	}
	cl.OnConnect(func(c *channel.Channel) {
		c.OnRead(func(c *channel.Channel, msg codec.Message) {
			p, err := msg.Payload(lp.HeaderLen())
			if err != nil || len(p) < msgSize {
				return
			}
			echoed := binary.BigEndian.Uint32(p)
			log.Info().Uint64("echoed", uint64(echoed)).Log("reliable: client received echo")
			if echoed >= lastID {
				c.Close()
				return
			}
			c.Write(encode(lp, echoed+1))
		})
		c.OnClose(func(*channel.Channel) {
			cl.Stop()
			ls.Stop()
		})
		c.Write(encode(lp, 0))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() { _ = lsReactor.Run(ctx); done <- struct{}{} }()
	go func() { _ = clReactor.Run(ctx); done <- struct{}{} }()
	<-done
	<-done
}
