// Package session implements the two cooperative loops that run for the
// lifetime of a chat connection: the network loop relays framed wire
// messages between the remote peer and the I/O bus, and the terminal
// loop relays lines between the local terminal and the bus.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/privy-chat/privy/internal/bus"
	"github.com/privy-chat/privy/internal/logging"
	"github.com/privy-chat/privy/internal/netio"
	"github.com/privy-chat/privy/internal/wire"
)

// NetworkLoop relays wire frames between stream and the bus subscriber
// until either side ends: a read error (including EOF) shuts down the
// whole bus, and the bus closing half-closes the stream's write side.
// It blocks until both directions have stopped.
func NetworkLoop(ctx context.Context, stream netio.Stream, sub *bus.Subscriber, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		fr := wire.NewFrameReader(stream)
		for {
			payload, err := fr.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn("session: network read failed", logging.KeyError, err)
				}
				sub.Shutdown()
				return
			}
			sub.Publish(payload)
		}
	}()

	go func() {
		defer close(writerDone)
		fw := wire.NewFrameWriter(stream)
		for {
			select {
			case msg, ok := <-sub.C():
				if !ok {
					stream.CloseWrite()
					return
				}
				if err := fw.Write(msg.Payload); err != nil {
					logger.Warn("session: network write failed", logging.KeyError, err)
					sub.Shutdown()
					return
				}
			case <-ctx.Done():
				stream.CloseWrite()
				return
			}
		}
	}()

	<-readerDone
	<-writerDone
}
