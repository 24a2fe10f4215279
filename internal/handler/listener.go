package handler

import (
	"context"
	"errors"
	"fmt"
	"net"

	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
)

// Handler processes one datagram. payload is only valid during the call.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload []byte) error
}

// ResultSender delivers a message to the downstream consumer.
type ResultSender interface {
	Send(ctx context.Context, msg any) error
}

// Serve reads datagrams from conn and hands each non-empty one to h until ctx
// is cancelled. Read errors are logged and skipped; an error from h ends the loop.
// Serve closes conn when it returns.
func Serve(ctx context.Context, conn net.PacketConn, bufferSize int, h Handler, logger *logger.Logger) error {
	defer conn.Close()

	// Unblock ReadFrom on shutdown.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	name := h.Name()
	buffer := make([]byte, bufferSize)

	for {
		n, _, err := conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("%s listener closed: %w", name, err)
			}
			logger.Error("Error reading %s datagram: %v", name, err)
			continue
		}

		metrics.RecordDatagram(name)
		if n == 0 {
			metrics.RecordDrop(name, metrics.ReasonEmpty)
			continue
		}

		if err := h.Handle(ctx, buffer[:n]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s handler: %w", name, err)
		}
	}
}
