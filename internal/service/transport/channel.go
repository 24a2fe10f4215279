package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"mirrorml/internal/logger"
	"mirrorml/internal/metrics"
)

// Channel owns the connection to the downstream consumer. Every listener loop
// sends through it; writes and reconnects happen under one mutex.
type Channel struct {
	mu       sync.Mutex
	acceptor Acceptor
	framer   Framer
	logger   *logger.Logger
	peer     Peer
}

func NewChannel(acceptor Acceptor, framer Framer, logger *logger.Logger) *Channel {
	if framer == nil {
		framer = frameRaw
	}
	return &Channel{
		acceptor: acceptor,
		framer:   framer,
		logger:   logger,
	}
}

// Connect blocks until the first consumer connects.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peer != nil {
		return nil
	}
	return c.acceptLocked(ctx)
}

// Send encodes msg as JSON and writes it to the consumer. If the consumer has
// disconnected, Send waits for the next one and delivers msg to it.
func (c *Channel) Send(ctx context.Context, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	frame := c.framer(payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.peer == nil {
			if err := c.acceptLocked(ctx); err != nil {
				return err
			}
		}

		err := c.peer.Write(frame)
		if err == nil {
			return nil
		}

		c.dropLocked()
		if !errors.Is(err, ErrPeerLost) {
			return fmt.Errorf("failed to write result: %w", err)
		}

		c.logger.Info("Socket disconnected...waiting for client")
		metrics.RecordReconnect()
	}
}

// Close disconnects the consumer and stops listening.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()
	return c.acceptor.Close()
}

func (c *Channel) acceptLocked(ctx context.Context) error {
	peer, err := c.acceptor.Accept(ctx)
	if err != nil {
		return fmt.Errorf("failed to accept client: %w", err)
	}

	c.peer = peer
	c.logger.Debug("client %s connected from %s", peer.ID(), peer.RemoteAddr())
	return nil
}

func (c *Channel) dropLocked() {
	if c.peer == nil {
		return
	}
	if err := c.peer.Close(); err != nil {
		c.logger.Debug("closing client %s: %v", c.peer.ID(), err)
	}
	c.peer = nil
}
