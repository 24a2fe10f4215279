// Package transport streams result messages to the single downstream consumer.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

var (
	// ErrPeerLost is returned by Peer.Write when the consumer went away.
	ErrPeerLost = errors.New("peer connection lost")
	// ErrAcceptTimeout is returned when no consumer connects in time.
	ErrAcceptTimeout = errors.New("timed out waiting for client")
)

// Peer is one connected consumer.
type Peer interface {
	Write(frame []byte) error
	Close() error
	ID() string
	RemoteAddr() string
}

// Acceptor yields consumers from a listening endpoint, one at a time.
type Acceptor interface {
	Accept(ctx context.Context) (Peer, error)
	Addr() net.Addr
	Close() error
}

// isPeerLost reports whether a write error means the remote side is gone.
func isPeerLost(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.EOF)
}
