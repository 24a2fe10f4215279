package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// TCPAcceptor hands out TCP consumers from a listener that stays open across reconnects.
type TCPAcceptor struct {
	listener *net.TCPListener
	timeout  time.Duration
}

// ListenTCP binds addr. A zero timeout waits for a consumer forever.
func ListenTCP(addr string, timeout time.Duration) (*TCPAcceptor, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve TCP address: %w", err)
	}

	listener, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &TCPAcceptor{listener: listener, timeout: timeout}, nil
}

func (a *TCPAcceptor) Accept(ctx context.Context) (Peer, error) {
	var deadline time.Time
	if a.timeout > 0 {
		deadline = time.Now().Add(a.timeout)
	}
	if err := a.listener.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock AcceptTCP when the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = a.listener.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := a.listener.AcceptTCP()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrAcceptTimeout
		}
		return nil, err
	}

	return &tcpPeer{conn: conn, id: uuid.NewString()}, nil
}

func (a *TCPAcceptor) Addr() net.Addr {
	return a.listener.Addr()
}

func (a *TCPAcceptor) Close() error {
	return a.listener.Close()
}

type tcpPeer struct {
	conn *net.TCPConn
	id   string
}

func (p *tcpPeer) Write(frame []byte) error {
	if _, err := p.conn.Write(frame); err != nil {
		if isPeerLost(err) {
			return fmt.Errorf("%w: %v", ErrPeerLost, err)
		}
		return err
	}
	return nil
}

func (p *tcpPeer) Close() error {
	return p.conn.Close()
}

func (p *tcpPeer) ID() string {
	return p.id
}

func (p *tcpPeer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
