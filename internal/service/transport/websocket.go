package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ResultsPath is where consumers open the result stream.
const ResultsPath = "/results"

const readHeaderTimeout = 10 * time.Second

// upgrader allows all origins; the listener is bound to a local address.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebsocketAcceptor serves the result stream over WebSocket. Only the consumer
// handed out by Accept receives messages; later connections wait in the handler
// until the current one is lost.
type WebsocketAcceptor struct {
	listener  net.Listener
	server    *http.Server
	peers     chan *wsPeer
	done      chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
}

// ListenWebsocket binds addr and starts the HTTP server.
func ListenWebsocket(addr string, timeout time.Duration) (*WebsocketAcceptor, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewWebsocketAcceptor(listener, timeout), nil
}

// NewWebsocketAcceptor serves WebSocket consumers on an existing listener.
func NewWebsocketAcceptor(listener net.Listener, timeout time.Duration) *WebsocketAcceptor {
	a := &WebsocketAcceptor{
		listener: listener,
		peers:    make(chan *wsPeer),
		done:     make(chan struct{}),
		timeout:  timeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ResultsPath, a.handle)
	a.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		_ = a.server.Serve(listener)
	}()

	return a
}

func (a *WebsocketAcceptor) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer := &wsPeer{
		conn: conn,
		id:   uuid.NewString(),
		lost: make(chan struct{}),
	}

	select {
	case a.peers <- peer:
	case <-a.done:
		conn.Close()
		return
	}

	peer.readLoop()
}

func (a *WebsocketAcceptor) Accept(ctx context.Context) (Peer, error) {
	select {
	case <-a.done:
		return nil, net.ErrClosed
	default:
	}

	var timeout <-chan time.Time
	if a.timeout > 0 {
		timer := time.NewTimer(a.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case peer := <-a.peers:
		return peer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, ErrAcceptTimeout
	case <-a.done:
		return nil, net.ErrClosed
	}
}

func (a *WebsocketAcceptor) Addr() net.Addr {
	return a.listener.Addr()
}

func (a *WebsocketAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.server.Close()
	})
	return err
}

type wsPeer struct {
	conn     *websocket.Conn
	id       string
	lost     chan struct{}
	lostOnce sync.Once
}

// readLoop drains control frames and marks the peer lost once the connection fails.
func (p *wsPeer) readLoop() {
	defer p.markLost()
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *wsPeer) markLost() {
	p.lostOnce.Do(func() { close(p.lost) })
}

func (p *wsPeer) Write(frame []byte) error {
	select {
	case <-p.lost:
		return ErrPeerLost
	default:
	}

	if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		p.markLost()
		return fmt.Errorf("%w: %v", ErrPeerLost, err)
	}
	return nil
}

func (p *wsPeer) Close() error {
	p.markLost()
	return p.conn.Close()
}

func (p *wsPeer) ID() string {
	return p.id
}

func (p *wsPeer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
