package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorml/internal/logger"
)

func dialResults(t *testing.T, addr net.Addr) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+ResultsPath, nil)
	require.NoError(t, err)
	return conn
}

func TestWebsocketAcceptor_Timeout(t *testing.T) {
	acceptor, err := ListenWebsocket("127.0.0.1:0", 50*time.Millisecond)
	require.NoError(t, err)
	defer acceptor.Close()

	_, err = acceptor.Accept(context.Background())
	assert.ErrorIs(t, err, ErrAcceptTimeout)
}

func TestChannel_WebsocketReconnect(t *testing.T) {
	acceptor, err := ListenWebsocket("127.0.0.1:0", 0)
	require.NoError(t, err)
	ch := NewChannel(acceptor, frameRaw, logger.New(io.Discard, io.Discard, logger.LevelInfo))
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := dialResults(t, acceptor.Addr())
	require.NoError(t, ch.Connect(ctx))

	require.NoError(t, ch.Send(ctx, map[string]string{"classification": "adi", "confidence": "0.9"}))
	_, data, err := first.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"classification":"adi","confidence":"0.9"}`, string(data))

	require.NoError(t, first.Close())

	second := dialResults(t, acceptor.Addr())
	defer second.Close()

	messages := make(chan []byte, 1)
	go func() {
		_, data, err := second.ReadMessage()
		if err == nil {
			messages <- data
		}
	}()

	for i := 0; i < 100; i++ {
		require.NoError(t, ch.Send(ctx, map[string]int{"n": i}))
		select {
		case data := <-messages:
			assert.Regexp(t, `^\{"n":\d+\}$`, string(data))
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("second client never received a message")
}

func TestWebsocketAcceptor_CloseReleasesWaitingClients(t *testing.T) {
	acceptor, err := ListenWebsocket("127.0.0.1:0", 0)
	require.NoError(t, err)

	conn := dialResults(t, acceptor.Addr())
	defer conn.Close()

	require.NoError(t, acceptor.Close())

	_, err = acceptor.Accept(context.Background())
	assert.ErrorIs(t, err, net.ErrClosed)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "unaccepted client is disconnected")
}
