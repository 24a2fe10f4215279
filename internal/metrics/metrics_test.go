package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	datagramsReceived.Reset()
	framesDropped.Reset()
	messagesSent.Reset()
	loopRestarts.Reset()

	RecordDatagram("detection")
	RecordDatagram("detection")
	RecordDrop("classification", ReasonUnknownLabel)
	RecordSent("classification")
	RecordRestart("relay")

	assert.Equal(t, 2.0, testutil.ToFloat64(datagramsReceived.WithLabelValues("detection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(framesDropped.WithLabelValues("classification", ReasonUnknownLabel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(messagesSent.WithLabelValues("classification")))
	assert.Equal(t, 1.0, testutil.ToFloat64(loopRestarts.WithLabelValues("relay")))
}

func TestReconnectsAndInference(t *testing.T) {
	inferenceDuration.Reset()
	before := testutil.ToFloat64(peerReconnects)

	RecordReconnect()
	ObserveInference("edgetpu", 12*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(peerReconnects))
	assert.Equal(t, 1, testutil.CollectAndCount(inferenceDuration))
}

func TestExporter_Handler(t *testing.T) {
	RecordSent("detection")

	server := httptest.NewServer(NewExporter("").Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mirrorml_messages_sent_total")

	resp, err = http.Get(server.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))
}

func TestExporter_ServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewExporter(ln.Addr().String()).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("exporter did not stop")
	}
}
