package bridge_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/api/ws"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/channel"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/frame"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/protocol"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/transport/bridge"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func relay(t *testing.T) (*ws.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub(ws.Options{PingInterval: 50 * time.Millisecond})
	r := gin.New()
	r.GET("/bridge/:session/:role", hub.HandleConnection)
	return hub, httptest.NewServer(r)
}

func TestClientDeliversOnScheduler(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv := relay(t)
	defer srv.Close()
	defer hub.Close()

	sched := frame.NewManual()
	var got []channel.Envelope

	hostURL, err := bridge.URL(srv.URL, "sess", bridge.RoleHost, "https://shop.example")
	require.NoError(t, err)
	host, err := bridge.Dial(context.Background(), hostURL, bridge.DialOptions{
		Scheduler: sched,
		Receive:   func(env channel.Envelope) { got = append(got, env) },
	})
	require.NoError(t, err)
	defer host.Close()

	frameURL, err := bridge.URL(srv.URL, "sess", bridge.RoleFrame, "https://widget.example")
	require.NoError(t, err)
	widget, err := bridge.Dial(context.Background(), frameURL, bridge.DialOptions{PingInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer widget.Close()

	require.Eventually(t, func() bool { return hub.Stats().Connections == 2 }, 2*time.Second, 5*time.Millisecond)

	data, err := protocol.Encode(protocol.ModeChange{Mode: protocol.ModeLauncher})
	require.NoError(t, err)
	require.NoError(t, widget.Post(data, "https://shop.example"))

	require.Eventually(t, func() bool { return sched.Pending() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, got, "nothing runs before the loop drains")
	sched.Drain()

	require.Len(t, got, 1)
	assert.Equal(t, "widget", got[0].Source)
	assert.Equal(t, "https://widget.example", got[0].Origin)
	msg, err := protocol.Decode(got[0].Data)
	require.NoError(t, err)
	assert.Equal(t, protocol.ModeChange{Mode: protocol.ModeLauncher}, msg)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv := relay(t)
	defer srv.Close()
	defer hub.Close()

	u, err := bridge.URL(srv.URL, "close", bridge.RoleHost, "")
	require.NoError(t, err)
	c, err := bridge.Dial(context.Background(), u, bridge.DialOptions{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.NoError(t, c.Err())
	assert.ErrorIs(t, c.Post([]byte(`{"type":"headlineTester:hide"}`), "*"), bridge.ErrClosed)
}

func TestClientObservesServerShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub, srv := relay(t)
	defer srv.Close()

	u, err := bridge.URL(srv.URL, "shutdown", bridge.RoleFrame, "")
	require.NoError(t, err)
	c, err := bridge.Dial(context.Background(), u, bridge.DialOptions{})
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, func() bool { return hub.Stats().Connections == 1 }, 2*time.Second, 5*time.Millisecond)
	hub.Close()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the hub closing")
	}
	assert.Error(t, c.Err())
}

func TestDialFailure(t *testing.T) {
	_, err := bridge.Dial(context.Background(), "ws://127.0.0.1:1/bridge/x/host", bridge.DialOptions{})
	assert.Error(t, err)
}

func TestPostRejectsEmptyData(t *testing.T) {
	_, err := bridge.EncodeFrame(bridge.Frame{TargetOrigin: "*"})
	assert.ErrorIs(t, err, bridge.ErrMalformedFrame)
}
