package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/db"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/model"
	"github.com/voice-relay/backend/internal/repository"
)

func localHub(name string) config.HubConfig {
	return config.HubConfig{Name: name, Host: "127.0.0.1", Port: 0}
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	srv, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func TestNewRejectsBadPolicy(t *testing.T) {
	_, err := New(Options{Hub: config.HubConfig{Name: "x", Policy: "targeted"}})
	assert.ErrorIs(t, err, model.ErrReservedIdentityRequired)

	_, err = New(Options{Hub: config.HubConfig{Name: "x", Policy: "multicast"}})
	assert.ErrorIs(t, err, model.ErrUnknownPolicy)
}

func TestServerStartStop(t *testing.T) {
	srv := startServer(t, Options{Hub: localHub("relay")})

	addr := srv.Addr()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Error(t, srv.Start(context.Background()), "second start must fail")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "client should see a normal close, got %v", err)
	assert.Zero(t, srv.Hub().ClientCount())

	require.NoError(t, srv.Stop(ctx), "stop is idempotent")
}

func TestServerJournalsConnections(t *testing.T) {
	database, err := db.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	repo := repository.NewConnectionRepository(database)

	hub := localHub("display")
	hub.Policy = "targeted"
	hub.ReservedIdentity = "display"
	srv := startServer(t, Options{Hub: hub, Journal: repo})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("display")))
	require.Eventually(t, func() bool {
		_, ok := srv.Hub().Registry().Lookup("display")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/api/connections")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Connections []model.ConnectionRecord `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Connections, 1)
	rec := body.Connections[0]
	assert.Equal(t, "display", rec.Hub)
	assert.Equal(t, "display", rec.Identity)
	assert.Equal(t, model.ConnectionStatusClosed, rec.Status)
	assert.NotNil(t, rec.ClosedAt)
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := startServer(t, Options{Hub: localHub("relay"), Metrics: metrics.New(reg), Gatherer: reg})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManagerStartsAllHubs(t *testing.T) {
	hubs := []config.HubConfig{localHub("relay"), localHub("display")}
	hubs[1].Policy = "targeted"
	hubs[1].ReservedIdentity = "display"

	mgr, err := NewManager(hubs, nil, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, mgr.Servers(), 2)
	require.NotNil(t, mgr.Get("display"))
	assert.Nil(t, mgr.Get("missing"))

	require.NoError(t, mgr.Start(context.Background()))
	for _, srv := range mgr.Servers() {
		conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/", nil)
		require.NoError(t, err)
		conn.Close()
	}
	assert.Equal(t, "targeted", mgr.Get("display").Hub().Policy().Name())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Stop(ctx))
}

func TestManagerRollsBackOnBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()
	_, port, _ := net.SplitHostPort(taken.Addr().String())

	blocked := localHub("blocked")
	blocked.Port, _ = strconv.Atoi(port)

	mgr, err := NewManager([]config.HubConfig{localHub("relay"), blocked}, nil, nil, nil, nil)
	require.NoError(t, err)

	require.Error(t, mgr.Start(context.Background()))
	assert.Equal(t, "127.0.0.1:0", mgr.Get("relay").Addr(), "started hub should be stopped again")
}
