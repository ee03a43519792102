package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/bridge/local"
	"roomlink/internal/infrastructure/bridge/local/store"
	"roomlink/pkg/circuitbreaker"
)

func startBridge(t *testing.T) *Client {
	t.Helper()
	log := zap.NewNop().Sugar()

	backend := local.New(store.NewMemory(), "test-secret", log)
	t.Cleanup(func() { backend.Close() })

	srv := NewServer(backend, DefaultServerConfig(), log)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleBridge))
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	cfg.AckTimeout = 2 * time.Second

	c, err := Dial(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// startMuteBridge upgrades connections and then ignores every frame.
func startMuteBridge(t *testing.T, cfg Config) *Client {
	t.Helper()
	log := zap.NewNop().Sugar()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http")
	c, err := Dial(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

type eventCollector struct {
	ch  chan json.RawMessage
	sub ports.Subscription
}

func collectEvents(t *testing.T, c *Client, sessionID domain.SessionID, event domain.EventType) *eventCollector {
	t.Helper()
	col := &eventCollector{ch: make(chan json.RawMessage, 16)}
	sub, err := c.Subscribe(sessionID, event, func(payload json.RawMessage) {
		col.ch <- payload
	})
	require.NoError(t, err)
	col.sub = sub
	return col
}

func (col *eventCollector) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-col.ch:
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (col *eventCollector) none(t *testing.T) {
	t.Helper()
	select {
	case raw := <-col.ch:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInvoke_RoundTrip(t *testing.T) {
	c := startBridge(t)

	raw, err := c.Invoke(context.Background(), "sess-1", ports.CmdGetAuthTokenByRoomCode, map[string]any{"roomCode": "standup"})
	require.NoError(t, err)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.NotEmpty(t, resp.Token)
}

func TestInvoke_BridgeErrorComesBackVerbatim(t *testing.T) {
	c := startBridge(t)

	_, err := c.Invoke(context.Background(), "sess-1", "teleport", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "teleport"`)
}

func TestSubscribe_EventsFlowBack(t *testing.T) {
	c := startBridge(t)
	sessionID := domain.SessionID("sess-1")

	joins := collectEvents(t, c, sessionID, domain.EventJoin)
	stores := collectEvents(t, c, sessionID, domain.EventSessionStoreAvailable)

	_, err := c.Invoke(context.Background(), sessionID, ports.CmdJoin, map[string]any{"username": "alice"})
	require.NoError(t, err)

	join := joins.next(t)
	assert.Equal(t, string(sessionID), join["id"])
	require.Contains(t, join, "room")

	storeEv := stores.next(t)
	assert.Equal(t, string(sessionID), storeEv["id"])
}

func TestSubscribe_SessionsAreIsolated(t *testing.T) {
	c := startBridge(t)

	peersA := collectEvents(t, c, "sess-a", domain.EventPeerUpdate)

	_, err := c.Invoke(context.Background(), "sess-a", ports.CmdJoin, map[string]any{"username": "alice"})
	require.NoError(t, err)
	_, err = c.Invoke(context.Background(), "sess-b", ports.CmdJoin, map[string]any{"username": "bob"})
	require.NoError(t, err)

	ev := peersA.next(t)
	assert.Equal(t, "sess-a", ev["id"])
	assert.Equal(t, string(domain.PeerJoined), ev["type"])
}

func TestSubscription_RemoveStopsDelivery(t *testing.T) {
	c := startBridge(t)

	peersA := collectEvents(t, c, "sess-a", domain.EventPeerUpdate)

	_, err := c.Invoke(context.Background(), "sess-a", ports.CmdJoin, map[string]any{"username": "alice"})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), "sess-b", ports.CmdJoin, map[string]any{"username": "bob"})
	require.NoError(t, err)
	peersA.next(t)

	require.NoError(t, peersA.sub.Remove())

	_, err = c.Invoke(context.Background(), "sess-c", ports.CmdJoin, map[string]any{"username": "carol"})
	require.NoError(t, err)
	peersA.none(t)
}

func TestInvoke_AckTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AckTimeout = 200 * time.Millisecond
	c := startMuteBridge(t, cfg)

	_, err := c.Invoke(context.Background(), "sess-1", ports.CmdLeave, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ack timeout")
}

func TestInvoke_BreakerFailsFastAfterRepeatedTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AckTimeout = 100 * time.Millisecond
	cfg.Breaker = circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		MaxHalfOpenRequests: 1,
	}
	c := startMuteBridge(t, cfg)

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), "sess-1", ports.CmdLeave, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ack timeout")
	}

	start := time.Now()
	_, err := c.Invoke(context.Background(), "sess-1", ports.CmdLeave, nil)
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Less(t, time.Since(start), cfg.AckTimeout)
}

func TestInvoke_AfterCloseFails(t *testing.T) {
	c := startBridge(t)
	require.NoError(t, c.Close())

	_, err := c.Invoke(context.Background(), "sess-1", ports.CmdLeave, nil)
	require.ErrorIs(t, err, domain.ErrBridgeUnavailable)
}
