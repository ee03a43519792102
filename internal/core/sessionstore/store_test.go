package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type invocation struct {
	command string
	payload map[string]any
}

type fakeBridge struct {
	mu        sync.Mutex
	calls     []invocation
	responses map[string]json.RawMessage
	errs      map[string]error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

func (b *fakeBridge) Invoke(_ context.Context, _ domain.SessionID, command string, payload any) (json.RawMessage, error) {
	raw, _ := json.Marshal(payload)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)

	b.mu.Lock()
	b.calls = append(b.calls, invocation{command: command, payload: decoded})
	resp, err := b.responses[command], b.errs[command]
	b.mu.Unlock()
	return resp, err
}

func (b *fakeBridge) Notify(ctx context.Context, sessionID domain.SessionID, command string, payload any) error {
	_, err := b.Invoke(ctx, sessionID, command, payload)
	return err
}

func (b *fakeBridge) callsFor(command string) []invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []invocation
	for _, c := range b.calls {
		if c.command == command {
			out = append(out, c)
		}
	}
	return out
}

type fakeSubscription struct {
	removed int
}

func (s *fakeSubscription) Remove() error {
	s.removed++
	return nil
}

type fakeEvents struct {
	mu         sync.Mutex
	subscribes int
	subs       []*fakeSubscription
	handler    ports.EventHandler
	err        error
}

func (f *fakeEvents) Subscribe(_ domain.SessionID, _ domain.EventType, h ports.EventHandler) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subscribes++
	f.handler = h
	sub := &fakeSubscription{}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeEvents) deliver(t *testing.T, payload map[string]any) {
	t.Helper()
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	require.NotNil(t, h, "no channel subscription registered")
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h(raw)
}

func newTestStore(bridge *fakeBridge, events *fakeEvents) *Store {
	s := New("session-1", bridge, events, nil, zap.NewNop().Sugar())
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func strptr(s string) *string { return &s }

func TestSet_ReturnsFinalValue(t *testing.T) {
	bridge := newFakeBridge()
	bridge.responses[ports.CmdSetSessionValue] = json.RawMessage(`{"finalValue":"server-side"}`)
	s := newTestStore(bridge, &fakeEvents{})

	got, err := s.Set(context.Background(), "topic", strptr("client-side"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "server-side", *got)

	calls := bridge.callsFor(ports.CmdSetSessionValue)
	require.Len(t, calls, 1)
	assert.Equal(t, "topic", calls[0].payload["key"])
	assert.Equal(t, "client-side", calls[0].payload["value"])
}

func TestSet_NilClearsKey(t *testing.T) {
	bridge := newFakeBridge()
	bridge.responses[ports.CmdSetSessionValue] = json.RawMessage(`{"finalValue":null}`)
	s := newTestStore(bridge, &fakeEvents{})

	got, err := s.Set(context.Background(), "topic", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	calls := bridge.callsFor(ports.CmdSetSessionValue)
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].payload["value"])
}

func TestGet_AlwaysHitsBridge(t *testing.T) {
	bridge := newFakeBridge()
	bridge.responses[ports.CmdGetSessionValue] = json.RawMessage(`{"value":"pinned"}`)
	s := newTestStore(bridge, &fakeEvents{})

	for i := 0; i < 3; i++ {
		got, err := s.Get(context.Background(), "pin")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "pinned", *got)
	}
	assert.Len(t, bridge.callsFor(ports.CmdGetSessionValue), 3)
}

func TestGet_BridgeError(t *testing.T) {
	bridge := newFakeBridge()
	bridge.errs[ports.CmdGetSessionValue] = errors.New("boom")
	s := newTestStore(bridge, &fakeEvents{})

	_, err := s.Get(context.Background(), "pin")
	assert.Error(t, err)
}

func TestAddKeyChangeListener_UniqueIDFormat(t *testing.T) {
	bridge := newFakeBridge()
	s := newTestStore(bridge, &fakeEvents{})

	s.AddKeyChangeListener(context.Background(), []string{"a", "b"}, func(error, *KeyChange) {})

	calls := bridge.callsFor(ports.CmdAddKeyChangeListener)
	require.Len(t, calls, 1)
	assert.Equal(t, "ab_1700000000000", calls[0].payload["uniqueId"])
}

func TestAddKeyChangeListener_SingleChannelSubscription(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) {})
	s.AddKeyChangeListener(context.Background(), []string{"b"}, func(error, *KeyChange) {})
	s.AddKeyChangeListener(context.Background(), []string{"a", "b"}, func(error, *KeyChange) {})

	assert.Equal(t, 1, events.subscribes, "channel is shared across registrations")
	assert.Len(t, bridge.callsFor(ports.CmdAddKeyChangeListener), 3)
}

func TestKeyChange_FanOutPerKey(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	var first, second []KeyChange
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(err error, c *KeyChange) {
		require.NoError(t, err)
		first = append(first, *c)
	})
	s.AddKeyChangeListener(context.Background(), []string{"a", "b"}, func(err error, c *KeyChange) {
		require.NoError(t, err)
		second = append(second, *c)
	})

	events.deliver(t, map[string]any{"id": "session-1", "key": "a", "value": "1"})
	events.deliver(t, map[string]any{"id": "session-1", "key": "b", "value": "2"})
	events.deliver(t, map[string]any{"id": "session-1", "key": "unwatched", "value": "3"})

	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].Key)

	require.Len(t, second, 2)
	assert.Equal(t, "a", second[0].Key)
	assert.Equal(t, "b", second[1].Key)
	require.NotNil(t, second[1].Value)
	assert.Equal(t, "2", *second[1].Value)
}

func TestKeyChange_OtherSessionDiscarded(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	fired := 0
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) { fired++ })

	events.deliver(t, map[string]any{"id": "session-2", "key": "a", "value": "1"})
	assert.Zero(t, fired)
}

func TestKeyChange_ClearedValueIsNil(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	var got *KeyChange
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(_ error, c *KeyChange) { got = c })

	events.deliver(t, map[string]any{"id": "session-1", "key": "a", "value": nil})
	require.NotNil(t, got)
	assert.Nil(t, got.Value)
}

func TestAddKeyChangeListener_RegistrationFailure(t *testing.T) {
	bridge := newFakeBridge()
	bridge.errs[ports.CmdAddKeyChangeListener] = errors.New("nope")
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	var errs []error
	sub := s.AddKeyChangeListener(context.Background(), []string{"a"}, func(err error, c *KeyChange) {
		require.Nil(t, c)
		errs = append(errs, err)
	})

	require.Len(t, errs, 1, "failure callback fires exactly once")
	assert.True(t, errors.Is(errs[0], domain.ErrWatchRejected))

	// The registration rolled back, so later changes must not reach it.
	if events.handler != nil {
		events.deliver(t, map[string]any{"id": "session-1", "key": "a", "value": "1"})
	}
	assert.Len(t, errs, 1)

	// The returned subscription is inert.
	sub.Remove()
	sub.Remove()
}

func TestRemove_LastRegistrationClosesChannel(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	sub1 := s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) {})
	sub2 := s.AddKeyChangeListener(context.Background(), []string{"b"}, func(error, *KeyChange) {})

	sub1.Remove()
	require.Len(t, events.subs, 1)
	assert.Zero(t, events.subs[0].removed, "channel stays up while a registration remains")

	sub2.Remove()
	assert.Equal(t, 1, events.subs[0].removed)
	assert.Len(t, bridge.callsFor(ports.CmdRemoveKeyChangeListener), 2)
}

func TestRemove_Idempotent(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	sub := s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) {})
	sub.Remove()
	sub.Remove()
	sub.Remove()

	assert.Len(t, bridge.callsFor(ports.CmdRemoveKeyChangeListener), 1)

	// A fresh registration after full teardown recreates the channel.
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) {})
	assert.Equal(t, 2, events.subscribes)
}

func TestRemovedRegistrationStopsReceiving(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	// Distinct timestamps so each registration gets its own unique id.
	var tick int64
	s.now = func() time.Time { tick++; return time.UnixMilli(tick) }

	var kept, dropped int
	subDropped := s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) { dropped++ })
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) { kept++ })

	subDropped.Remove()
	events.deliver(t, map[string]any{"id": "session-1", "key": "a", "value": "1"})

	assert.Zero(t, dropped)
	assert.Equal(t, 1, kept)
}

func TestClose_ForceReleasesEverything(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	s := newTestStore(bridge, events)

	fired := 0
	s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) { fired++ })
	s.AddKeyChangeListener(context.Background(), []string{"b"}, func(error, *KeyChange) { fired++ })

	s.Close()
	require.Len(t, events.subs, 1)
	assert.Equal(t, 1, events.subs[0].removed)

	events.deliver(t, map[string]any{"id": "session-1", "key": "a", "value": "1"})
	assert.Zero(t, fired)

	// Close is safe to call again with nothing registered.
	s.Close()
}

func TestMetrics_ListenerGauge(t *testing.T) {
	bridge := newFakeBridge()
	events := &fakeEvents{}
	m := &gaugeMetrics{}
	s := New("session-1", bridge, events, m, zap.NewNop().Sugar())
	s.now = func() time.Time { return time.UnixMilli(1) }

	sub := s.AddKeyChangeListener(context.Background(), []string{"a"}, func(error, *KeyChange) {})
	assert.Equal(t, []int{1}, m.listenerCounts)

	sub.Remove()
	assert.Equal(t, []int{1, 0}, m.listenerCounts)
}

type gaugeMetrics struct {
	ports.NopMetrics
	listenerCounts []int
}

func (m *gaugeMetrics) KeyChangeListeners(n int) {
	m.listenerCounts = append(m.listenerCounts, n)
}
