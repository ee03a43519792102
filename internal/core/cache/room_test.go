package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/encoder"
)

func newTestRoom(resolver *fakeResolver) *Room {
	log := zap.NewNop().Sugar()
	return NewRoom("session-1", resolver, encoder.New(log), log)
}

func TestRoom_PropertyResolvedOnce(t *testing.T) {
	resolver := newFakeResolver()
	resolver.mu.Lock()
	resolver.responses["room/name"] = []byte(`{"name":"standup"}`)
	resolver.mu.Unlock()
	room := newTestRoom(resolver)

	name, err := room.Name()
	require.NoError(t, err)
	assert.Equal(t, "standup", name)

	name, err = room.Name()
	require.NoError(t, err)
	assert.Equal(t, "standup", name)
	assert.Equal(t, 1, resolver.callCount("room", "name"))
}

func TestRoom_NullPropertyMemoized(t *testing.T) {
	resolver := newFakeResolver()
	room := newTestRoom(resolver)

	peer, err := room.LocalPeer()
	require.NoError(t, err)
	assert.Nil(t, peer)

	_, err = room.LocalPeer()
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.callCount("room", "localPeer"))
}

func TestRoom_PeerCountUpdateApplied(t *testing.T) {
	resolver := newFakeResolver()
	room := newTestRoom(resolver)

	count := 4
	room.Apply(domain.RoomUpdateData{Kind: domain.RoomPeerCountUpdated, PeerCount: &count})

	got, err := room.PeerCount()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, *got)
	// The pushed value serves the read, no bridge query.
	assert.Equal(t, 0, resolver.callCount("room", "peerCount"))
}

func TestRoom_RecordingSubstatesApplied(t *testing.T) {
	room := newTestRoom(newFakeResolver())

	room.Apply(domain.RoomUpdateData{
		Kind:                  domain.BrowserRecordingUpdated,
		BrowserRecordingState: &domain.BrowserRecordingState{Running: true},
	})
	room.Apply(domain.RoomUpdateData{
		Kind:              domain.HLSStreamingUpdated,
		HLSStreamingState: &domain.HLSStreamingState{Running: true},
	})

	rec, err := room.BrowserRecordingState()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Running)

	hls, err := room.HLSStreamingState()
	require.NoError(t, err)
	require.NotNil(t, hls)
	assert.True(t, hls.Running)
}

func TestRoom_MuteUpdatesAreIgnored(t *testing.T) {
	resolver := newFakeResolver()
	resolver.mu.Lock()
	resolver.responses["room/name"] = []byte(`{"name":"standup"}`)
	resolver.mu.Unlock()
	room := newTestRoom(resolver)

	room.Apply(domain.RoomUpdateData{Kind: domain.RoomMuted})
	room.Apply(domain.RoomUpdateData{Kind: domain.RoomUnmuted})

	name, err := room.Name()
	require.NoError(t, err)
	assert.Equal(t, "standup", name)
}

func TestRoom_SnapshotMergeOnJoin(t *testing.T) {
	resolver := newFakeResolver()
	room := newTestRoom(resolver)

	count := 2
	room.Apply(domain.RoomUpdateData{
		Kind: domain.RoomUpdateUnknown,
		Room: &domain.Room{
			Name:      "standup",
			SessionID: "srv-1",
			PeerCount: &count,
		},
	})

	name, err := room.Name()
	require.NoError(t, err)
	assert.Equal(t, "standup", name)

	sid, err := room.ServerSessionID()
	require.NoError(t, err)
	assert.Equal(t, "srv-1", sid)
	assert.Equal(t, 0, resolver.callCount("room", "name"))
}

func TestRoom_CleanupForcesRequery(t *testing.T) {
	resolver := newFakeResolver()
	resolver.mu.Lock()
	resolver.responses["room/name"] = []byte(`{"name":"standup"}`)
	resolver.mu.Unlock()
	room := newTestRoom(resolver)

	_, err := room.Name()
	require.NoError(t, err)
	room.Cleanup()

	_, err = room.Name()
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.callCount("room", "name"))
}
