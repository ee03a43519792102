package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/encoder"
)

type fakeResolver struct {
	mu        sync.Mutex
	calls     map[string]int
	responses map[string]json.RawMessage
	err       error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:     make(map[string]int),
		responses: make(map[string]json.RawMessage),
	}
}

func (f *fakeResolver) respond(peerID domain.PeerID, prop domain.PeerProperty, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[string(peerID)+"/"+string(prop)] = json.RawMessage(value)
}

func (f *fakeResolver) callCount(peerID domain.PeerID, prop domain.PeerProperty) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[string(peerID)+"/"+string(prop)]
}

func (f *fakeResolver) PeerProperty(_ domain.SessionID, peerID domain.PeerID, prop domain.PeerProperty) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(peerID) + "/" + string(prop)
	f.calls[key]++
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return json.RawMessage("null"), nil
}

func (f *fakeResolver) RoomProperty(_ domain.SessionID, prop domain.RoomProperty) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "room/" + string(prop)
	f.calls[key]++
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return json.RawMessage("null"), nil
}

func newTestPeers(resolver *fakeResolver) *Peers {
	log := zap.NewNop().Sugar()
	return NewPeers("session-1", resolver, encoder.New(log), nil, log)
}

func TestPeers_PropertyResolvedOnce(t *testing.T) {
	resolver := newFakeResolver()
	resolver.respond("peer-1", domain.PeerPropName, `{"name":"Alice"}`)
	peers := newTestPeers(resolver)

	name, err := peers.Name("peer-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	name, err = peers.Name("peer-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	assert.Equal(t, 1, resolver.callCount("peer-1", domain.PeerPropName))
}

func TestPeers_NullResultMemoized(t *testing.T) {
	resolver := newFakeResolver()
	resolver.respond("peer-1", domain.PeerPropRole, `{"role":null}`)
	peers := newTestPeers(resolver)

	role, err := peers.Role("peer-1")
	require.NoError(t, err)
	assert.Nil(t, role)

	role, err = peers.Role("peer-1")
	require.NoError(t, err)
	assert.Nil(t, role)

	assert.Equal(t, 1, resolver.callCount("peer-1", domain.PeerPropRole))
}

func TestPeers_ResolverErrorNotMemoized(t *testing.T) {
	resolver := newFakeResolver()
	resolver.err = fmt.Errorf("bridge gone")
	peers := newTestPeers(resolver)

	_, err := peers.Name("peer-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPropertyUnavailable)

	resolver.mu.Lock()
	resolver.err = nil
	resolver.mu.Unlock()
	resolver.respond("peer-1", domain.PeerPropName, `{"name":"Bob"}`)

	name, err := peers.Name("peer-1")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Equal(t, 2, resolver.callCount("peer-1", domain.PeerPropName))
}

func TestPeers_BareValuePassesThrough(t *testing.T) {
	resolver := newFakeResolver()
	resolver.respond("peer-1", domain.PeerPropIsLocal, `true`)
	peers := newTestPeers(resolver)

	isLocal, err := peers.IsLocal("peer-1")
	require.NoError(t, err)
	assert.True(t, isLocal)
}

func TestPeers_PeerJoinedIdempotent(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.PeerJoined,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Alice"},
	})
	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.PeerJoined,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Impostor"},
	})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	assert.Equal(t, "Alice", snap.Name)
	assert.Equal(t, 1, peers.Len())
}

func TestPeers_PeerLeftEvicts(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.PeerJoined,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Alice"},
	})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.PeerLeft})

	_, ok := peers.Snapshot("peer-1")
	assert.False(t, ok)
	assert.Equal(t, 0, peers.Len())
}

func TestPeers_DepartedPeerNotResurrectedByStraggler(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.PeerJoined,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Alice"},
	})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.PeerLeft})

	screen := domain.Track{TrackID: "s-1", Source: domain.TrackSourceScreen, Type: domain.TrackTypeVideo}
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &screen})
	name := "Ghost"
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.NameChanged, Name: &name})

	_, ok := peers.Snapshot("peer-1")
	assert.False(t, ok, "delete wins over later updates")
	assert.Equal(t, 0, peers.Len())

	// Only an explicit join brings the peer back.
	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.PeerJoined,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Alice"},
	})
	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	assert.Equal(t, "Alice", snap.Name)
	assert.Empty(t, snap.AuxiliaryTracks, "dropped updates leave no trace")
}

func TestPeers_NameChangedTargetedSet(t *testing.T) {
	peers := newTestPeers(newFakeResolver())
	name := "Renamed"

	peers.Apply("peer-1", domain.UpdateData{Kind: domain.NameChanged, Name: &name})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", snap.Name)
}

func TestPeers_EmptyUpdateDiscarded(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	// A metadata update with no value marks nothing; the entry must
	// not survive.
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.MetadataChanged})

	assert.Equal(t, 0, peers.Len())
	_, ok := peers.Snapshot("peer-1")
	assert.False(t, ok)
}

func TestPeers_MuteTransitionPreservesDegraded(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	video := domain.Track{
		TrackID: "t-1",
		Source:  domain.TrackSourceRegular,
		Type:    domain.TrackTypeVideo,
	}

	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &video})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackDegraded, Track: &video})

	muted := video
	muted.Mute = true
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackMuted, Track: &muted})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	require.NotNil(t, snap.VideoTrack)
	assert.True(t, snap.VideoTrack.Mute)
	assert.True(t, snap.VideoTrack.IsDegraded, "degraded flag must survive the mute transition")

	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackRestored, Track: &muted})
	snap, _ = peers.Snapshot("peer-1")
	assert.False(t, snap.VideoTrack.IsDegraded)
}

func TestPeers_TrackAddedClearsDegraded(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	video := domain.Track{
		TrackID:    "t-1",
		Source:     domain.TrackSourceRegular,
		Type:       domain.TrackTypeVideo,
		IsDegraded: true,
	}
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &video})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	require.NotNil(t, snap.VideoTrack)
	assert.False(t, snap.VideoTrack.IsDegraded, "a freshly added track starts undegraded")
}

func TestPeers_AuxiliaryTracksUpsertKeepsOrder(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	screen := domain.Track{TrackID: "s-1", Source: domain.TrackSourceScreen, Type: domain.TrackTypeVideo}
	plugin := domain.Track{TrackID: "p-1", Source: domain.TrackSourcePlugin, Type: domain.TrackTypeVideo}

	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &screen})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &plugin})

	updated := screen
	updated.Mute = true
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackMuted, Track: &updated})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	require.Len(t, snap.AuxiliaryTracks, 2)
	assert.Equal(t, domain.TrackID("s-1"), snap.AuxiliaryTracks[0].TrackID)
	assert.True(t, snap.AuxiliaryTracks[0].Mute)
	assert.Equal(t, domain.TrackID("p-1"), snap.AuxiliaryTracks[1].TrackID)
}

func TestPeers_MuteChangeIgnoresUnknownAuxiliary(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	screen := domain.Track{TrackID: "s-1", Source: domain.TrackSourceScreen, Type: domain.TrackTypeVideo}
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &screen})

	stranger := domain.Track{TrackID: "x-9", Source: domain.TrackSourceScreen, Type: domain.TrackTypeVideo, Mute: true}
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackMuted, Track: &stranger})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackDegraded, Track: &stranger})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	require.Len(t, snap.AuxiliaryTracks, 1, "only TRACK_ADDED may grow a known collection")
	assert.Equal(t, domain.TrackID("s-1"), snap.AuxiliaryTracks[0].TrackID)
}

func TestPeers_TrackRemoved(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	audio := domain.Track{TrackID: "a-1", Source: domain.TrackSourceRegular, Type: domain.TrackTypeAudio}
	screen := domain.Track{TrackID: "s-1", Source: domain.TrackSourceScreen, Type: domain.TrackTypeVideo}

	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &audio})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackAdded, Track: &screen})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackRemoved, Track: &audio})
	peers.Apply("peer-1", domain.UpdateData{Kind: domain.TrackRemoved, Track: &screen})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	assert.Nil(t, snap.AudioTrack)
	assert.Empty(t, snap.AuxiliaryTracks)
}

func TestPeers_UnknownKindFallsBackToMerge(t *testing.T) {
	peers := newTestPeers(newFakeResolver())

	peers.Apply("peer-1", domain.UpdateData{
		Kind: domain.UpdateUnknown,
		Peer: &domain.Peer{PeerID: "peer-1", Name: "Alice", Metadata: "m"},
	})

	snap, ok := peers.Snapshot("peer-1")
	require.True(t, ok)
	assert.Equal(t, "Alice", snap.Name)
	assert.Equal(t, "m", snap.Metadata)
}

func TestPeers_CleanupDropsEverything(t *testing.T) {
	resolver := newFakeResolver()
	resolver.respond("peer-1", domain.PeerPropName, `{"name":"Alice"}`)
	peers := newTestPeers(resolver)

	_, err := peers.Name("peer-1")
	require.NoError(t, err)
	peers.Cleanup()

	assert.Equal(t, 0, peers.Len())

	// A read after cleanup goes back to the bridge.
	_, err = peers.Name("peer-1")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.callCount("peer-1", domain.PeerPropName))
}
