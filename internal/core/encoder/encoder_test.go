package encoder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
)

func newTestEncoder() *Encoder {
	return New(zap.NewNop().Sugar())
}

func TestPeerUpdate_StringAndOrdinalAgree(t *testing.T) {
	enc := newTestEncoder()

	cases := []struct {
		name    string
		ordinal string
		kind    domain.UpdateKind
	}{
		{"PEER_JOINED", "0", domain.PeerJoined},
		{"PEER_LEFT", "1", domain.PeerLeft},
		{"ROLE_CHANGED", "4", domain.RoleChanged},
		{"METADATA_CHANGED", "5", domain.MetadataChanged},
		{"NAME_CHANGED", "6", domain.NameChanged},
		{"NETWORK_QUALITY_UPDATED", "7", domain.NetworkQualityUpdated},
	}
	for _, tc := range cases {
		byName, _, ok := enc.PeerUpdate(json.RawMessage(`"` + tc.name + `"`))
		require.True(t, ok, tc.name)

		byOrdinal, _, ok := enc.PeerUpdate(json.RawMessage(tc.ordinal))
		require.True(t, ok, tc.ordinal)

		byQuotedOrdinal, _, ok := enc.PeerUpdate(json.RawMessage(`"` + tc.ordinal + `"`))
		require.True(t, ok, tc.ordinal)

		assert.Equal(t, tc.kind, byName)
		assert.Equal(t, tc.kind, byOrdinal)
		assert.Equal(t, tc.kind, byQuotedOrdinal)
	}
}

func TestPeerUpdate_RetiredOrdinalsUnknown(t *testing.T) {
	enc := newTestEncoder()

	for _, ordinal := range []string{"2", "3", "8"} {
		kind, raw, ok := enc.PeerUpdate(json.RawMessage(ordinal))
		assert.False(t, ok, ordinal)
		assert.Equal(t, domain.UpdateUnknown, kind)
		assert.Equal(t, ordinal, raw, "raw tag must survive for the generic merge path")
	}
}

func TestPeerUpdate_HandRaisedHasNoOrdinal(t *testing.T) {
	enc := newTestEncoder()

	kind, _, ok := enc.PeerUpdate(json.RawMessage(`"HAND_RAISED_CHANGED"`))
	require.True(t, ok)
	assert.Equal(t, domain.HandRaisedChanged, kind)

	for ordinal := range domain.PeerUpdateOrdinals {
		assert.NotEqual(t, domain.HandRaisedChanged, domain.PeerUpdateOrdinals[ordinal])
	}
}

func TestPeerEvent_DynamicOrdinalKey(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{"6":"peer-1","name":"Alice","isLocal":false}`)
	peerID, peer, data := enc.PeerEvent(payload)

	assert.Equal(t, domain.PeerID("peer-1"), peerID)
	require.NotNil(t, peer)
	assert.Equal(t, "Alice", peer.Name)
	assert.Equal(t, domain.NameChanged, data.Kind)
	require.NotNil(t, data.Name)
	assert.Equal(t, "Alice", *data.Name)
}

func TestPeerEvent_ExplicitPeerObject(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{"peer":{"peerID":"peer-2","name":"Bob"},"type":"METADATA_CHANGED","metadata":"{\"mood\":\"ok\"}"}`)
	peerID, peer, data := enc.PeerEvent(payload)

	assert.Equal(t, domain.PeerID("peer-2"), peerID)
	require.NotNil(t, peer)
	assert.Equal(t, domain.MetadataChanged, data.Kind)
	require.NotNil(t, data.Metadata)
	assert.Equal(t, `{"mood":"ok"}`, *data.Metadata)
}

func TestTrackEvent_Decodes(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{
		"peer": {"peerID": "peer-1"},
		"track": {"trackId": "t-1", "source": "REGULAR", "type": "video", "mute": true},
		"type": "TRACK_MUTED"
	}`)
	peerID, _, track, data := enc.TrackEvent(payload)

	assert.Equal(t, domain.PeerID("peer-1"), peerID)
	require.NotNil(t, track)
	assert.Equal(t, domain.TrackSourceRegular, track.Source)
	assert.Equal(t, domain.TrackTypeVideo, track.Type)
	assert.True(t, track.Mute)
	assert.Equal(t, domain.TrackMuted, data.Kind)
}

func TestTrack_NormalizesCase(t *testing.T) {
	enc := newTestEncoder()

	track := enc.Track(json.RawMessage(`{"trackId":"t-1","source":"SCREEN","type":"audio"}`))
	require.NotNil(t, track)
	assert.Equal(t, domain.TrackSourceScreen, track.Source)
	assert.Equal(t, domain.TrackTypeAudio, track.Type)
}

func TestTrack_EmptyInputs(t *testing.T) {
	enc := newTestEncoder()

	assert.Nil(t, enc.Track(nil))
	assert.Nil(t, enc.Track(json.RawMessage(`null`)))
	assert.Nil(t, enc.Track(json.RawMessage(`{}`)))
}

func TestNetworkQuality_DefaultsToMinusOne(t *testing.T) {
	enc := newTestEncoder()

	q := enc.NetworkQuality(json.RawMessage(`{}`))
	require.NotNil(t, q)
	assert.Equal(t, -1, q.DownlinkQuality)

	q = enc.NetworkQuality(json.RawMessage(`{"downlinkQuality":3}`))
	require.NotNil(t, q)
	assert.Equal(t, 3, q.DownlinkQuality)
}

func TestTimestamp_MillisecondForms(t *testing.T) {
	enc := newTestEncoder()

	want := time.UnixMilli(1700000000000)

	ts := enc.Timestamp(json.RawMessage(`1700000000000`))
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(want))

	ts = enc.Timestamp(json.RawMessage(`"1700000000000"`))
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(want))

	assert.Nil(t, enc.Timestamp(json.RawMessage(`"not a number"`)))
	assert.Nil(t, enc.Timestamp(nil))
}

func TestPeer_NestedObjects(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{
		"peerID": "peer-1",
		"name": "Alice",
		"isLocal": true,
		"role": {"name": "host", "permissions": {"endRoom": true}},
		"networkQuality": {"downlinkQuality": 4},
		"audioTrack": {"trackId": "a-1", "type": "AUDIO"},
		"auxiliaryTracks": [{"trackId": "s-1", "source": "screen", "type": "VIDEO"}]
	}`)
	peer := enc.Peer(payload)

	require.NotNil(t, peer)
	assert.True(t, peer.IsLocal)
	require.NotNil(t, peer.Role)
	assert.Equal(t, "host", peer.Role.Name)
	assert.True(t, peer.Role.Permissions.EndRoom)
	require.NotNil(t, peer.NetworkQuality)
	assert.Equal(t, 4, peer.NetworkQuality.DownlinkQuality)
	require.NotNil(t, peer.AudioTrack)
	require.Len(t, peer.AuxiliaryTracks, 1)
	assert.Equal(t, domain.TrackSourceScreen, peer.AuxiliaryTracks[0].Source)
}

func TestRoomEvent_SubstateExtraction(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{
		"room": {
			"id": "room-1",
			"name": "standup",
			"browserRecordingState": {"running": true, "startedAt": 1700000000000}
		},
		"type": "BROWSER_RECORDING_STATE_UPDATED"
	}`)
	room, data := enc.RoomEvent(payload)

	require.NotNil(t, room)
	assert.Equal(t, domain.RoomID("room-1"), room.ID)
	assert.Equal(t, domain.BrowserRecordingUpdated, data.Kind)
	require.NotNil(t, data.BrowserRecordingState)
	assert.True(t, data.BrowserRecordingState.Running)
	require.NotNil(t, data.BrowserRecordingState.StartedAt)
}

func TestMessage_Decodes(t *testing.T) {
	enc := newTestEncoder()

	payload := json.RawMessage(`{
		"sender": {"peerID": "peer-1", "name": "Alice"},
		"recipient": {"recipientType": "broadcast"},
		"message": "hello",
		"type": "chat",
		"time": 1700000000000
	}`)
	msg := enc.Message(payload)

	require.NotNil(t, msg)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Alice", msg.Sender.Name)
	assert.Equal(t, domain.RecipientBroadcast, msg.Recipient.Type)
	assert.Equal(t, "hello", msg.Payload)
	assert.True(t, msg.Time.Equal(time.UnixMilli(1700000000000)))
}

func TestException_Decodes(t *testing.T) {
	enc := newTestEncoder()

	ex := enc.Exception(json.RawMessage(`{"code":4005,"description":"token expired","isTerminal":true}`))
	require.NotNil(t, ex)
	assert.Equal(t, 4005, ex.Code)
	assert.True(t, ex.IsTerminal)
	assert.False(t, ex.CanRetry)
}
