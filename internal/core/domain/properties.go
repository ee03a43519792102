package domain

// PeerProperty enumerates the individually cacheable peer attributes.
// Each one can be resolved from the bridge on its own, so the peer
// cache never needs a full peer object up front.
type PeerProperty string

const (
	PeerPropName            PeerProperty = "name"
	PeerPropIsLocal         PeerProperty = "isLocal"
	PeerPropCustomerUserID  PeerProperty = "customerUserID"
	PeerPropMetadata        PeerProperty = "metadata"
	PeerPropRole            PeerProperty = "role"
	PeerPropNetworkQuality  PeerProperty = "networkQuality"
	PeerPropAudioTrack      PeerProperty = "audioTrack"
	PeerPropVideoTrack      PeerProperty = "videoTrack"
	PeerPropAuxiliaryTracks PeerProperty = "auxiliaryTracks"
	PeerPropIsHandRaised    PeerProperty = "isHandRaised"
	PeerPropType            PeerProperty = "type"
)

// RoomProperty enumerates the cacheable room attributes.
type RoomProperty string

const (
	RoomPropName                  RoomProperty = "name"
	RoomPropSessionID             RoomProperty = "sessionId"
	RoomPropPeerCount             RoomProperty = "peerCount"
	RoomPropLocalPeer             RoomProperty = "localPeer"
	RoomPropBrowserRecordingState RoomProperty = "browserRecordingState"
	RoomPropServerRecordingState  RoomProperty = "serverRecordingState"
	RoomPropHLSRecordingState     RoomProperty = "hlsRecordingState"
	RoomPropRTMPStreamingState    RoomProperty = "rtmpStreamingState"
	RoomPropHLSStreamingState     RoomProperty = "hlsStreamingState"
)
