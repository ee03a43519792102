package domain

// UpdateKind discriminates which attribute of a peer or one of its
// tracks changed. Peer-update and track-update events share the cache
// merge path, so both families live in one closed set.
type UpdateKind string

const (
	PeerJoined            UpdateKind = "PEER_JOINED"
	PeerLeft              UpdateKind = "PEER_LEFT"
	RoleChanged           UpdateKind = "ROLE_CHANGED"
	MetadataChanged       UpdateKind = "METADATA_CHANGED"
	NameChanged           UpdateKind = "NAME_CHANGED"
	NetworkQualityUpdated UpdateKind = "NETWORK_QUALITY_UPDATED"
	HandRaisedChanged     UpdateKind = "HAND_RAISED_CHANGED"

	TrackAdded    UpdateKind = "TRACK_ADDED"
	TrackRemoved  UpdateKind = "TRACK_REMOVED"
	TrackMuted    UpdateKind = "TRACK_MUTED"
	TrackUnmuted  UpdateKind = "TRACK_UNMUTED"
	TrackDegraded UpdateKind = "TRACK_DEGRADED"
	TrackRestored UpdateKind = "TRACK_RESTORED"

	// UpdateUnknown marks a discriminator the encoder could not map.
	// The cache falls back to a generic shallow merge for it.
	UpdateUnknown UpdateKind = ""
)

// RoomUpdateKind discriminates room-level state changes.
type RoomUpdateKind string

const (
	RoomJoined                   RoomUpdateKind = "ROOM_JOINED"
	RoomMuted                    RoomUpdateKind = "ROOM_MUTED"
	RoomUnmuted                  RoomUpdateKind = "ROOM_UNMUTED"
	RoomPeerCountUpdated         RoomUpdateKind = "ROOM_PEER_COUNT_UPDATED"
	BrowserRecordingUpdated      RoomUpdateKind = "BROWSER_RECORDING_STATE_UPDATED"
	ServerRecordingUpdated       RoomUpdateKind = "SERVER_RECORDING_STATE_UPDATED"
	HLSRecordingUpdated          RoomUpdateKind = "HLS_RECORDING_STATE_UPDATED"
	RTMPStreamingUpdated         RoomUpdateKind = "RTMP_STREAMING_STATE_UPDATED"
	HLSStreamingUpdated          RoomUpdateKind = "HLS_STREAMING_STATE_UPDATED"
	RoomUpdateUnknown            RoomUpdateKind = ""
)

// PeerUpdateOrdinals maps the small-integer discriminators some bridge
// platforms use to the canonical kinds. The table is sparse on purpose:
// ordinals 2 and 3 were retired upstream, and HAND_RAISED_CHANGED was
// never assigned one, so hand-raise updates can only arrive in string
// form. Do not fill the gaps by guessing.
var PeerUpdateOrdinals = map[string]UpdateKind{
	"0": PeerJoined,
	"1": PeerLeft,
	"4": RoleChanged,
	"5": MetadataChanged,
	"6": NameChanged,
	"7": NetworkQualityUpdated,
}
