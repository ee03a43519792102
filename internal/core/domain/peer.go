package domain

type PeerID string
type RoomID string
type SessionID string
type TrackID string

// PeerType distinguishes regular participants from dial-in (SIP) ones.
type PeerType string

const (
	PeerTypeRegular PeerType = "REGULAR"
	PeerTypeSIP     PeerType = "SIP"
)

// Peer is one participant in a room session. PeerID is the only stable
// join key between cache entries and bridge events.
type Peer struct {
	PeerID          PeerID
	Name            string
	IsLocal         bool
	CustomerUserID  string
	Metadata        string
	Type            PeerType
	IsHandRaised    bool
	Role            *Role
	NetworkQuality  *NetworkQuality
	AudioTrack      *Track
	VideoTrack      *Track
	AuxiliaryTracks []Track
}

// NetworkQuality is the bridge's downlink score for a peer, 0 (bad)
// to 5 (good). -1 means the score is not yet known.
type NetworkQuality struct {
	DownlinkQuality int
}

// Role is the set of capabilities assigned to a peer by the platform.
type Role struct {
	Name        string
	Priority    int
	Permissions Permissions
	PublishAllowed   bool
	SubscribeAllowed bool
}

type Permissions struct {
	EndRoom           bool
	RemoveOthers      bool
	Mute              bool
	Unmute            bool
	ChangeRole        bool
	BrowserRecording  bool
	RTMPStreaming     bool
	HLSStreaming      bool
}
