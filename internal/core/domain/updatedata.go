package domain

// UpdateData is the decoded payload of one peer or track update. The
// encoder fills exactly the fields the update kind carries; the cache
// merge never re-parses anything.
type UpdateData struct {
	Kind    UpdateKind
	RawKind string // original wire tag, kept when Kind is UpdateUnknown

	Peer           *Peer // snapshot for PEER_JOINED and generic merges
	Track          *Track
	Role           *Role
	NetworkQuality *NetworkQuality
	Metadata       *string
	Name           *string
	IsHandRaised   *bool
}

// RoomUpdateData is the decoded payload of one room update.
type RoomUpdateData struct {
	Kind    RoomUpdateKind
	RawKind string

	Room                  *Room // snapshot for joins and generic merges
	PeerCount             *int
	BrowserRecordingState *BrowserRecordingState
	ServerRecordingState  *ServerRecordingState
	HLSRecordingState     *HLSRecordingState
	RTMPStreamingState    *RTMPStreamingState
	HLSStreamingState     *HLSStreamingState
}
