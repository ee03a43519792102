package domain

import "time"

// Room is the shared session state. One instance exists per active
// join/preview session and is discarded on leave or removal.
type Room struct {
	ID        RoomID
	Name      string
	SessionID string
	PeerCount *int
	LocalPeer *Peer

	BrowserRecordingState BrowserRecordingState
	ServerRecordingState  ServerRecordingState
	HLSRecordingState     HLSRecordingState
	RTMPStreamingState    RTMPStreamingState
	HLSStreamingState     HLSStreamingState
}

type BrowserRecordingState struct {
	Running   bool
	StartedAt *time.Time
	StoppedAt *time.Time
	Error     *Exception
}

type ServerRecordingState struct {
	Running   bool
	StartedAt *time.Time
	Error     *Exception
}

type HLSRecordingState struct {
	Running   bool
	StartedAt *time.Time
}

type RTMPStreamingState struct {
	Running   bool
	StartedAt *time.Time
	StoppedAt *time.Time
	Error     *Exception
}

type HLSStreamingState struct {
	Running  bool
	Variants []HLSVariant
}

// HLSVariant is one playable rendition of the room's HLS stream. The
// URL is opaque to this layer and handed to the player as-is.
type HLSVariant struct {
	HLSStreamURL string
	MeetingURL   string
	Metadata     string
	StartedAt    *time.Time
}
