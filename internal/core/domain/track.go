package domain

// TrackType is the media kind of a published track.
type TrackType string

const (
	TrackTypeAudio TrackType = "AUDIO"
	TrackTypeVideo TrackType = "VIDEO"
)

// TrackSource tells where a track comes from. A peer has at most one
// regular audio and one regular video track; everything else lives in
// the auxiliary collection.
type TrackSource string

const (
	TrackSourceRegular TrackSource = "regular"
	TrackSourceScreen  TrackSource = "screen"
	TrackSourcePlugin  TrackSource = "plugin"
)

// Track is one media stream published by a peer. IsDegraded is only
// meaningful for video tracks; the media engine raises degradation and
// mute as independent signals, so the flag survives mute transitions.
type Track struct {
	TrackID     TrackID
	NativeID    string
	Source      TrackSource
	Type        TrackType
	Description string
	Mute        bool
	IsDegraded  bool
}

// IsRegular reports whether the track occupies a peer's primary
// audio or video slot.
func (t Track) IsRegular() bool {
	return t.Source == TrackSourceRegular
}
