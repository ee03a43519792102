package encoder

import (
	"encoding/json"

	"roomlink/internal/core/domain"
)

type rawBrowserRecording struct {
	Running   *bool           `json:"running"`
	StartedAt json.RawMessage `json:"startedAt"`
	StoppedAt json.RawMessage `json:"stoppedAt"`
	Error     json.RawMessage `json:"error"`
}

type rawServerRecording struct {
	Running   *bool           `json:"running"`
	StartedAt json.RawMessage `json:"startedAt"`
	Error     json.RawMessage `json:"error"`
}

type rawHLSRecording struct {
	Running   *bool           `json:"running"`
	StartedAt json.RawMessage `json:"startedAt"`
}

type rawRTMPStreaming struct {
	Running   *bool           `json:"running"`
	StartedAt json.RawMessage `json:"startedAt"`
	StoppedAt json.RawMessage `json:"stoppedAt"`
	Error     json.RawMessage `json:"error"`
}

type rawHLSStreaming struct {
	Running  *bool             `json:"running"`
	Variants []json.RawMessage `json:"variants"`
}

type rawRoom struct {
	ID                    string          `json:"id"`
	Name                  *string         `json:"name"`
	SessionID             *string         `json:"sessionId"`
	PeerCount             *int            `json:"peerCount"`
	LocalPeer             json.RawMessage `json:"localPeer"`
	BrowserRecordingState json.RawMessage `json:"browserRecordingState"`
	ServerRecordingState  json.RawMessage `json:"serverRecordingState"`
	HLSRecordingState     json.RawMessage `json:"hlsRecordingState"`
	RTMPStreamingState    json.RawMessage `json:"rtmpStreamingState"`
	HLSStreamingState     json.RawMessage `json:"hlsStreamingState"`
}

// Room decodes a room snapshot with all its recording and streaming
// substates.
func (e *Encoder) Room(raw json.RawMessage) *domain.Room {
	var rr rawRoom
	if !e.decode(raw, &rr, "room") {
		return nil
	}

	room := &domain.Room{
		ID:        domain.RoomID(rr.ID),
		PeerCount: rr.PeerCount,
		LocalPeer: e.Peer(rr.LocalPeer),
	}
	if rr.Name != nil {
		room.Name = *rr.Name
	}
	if rr.SessionID != nil {
		room.SessionID = *rr.SessionID
	}
	if s := e.BrowserRecordingState(rr.BrowserRecordingState); s != nil {
		room.BrowserRecordingState = *s
	}
	if s := e.ServerRecordingState(rr.ServerRecordingState); s != nil {
		room.ServerRecordingState = *s
	}
	if s := e.HLSRecordingState(rr.HLSRecordingState); s != nil {
		room.HLSRecordingState = *s
	}
	if s := e.RTMPStreamingState(rr.RTMPStreamingState); s != nil {
		room.RTMPStreamingState = *s
	}
	if s := e.HLSStreamingState(rr.HLSStreamingState); s != nil {
		room.HLSStreamingState = *s
	}
	return room
}

func (e *Encoder) BrowserRecordingState(raw json.RawMessage) *domain.BrowserRecordingState {
	var rs rawBrowserRecording
	if !e.decode(raw, &rs, "browserRecordingState") {
		return nil
	}
	return &domain.BrowserRecordingState{
		Running:   boolOf(rs.Running),
		StartedAt: e.Timestamp(rs.StartedAt),
		StoppedAt: e.Timestamp(rs.StoppedAt),
		Error:     e.Exception(rs.Error),
	}
}

func (e *Encoder) ServerRecordingState(raw json.RawMessage) *domain.ServerRecordingState {
	var rs rawServerRecording
	if !e.decode(raw, &rs, "serverRecordingState") {
		return nil
	}
	return &domain.ServerRecordingState{
		Running:   boolOf(rs.Running),
		StartedAt: e.Timestamp(rs.StartedAt),
		Error:     e.Exception(rs.Error),
	}
}

func (e *Encoder) HLSRecordingState(raw json.RawMessage) *domain.HLSRecordingState {
	var rs rawHLSRecording
	if !e.decode(raw, &rs, "hlsRecordingState") {
		return nil
	}
	return &domain.HLSRecordingState{
		Running:   boolOf(rs.Running),
		StartedAt: e.Timestamp(rs.StartedAt),
	}
}

func (e *Encoder) RTMPStreamingState(raw json.RawMessage) *domain.RTMPStreamingState {
	var rs rawRTMPStreaming
	if !e.decode(raw, &rs, "rtmpStreamingState") {
		return nil
	}
	return &domain.RTMPStreamingState{
		Running:   boolOf(rs.Running),
		StartedAt: e.Timestamp(rs.StartedAt),
		StoppedAt: e.Timestamp(rs.StoppedAt),
		Error:     e.Exception(rs.Error),
	}
}

func (e *Encoder) HLSStreamingState(raw json.RawMessage) *domain.HLSStreamingState {
	var rs rawHLSStreaming
	if !e.decode(raw, &rs, "hlsStreamingState") {
		return nil
	}
	state := &domain.HLSStreamingState{Running: boolOf(rs.Running)}
	for _, rawVariant := range rs.Variants {
		var rv struct {
			HLSStreamURL *string         `json:"hlsStreamUrl"`
			MeetingURL   *string         `json:"meetingUrl"`
			Metadata     *string         `json:"metadata"`
			StartedAt    json.RawMessage `json:"startedAt"`
		}
		if !e.decode(rawVariant, &rv, "hlsVariant") {
			continue
		}
		variant := domain.HLSVariant{StartedAt: e.Timestamp(rv.StartedAt)}
		if rv.HLSStreamURL != nil {
			variant.HLSStreamURL = *rv.HLSStreamURL
		}
		if rv.MeetingURL != nil {
			variant.MeetingURL = *rv.MeetingURL
		}
		if rv.Metadata != nil {
			variant.Metadata = *rv.Metadata
		}
		state.Variants = append(state.Variants, variant)
	}
	return state
}
