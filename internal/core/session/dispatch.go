package session

import (
	"encoding/json"

	"roomlink/internal/core/domain"
)

// envelope is the part of every event payload used for routing.
type envelope struct {
	ID string `json:"id"`
}

// dispatch is the single entry point for raw bridge events. Ordering:
// discard on session-id mismatch, encode, update the owning cache,
// then invoke the delegate if one is registered. PEER_LEFT inverts the
// last two steps (deliver-then-evict) so the final callback can still
// read pre-eviction peer data.
func (s *Session) dispatch(event domain.EventType, raw json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.ID != string(s.id) {
		s.metrics.EventDiscarded(event, "session_mismatch")
		return
	}
	s.metrics.EventReceived(event)

	switch event {
	case domain.EventJoin, domain.EventPreview:
		s.onJoinOrPreview(event, raw)
	case domain.EventRoomUpdate:
		s.onRoomUpdate(raw)
	case domain.EventPeerUpdate:
		s.onPeerUpdate(raw)
	case domain.EventTrackUpdate:
		s.onTrackUpdate(raw)
	case domain.EventError:
		s.onError(raw)
	case domain.EventMessage:
		s.onMessage(raw)
	case domain.EventSpeaker:
		s.onSpeaker(raw)
	case domain.EventRoleChangeRequest:
		s.onRoleChangeRequest(raw)
	case domain.EventRemovedFromRoom:
		s.onRemovedFromRoom(raw)
	case domain.EventPIPRoomLeave:
		s.onPIPRoomLeave(raw)
	case domain.EventSessionStoreAvailable:
		s.onSessionStoreAvailable(raw)
	default:
		// Reconnect notifications and anything forward-compatible:
		// pass the raw payload through untouched.
		s.deliver(event, Event{Type: event, Raw: raw, Exception: s.decodeError(raw)})
	}
}

func (s *Session) deliver(event domain.EventType, payload Event) {
	delegate := s.delegateFor(event)
	if delegate == nil {
		// Never queued or buffered for later delivery.
		return
	}
	s.log.Debugw("event delivered", "event", event, "session", s.id)
	delegate(payload)
}

func (s *Session) onJoinOrPreview(event domain.EventType, raw json.RawMessage) {
	var fields struct {
		Room          json.RawMessage   `json:"room"`
		PreviewTracks []json.RawMessage `json:"previewTracks"`
	}
	_ = json.Unmarshal(raw, &fields)

	room := s.enc.Room(fields.Room)
	if c := s.Room(); c != nil && room != nil {
		c.Apply(domain.RoomUpdateData{Kind: domain.RoomUpdateUnknown, Room: room})
	}

	payload := Event{Type: event, Room: room, Raw: raw}
	for _, rawTrack := range fields.PreviewTracks {
		if t := s.enc.Track(rawTrack); t != nil {
			payload.PreviewTracks = append(payload.PreviewTracks, *t)
		}
	}
	s.deliver(event, payload)
}

func (s *Session) onRoomUpdate(raw json.RawMessage) {
	room, data := s.enc.RoomEvent(raw)
	if c := s.Room(); c != nil {
		c.Apply(data)
	}
	s.deliver(domain.EventRoomUpdate, Event{
		Type:       domain.EventRoomUpdate,
		Room:       room,
		RoomUpdate: data.Kind,
		RawUpdate:  data.RawKind,
		Raw:        raw,
	})
}

func (s *Session) onPeerUpdate(raw json.RawMessage) {
	peerID, peer, data := s.enc.PeerEvent(raw)
	payload := Event{
		Type:       domain.EventPeerUpdate,
		Peer:       peer,
		UpdateKind: data.Kind,
		RawUpdate:  data.RawKind,
		Raw:        raw,
	}

	cachePeers := s.Peers()
	if data.Kind == domain.PeerLeft {
		// Deliver first so the delegate can still read the peer's
		// cached state, then evict.
		s.deliver(domain.EventPeerUpdate, payload)
		if cachePeers != nil {
			cachePeers.Apply(peerID, data)
		}
		return
	}

	if cachePeers != nil {
		cachePeers.Apply(peerID, data)
	}
	s.deliver(domain.EventPeerUpdate, payload)
}

func (s *Session) onTrackUpdate(raw json.RawMessage) {
	peerID, peer, track, data := s.enc.TrackEvent(raw)
	if c := s.Peers(); c != nil {
		c.Apply(peerID, data)
	}
	s.deliver(domain.EventTrackUpdate, Event{
		Type:       domain.EventTrackUpdate,
		Peer:       peer,
		Track:      track,
		UpdateKind: data.Kind,
		RawUpdate:  data.RawKind,
		Raw:        raw,
	})
}

func (s *Session) onError(raw json.RawMessage) {
	s.deliver(domain.EventError, Event{
		Type:      domain.EventError,
		Exception: s.decodeError(raw),
		Raw:       raw,
	})
}

func (s *Session) decodeError(raw json.RawMessage) *domain.Exception {
	var fields struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields.Error) == 0 {
		return nil
	}
	return s.enc.Exception(fields.Error)
}

func (s *Session) onMessage(raw json.RawMessage) {
	s.deliver(domain.EventMessage, Event{
		Type:    domain.EventMessage,
		Message: s.enc.Message(raw),
		Raw:     raw,
	})
}

func (s *Session) onSpeaker(raw json.RawMessage) {
	var fields struct {
		Speakers []struct {
			Peer  json.RawMessage `json:"peer"`
			Level int             `json:"level"`
		} `json:"speakers"`
	}
	_ = json.Unmarshal(raw, &fields)

	payload := Event{Type: domain.EventSpeaker, Raw: raw}
	for _, sp := range fields.Speakers {
		payload.Speakers = append(payload.Speakers, Speaker{Peer: s.enc.Peer(sp.Peer), Level: sp.Level})
	}
	s.deliver(domain.EventSpeaker, payload)
}

func (s *Session) onRoleChangeRequest(raw json.RawMessage) {
	var fields struct {
		RequestedBy   json.RawMessage `json:"requestedBy"`
		SuggestedRole json.RawMessage `json:"suggestedRole"`
	}
	_ = json.Unmarshal(raw, &fields)

	s.deliver(domain.EventRoleChangeRequest, Event{
		Type:          domain.EventRoleChangeRequest,
		RequestedBy:   s.enc.Peer(fields.RequestedBy),
		SuggestedRole: s.enc.Role(fields.SuggestedRole),
		Raw:           raw,
	})
}

// onRemovedFromRoom runs the full session cleanup before invoking the
// delegate; by the time the application observes the removal, the
// caches and session-store channel are already gone.
func (s *Session) onRemovedFromRoom(raw json.RawMessage) {
	s.roomLeaveCleanup()

	var fields struct {
		RequestedBy json.RawMessage `json:"requestedBy"`
		Reason      string          `json:"reason"`
		RoomEnded   bool            `json:"roomEnded"`
	}
	_ = json.Unmarshal(raw, &fields)

	s.deliver(domain.EventRemovedFromRoom, Event{
		Type:        domain.EventRemovedFromRoom,
		RequestedBy: s.enc.Peer(fields.RequestedBy),
		Reason:      fields.Reason,
		RoomEnded:   fields.RoomEnded,
		Raw:         raw,
	})
}

func (s *Session) onPIPRoomLeave(raw json.RawMessage) {
	s.roomLeaveCleanup()
	s.deliver(domain.EventPIPRoomLeave, Event{Type: domain.EventPIPRoomLeave, Raw: raw})
}

func (s *Session) onSessionStoreAvailable(raw json.RawMessage) {
	s.deliver(domain.EventSessionStoreAvailable, Event{
		Type:         domain.EventSessionStoreAvailable,
		SessionStore: s.SessionStore(),
		Raw:          raw,
	})
}
