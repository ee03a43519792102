package encoder

import (
	"encoding/json"

	"roomlink/internal/core/domain"
)

// PeerEvent normalizes an ON_PEER_UPDATE payload. Two wire forms
// exist: {"peer": {...}, "type": "NAME_CHANGED"} and, on one platform,
// the peer object itself carrying the ordinal as a dynamic key whose
// value is the peer id, e.g. {"6": "peer-1", "name": "Alice", ...}.
func (e *Encoder) PeerEvent(payload json.RawMessage) (domain.PeerID, *domain.Peer, domain.UpdateData) {
	var fields map[string]json.RawMessage
	if !e.decode(payload, &fields, "peerUpdate") {
		return "", nil, domain.UpdateData{Kind: domain.UpdateUnknown}
	}

	var peerRaw json.RawMessage
	var kind domain.UpdateKind
	var rawKind string
	found := false

	for _, ordinal := range sortedOrdinals {
		if idRaw, present := fields[ordinal]; present {
			var peerID string
			if err := json.Unmarshal(idRaw, &peerID); err != nil {
				continue
			}
			// The payload itself is the peer object here; stamp the
			// id the dynamic key carried.
			patched := clone(fields)
			delete(patched, ordinal)
			patched["peerID"] = mustMarshalString(peerID)
			peerRaw, _ = json.Marshal(patched)
			kind = domain.PeerUpdateOrdinals[ordinal]
			rawKind = ordinal
			found = true
			break
		}
	}

	if !found {
		peerRaw = fields["peer"]
		kind, rawKind, _ = e.PeerUpdate(fields["type"])
	}

	peer := e.Peer(peerRaw)
	var peerID domain.PeerID
	if peer != nil {
		peerID = peer.PeerID
	}

	data := domain.UpdateData{Kind: kind, RawKind: rawKind, Peer: peer}
	switch kind {
	case domain.RoleChanged:
		data.Role = e.Role(fields["role"])
		if data.Role == nil && peer != nil {
			data.Role = peer.Role
		}
	case domain.NetworkQualityUpdated:
		data.NetworkQuality = e.NetworkQuality(fields["networkQuality"])
		if data.NetworkQuality == nil && peer != nil {
			data.NetworkQuality = peer.NetworkQuality
		}
	case domain.MetadataChanged:
		data.Metadata = e.stringField(fields["metadata"])
		if data.Metadata == nil && peer != nil {
			data.Metadata = &peer.Metadata
		}
	case domain.NameChanged:
		data.Name = e.stringField(fields["name"])
		if data.Name == nil && peer != nil {
			data.Name = &peer.Name
		}
	case domain.HandRaisedChanged:
		data.IsHandRaised = e.boolField(fields["isHandRaised"])
		if data.IsHandRaised == nil && peer != nil {
			data.IsHandRaised = &peer.IsHandRaised
		}
	}
	return peerID, peer, data
}

// TrackEvent normalizes an ON_TRACK_UPDATE payload, which always
// carries the discriminator as a string.
func (e *Encoder) TrackEvent(payload json.RawMessage) (domain.PeerID, *domain.Peer, *domain.Track, domain.UpdateData) {
	var fields struct {
		Peer  json.RawMessage `json:"peer"`
		Track json.RawMessage `json:"track"`
		Type  json.RawMessage `json:"type"`
	}
	if !e.decode(payload, &fields, "trackUpdate") {
		return "", nil, nil, domain.UpdateData{Kind: domain.UpdateUnknown}
	}

	peer := e.Peer(fields.Peer)
	track := e.Track(fields.Track)
	kind, rawKind, _ := e.PeerUpdate(fields.Type)

	var peerID domain.PeerID
	if peer != nil {
		peerID = peer.PeerID
	}
	return peerID, peer, track, domain.UpdateData{Kind: kind, RawKind: rawKind, Track: track}
}

// RoomEvent normalizes an ON_ROOM_UPDATE payload into the room
// snapshot plus the typed substate the update kind carries.
func (e *Encoder) RoomEvent(payload json.RawMessage) (*domain.Room, domain.RoomUpdateData) {
	var fields struct {
		Room json.RawMessage `json:"room"`
		Type json.RawMessage `json:"type"`
	}
	if !e.decode(payload, &fields, "roomUpdate") {
		return nil, domain.RoomUpdateData{Kind: domain.RoomUpdateUnknown}
	}

	room := e.Room(fields.Room)
	kind, rawKind, _ := e.RoomUpdate(fields.Type)
	data := domain.RoomUpdateData{Kind: kind, RawKind: rawKind, Room: room}
	if room == nil {
		return nil, data
	}

	switch kind {
	case domain.RoomPeerCountUpdated:
		data.PeerCount = room.PeerCount
	case domain.BrowserRecordingUpdated:
		data.BrowserRecordingState = &room.BrowserRecordingState
	case domain.ServerRecordingUpdated:
		data.ServerRecordingState = &room.ServerRecordingState
	case domain.HLSRecordingUpdated:
		data.HLSRecordingState = &room.HLSRecordingState
	case domain.RTMPStreamingUpdated:
		data.RTMPStreamingState = &room.RTMPStreamingState
	case domain.HLSStreamingUpdated:
		data.HLSStreamingState = &room.HLSStreamingState
	}
	return room, data
}

func (e *Encoder) stringField(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		e.log.Warnw("expected string field", "raw", string(raw))
		return nil
	}
	return &s
}

func (e *Encoder) boolField(raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		e.log.Warnw("expected bool field", "raw", string(raw))
		return nil
	}
	return &b
}

func clone(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mustMarshalString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
