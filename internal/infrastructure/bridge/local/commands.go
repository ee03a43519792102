package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/pkg/validation"
)

func (b *Bridge) handle(ctx context.Context, sessionID domain.SessionID, command string, payload json.RawMessage) (json.RawMessage, error) {
	switch command {
	case ports.CmdJoin:
		return b.join(ctx, sessionID, payload, false)
	case ports.CmdPreview:
		return b.join(ctx, sessionID, payload, true)
	case ports.CmdLeave, ports.CmdDestroy:
		return b.leave(sessionID)
	case ports.CmdSetLocalMute:
		return b.setLocalMute(sessionID, payload)
	case ports.CmdChangeRole:
		return b.changeRole(sessionID, payload)
	case ports.CmdChangeName:
		return b.changePeerField(sessionID, payload, domain.NameChanged)
	case ports.CmdChangeMetadata:
		return b.changePeerField(sessionID, payload, domain.MetadataChanged)
	case ports.CmdRaiseHand:
		return b.setHandRaised(sessionID, true)
	case ports.CmdLowerHand:
		return b.setHandRaised(sessionID, false)
	case ports.CmdSendMessage:
		return b.sendMessage(sessionID, payload)
	case ports.CmdStartRTMPOrRecording:
		return b.startRecording(sessionID, payload)
	case ports.CmdStopRTMPAndRecording:
		return b.stopRecording(sessionID)
	case ports.CmdStartHLSStreaming:
		return b.setHLS(sessionID, true)
	case ports.CmdStopHLSStreaming:
		return b.setHLS(sessionID, false)
	case ports.CmdGetAuthTokenByRoomCode:
		return b.authToken(payload)
	case ports.CmdGetPeerProperty:
		return b.peerProperty(sessionID, payload)
	case ports.CmdGetRoomProperty:
		return b.roomProperty(sessionID, payload)
	case ports.CmdSetSessionValue:
		return b.setSessionValue(ctx, sessionID, payload)
	case ports.CmdGetSessionValue:
		return b.getSessionValue(ctx, sessionID, payload)
	case ports.CmdAddKeyChangeListener:
		return b.addKeyChangeListener(ctx, sessionID, payload)
	case ports.CmdRemoveKeyChangeListener:
		return b.removeKeyChangeListener(sessionID, payload)
	case ports.CmdEnableEvent, ports.CmdDisableEvent:
		// Subscriptions are in-process here; nothing to toggle.
		return json.RawMessage(`{}`), nil
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func (b *Bridge) session(sessionID domain.SessionID) (*sessionState, error) {
	ss, ok := b.sessions[sessionID]
	if !ok || ss.room == nil {
		return nil, domain.ErrNoActiveRoom
	}
	return ss, nil
}

func (b *Bridge) join(_ context.Context, sessionID domain.SessionID, payload json.RawMessage, preview bool) (json.RawMessage, error) {
	var cfg struct {
		Username  string `json:"username"`
		AuthToken string `json:"authToken"`
		Metadata  string `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("join payload: %w", err)
	}

	roomID := domain.RoomID("lobby")
	userID := cfg.Username
	if cfg.AuthToken != "" {
		if claims, err := decodeTokenClaims(cfg.AuthToken); err == nil {
			if v, ok := claims["room"].(string); ok && v != "" {
				roomID = domain.RoomID(v)
			}
			if v, ok := claims["sub"].(string); ok && v != "" {
				userID = v
			}
		}
	}

	b.mu.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		room = &roomState{
			id:              roomID,
			name:            string(roomID),
			serverSessionID: uuid.NewString(),
			peers:           make(map[domain.PeerID]*peerModel),
		}
		b.rooms[roomID] = room
	}

	peer := &peerModel{
		id:             domain.PeerID(uuid.NewString()),
		name:           cfg.Username,
		customerUserID: userID,
		metadata:       cfg.Metadata,
		role:           "guest",
		peerType:       domain.PeerTypeRegular,
		quality:        5,
		audio: &trackModel{
			id: uuid.NewString(), source: domain.TrackSourceRegular,
			typ: domain.TrackTypeAudio, desc: "mic", mute: true,
		},
		video: &trackModel{
			id: uuid.NewString(), source: domain.TrackSourceRegular,
			typ: domain.TrackTypeVideo, desc: "camera", mute: true,
		},
	}

	if preview {
		b.mu.Unlock()
		b.emit(sessionID, domain.EventPreview, map[string]any{
			"room":          room.roomJSON(""),
			"previewTracks": []map[string]any{trackJSON(peer.audio), trackJSON(peer.video)},
		})
		return json.RawMessage(`{}`), nil
	}

	room.addPeer(peer)
	b.sessions[sessionID] = &sessionState{
		id:      sessionID,
		room:    room,
		peerID:  peer.id,
		watches: make(map[string][]string),
	}
	others := b.roomSessionsLocked(room, sessionID)
	b.mu.Unlock()

	b.emit(sessionID, domain.EventJoin, map[string]any{"room": room.roomJSON(peer.id)})
	b.emit(sessionID, domain.EventSessionStoreAvailable, map[string]any{})
	for _, other := range others {
		b.emit(other.id, domain.EventPeerUpdate, map[string]any{
			"peer": peerJSON(peer, false),
			"type": string(domain.PeerJoined),
		})
		b.emit(other.id, domain.EventRoomUpdate, map[string]any{
			"room": room.roomJSON(other.peerID),
			"type": string(domain.RoomPeerCountUpdated),
		})
	}
	return json.RawMessage(`{}`), nil
}

// roomSessionsLocked lists every session in the room other than the
// excluded one. Callers hold b.mu.
func (b *Bridge) roomSessionsLocked(room *roomState, exclude domain.SessionID) []*sessionState {
	var out []*sessionState
	for id, ss := range b.sessions {
		if id != exclude && ss.room == room {
			out = append(out, ss)
		}
	}
	return out
}

func (b *Bridge) leave(sessionID domain.SessionID) (json.RawMessage, error) {
	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return json.RawMessage(`{}`), nil
	}
	delete(b.sessions, sessionID)
	room := ss.room
	peer := room.peers[ss.peerID]
	room.removePeer(ss.peerID)
	if len(room.peers) == 0 {
		delete(b.rooms, room.id)
	}
	cancel := ss.cancelWatch
	ss.cancelWatch = nil
	others := b.roomSessionsLocked(room, sessionID)
	b.mu.Unlock()

	if cancel != nil {
		if err := cancel(); err != nil {
			b.log.Debugw("store watch cancel failed", "session", sessionID, "error", err)
		}
	}
	if peer != nil {
		for _, other := range others {
			b.emit(other.id, domain.EventPeerUpdate, map[string]any{
				"peer": peerJSON(peer, false),
				"type": string(domain.PeerLeft),
			})
		}
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) setLocalMute(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Type domain.TrackType `json:"type"`
		Mute bool             `json:"mute"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("setLocalMute payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	peer := ss.room.peers[ss.peerID]
	track := peer.audio
	if req.Type == domain.TrackTypeVideo {
		track = peer.video
	}
	if track == nil {
		b.mu.Unlock()
		return nil, domain.ErrTrackNotFound
	}
	track.mute = req.Mute
	sessions := append(b.roomSessionsLocked(ss.room, sessionID), ss)
	b.mu.Unlock()

	kind := domain.TrackUnmuted
	if req.Mute {
		kind = domain.TrackMuted
	}
	for _, target := range sessions {
		b.emit(target.id, domain.EventTrackUpdate, map[string]any{
			"peer":  peerJSON(peer, target.id == sessionID),
			"track": trackJSON(track),
			"type":  string(kind),
		})
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) changeRole(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		PeerID domain.PeerID `json:"peerId"`
		Role   string        `json:"role"`
		Force  bool          `json:"force"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("changeRoleOfPeer payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	target, ok := ss.room.peers[req.PeerID]
	if !ok {
		b.mu.Unlock()
		return nil, domain.ErrPeerNotFound
	}
	requester := ss.room.peers[ss.peerID]

	if !req.Force {
		// Prompt the target peer instead of switching immediately.
		var targetSession *sessionState
		for _, other := range b.roomSessionsLocked(ss.room, "") {
			if other.peerID == req.PeerID {
				targetSession = other
				break
			}
		}
		b.mu.Unlock()
		if targetSession != nil {
			b.emit(targetSession.id, domain.EventRoleChangeRequest, map[string]any{
				"requestedBy":   peerJSON(requester, false),
				"suggestedRole": roleJSON(req.Role),
			})
		}
		return json.RawMessage(`{}`), nil
	}

	target.role = req.Role
	sessions := append(b.roomSessionsLocked(ss.room, sessionID), ss)
	b.mu.Unlock()

	for _, t := range sessions {
		b.emit(t.id, domain.EventPeerUpdate, map[string]any{
			"peer": peerJSON(target, t.peerID == target.id),
			"type": string(domain.RoleChanged),
			"role": roleJSON(req.Role),
		})
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) changePeerField(sessionID domain.SessionID, payload json.RawMessage, kind domain.UpdateKind) (json.RawMessage, error) {
	var req struct {
		Name     string `json:"name"`
		Metadata string `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	peer := ss.room.peers[ss.peerID]
	extra := map[string]any{}
	switch kind {
	case domain.NameChanged:
		peer.name = req.Name
		extra["name"] = req.Name
	case domain.MetadataChanged:
		peer.metadata = req.Metadata
		extra["metadata"] = req.Metadata
	}
	sessions := append(b.roomSessionsLocked(ss.room, sessionID), ss)
	b.mu.Unlock()

	for _, t := range sessions {
		payload := map[string]any{
			"peer": peerJSON(peer, t.id == sessionID),
			"type": string(kind),
		}
		for k, v := range extra {
			payload[k] = v
		}
		b.emit(t.id, domain.EventPeerUpdate, payload)
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) setHandRaised(sessionID domain.SessionID, raised bool) (json.RawMessage, error) {
	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	peer := ss.room.peers[ss.peerID]
	peer.handRaised = raised
	sessions := append(b.roomSessionsLocked(ss.room, sessionID), ss)
	b.mu.Unlock()

	for _, t := range sessions {
		b.emit(t.id, domain.EventPeerUpdate, map[string]any{
			"peer":         peerJSON(peer, t.id == sessionID),
			"type":         string(domain.HandRaisedChanged),
			"isHandRaised": raised,
		})
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) sendMessage(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Message string        `json:"message"`
		Type    string        `json:"type"`
		Roles   []string      `json:"roles"`
		PeerID  domain.PeerID `json:"peerId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("sendMessage payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	sender := ss.room.peers[ss.peerID]

	recipientType := string(domain.RecipientBroadcast)
	recipient := map[string]any{}
	var targets []*sessionState
	switch {
	case req.PeerID != "":
		recipientType = string(domain.RecipientPeer)
		target, ok := ss.room.peers[req.PeerID]
		if !ok {
			b.mu.Unlock()
			return nil, domain.ErrPeerNotFound
		}
		recipient["recipientPeer"] = peerJSON(target, false)
		for _, other := range b.roomSessionsLocked(ss.room, sessionID) {
			if other.peerID == req.PeerID {
				targets = append(targets, other)
			}
		}
	case len(req.Roles) > 0:
		recipientType = string(domain.RecipientRoles)
		roles := make([]map[string]any, 0, len(req.Roles))
		for _, r := range req.Roles {
			roles = append(roles, roleJSON(r))
		}
		recipient["recipientRoles"] = roles
		for _, other := range b.roomSessionsLocked(ss.room, sessionID) {
			peer := ss.room.peers[other.peerID]
			for _, r := range req.Roles {
				if peer != nil && peer.role == r {
					targets = append(targets, other)
					break
				}
			}
		}
	default:
		targets = b.roomSessionsLocked(ss.room, sessionID)
	}
	recipient["recipientType"] = recipientType
	b.mu.Unlock()

	msg := map[string]any{
		"sender":    peerJSON(sender, false),
		"recipient": recipient,
		"message":   req.Message,
		"type":      req.Type,
		"time":      b.now().UnixMilli(),
	}
	for _, t := range targets {
		b.emit(t.id, domain.EventMessage, msg)
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) startRecording(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		RTMPURLs []string `json:"rtmpURLs"`
		Record   bool     `json:"record"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("startRTMPOrRecording payload: %w", err)
	}
	for _, u := range req.RTMPURLs {
		if err := validation.ValidateIngestURL(u); err != nil {
			return nil, fmt.Errorf("rtmp url %q: %w", u, err)
		}
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	room := ss.room
	var kinds []domain.RoomUpdateKind
	if req.Record {
		room.browserRecording = recordingModel{running: true, startedAt: b.now()}
		kinds = append(kinds, domain.BrowserRecordingUpdated)
	}
	if len(req.RTMPURLs) > 0 {
		room.rtmpStreaming = recordingModel{running: true, startedAt: b.now()}
		kinds = append(kinds, domain.RTMPStreamingUpdated)
	}
	sessions := append(b.roomSessionsLocked(room, sessionID), ss)
	b.mu.Unlock()

	b.emitRoomUpdate(room, sessions, kinds)
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) stopRecording(sessionID domain.SessionID) (json.RawMessage, error) {
	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	room := ss.room
	var kinds []domain.RoomUpdateKind
	if room.browserRecording.running {
		room.browserRecording = recordingModel{}
		kinds = append(kinds, domain.BrowserRecordingUpdated)
	}
	if room.rtmpStreaming.running {
		room.rtmpStreaming = recordingModel{}
		kinds = append(kinds, domain.RTMPStreamingUpdated)
	}
	sessions := append(b.roomSessionsLocked(room, sessionID), ss)
	b.mu.Unlock()

	b.emitRoomUpdate(room, sessions, kinds)
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) setHLS(sessionID domain.SessionID, running bool) (json.RawMessage, error) {
	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	room := ss.room
	if running {
		room.hlsStreaming = recordingModel{running: true, startedAt: b.now()}
	} else {
		room.hlsStreaming = recordingModel{}
		room.hlsVariants = nil
	}
	sessions := append(b.roomSessionsLocked(room, sessionID), ss)
	b.mu.Unlock()

	b.emitRoomUpdate(room, sessions, []domain.RoomUpdateKind{domain.HLSStreamingUpdated})
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) emitRoomUpdate(room *roomState, sessions []*sessionState, kinds []domain.RoomUpdateKind) {
	for _, kind := range kinds {
		for _, t := range sessions {
			b.emit(t.id, domain.EventRoomUpdate, map[string]any{
				"room": room.roomJSON(t.peerID),
				"type": string(kind),
			})
		}
	}
}

func (b *Bridge) authToken(payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		RoomCode string `json:"roomCode"`
		UserID   string `json:"userId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("getAuthTokenByRoomCode payload: %w", err)
	}
	if req.RoomCode == "" {
		return nil, fmt.Errorf("empty room code")
	}

	now := b.now()
	claims := jwt.MapClaims{
		"room": req.RoomCode,
		"iat":  now.Unix(),
		"exp":  now.Add(24 * time.Hour).Unix(),
	}
	if req.UserID != "" {
		claims["sub"] = req.UserID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return json.Marshal(map[string]any{"token": token})
}

func (b *Bridge) peerProperty(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		PeerID   domain.PeerID `json:"peerId"`
		Property string        `json:"property"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("getPeerProperty payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	ss, err := b.session(sessionID)
	if err != nil {
		return nil, err
	}
	peer, ok := ss.room.peers[req.PeerID]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	full := peerJSON(peer, req.PeerID == ss.peerID)
	value, ok := full[req.Property]
	if !ok {
		return nil, fmt.Errorf("unknown peer property %q", req.Property)
	}
	return json.Marshal(map[string]any{req.Property: value})
}

func (b *Bridge) roomProperty(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Property string `json:"property"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("getRoomProperty payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	ss, err := b.session(sessionID)
	if err != nil {
		return nil, err
	}
	full := ss.room.roomJSON(ss.peerID)
	value, ok := full[req.Property]
	if !ok {
		return nil, fmt.Errorf("unknown room property %q", req.Property)
	}
	return json.Marshal(map[string]any{req.Property: value})
}

func decodeTokenClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
