package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roomlink/internal/core/cache"
	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

// JoinConfig carries everything the bridge needs to enter a room. The
// auth token is opaque here; see the auth package for expiry checks.
type JoinConfig struct {
	Username                       string `json:"username"`
	AuthToken                      string `json:"authToken"`
	Metadata                       string `json:"metadata,omitempty"`
	Endpoint                       string `json:"endpoint,omitempty"`
	CaptureNetworkQualityInPreview bool   `json:"captureNetworkQualityInPreview,omitempty"`
}

// RecordingConfig starts browser recording and, when RTMPURLs are
// given, RTMP streaming of the room composite.
type RecordingConfig struct {
	MeetingURL string   `json:"meetingURL,omitempty"`
	RTMPURLs   []string `json:"rtmpURLs,omitempty"`
	Record     bool     `json:"record"`
	Resolution *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"resolution,omitempty"`
}

// HLSConfig starts HLS streaming of the room.
type HLSConfig struct {
	MeetingURLVariants []struct {
		MeetingURL string `json:"meetingUrl"`
		Metadata   string `json:"metadata,omitempty"`
	} `json:"meetingURLVariants,omitempty"`
	SingleFilePerLayer bool `json:"singleFilePerLayer,omitempty"`
	VideoOnDemand      bool `json:"videoOnDemand,omitempty"`
}

// Join enters the room. The caches are constructed here, fresh per
// session, and live until Leave, Destroy or removal. A destroyed
// facade cannot be rejoined: a join landing after Destroy would write
// into caches nothing will ever clear again.
func (s *Session) Join(ctx context.Context, cfg JoinConfig) error {
	if err := s.initCaches(); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if _, err := s.invoke(ctx, ports.CmdJoin, cfg); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	return nil
}

// Preview starts a local preview without joining. Sets up the same
// per-session caches as Join, under the same closed guard.
func (s *Session) Preview(ctx context.Context, cfg JoinConfig) error {
	if err := s.initCaches(); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if _, err := s.invoke(ctx, ports.CmdPreview, cfg); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	return nil
}

func (s *Session) initCaches() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	resolver := &bridgeResolver{bridge: s.bridge}
	s.peers = cache.NewPeers(s.id, resolver, s.enc, s.metrics, s.log)
	s.room = cache.NewRoom(s.id, resolver, s.enc, s.log)
	return nil
}

// invoke runs one bridge command and reports its latency and outcome.
func (s *Session) invoke(ctx context.Context, command string, payload any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := s.bridge.Invoke(ctx, s.id, command, payload)
	s.metrics.CommandObserved(command, time.Since(start), err)
	return raw, err
}

// Leave exits the room and clears all per-session state. The bridge
// error, if any, comes back unchanged; no retry happens here.
func (s *Session) Leave(ctx context.Context) error {
	_, err := s.invoke(ctx, ports.CmdLeave, nil)
	s.roomLeaveCleanup()
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	return nil
}

// Destroy releases the facade entirely: caches, session store and
// every event subscription. The session is closed for good; Join and
// Preview on a destroyed session fail with ErrSessionClosed.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.roomLeaveCleanup()
	s.RemoveAllListeners()
	if _, err := s.invoke(ctx, ports.CmdDestroy, nil); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}

// SetLocalMute mutes or unmutes the local peer's regular track of the
// given type.
func (s *Session) SetLocalMute(ctx context.Context, trackType domain.TrackType, mute bool) error {
	payload := map[string]any{"type": trackType, "mute": mute}
	if _, err := s.invoke(ctx, ports.CmdSetLocalMute, payload); err != nil {
		return fmt.Errorf("set local mute: %w", err)
	}
	return nil
}

// ChangeRole asks the bridge to move a peer to another role. With
// force the target peer is not prompted.
func (s *Session) ChangeRole(ctx context.Context, peerID domain.PeerID, role string, force bool) error {
	payload := map[string]any{"peerId": peerID, "role": role, "force": force}
	if _, err := s.invoke(ctx, ports.CmdChangeRole, payload); err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	return nil
}

// ChangeName renames the local peer.
func (s *Session) ChangeName(ctx context.Context, name string) error {
	if _, err := s.invoke(ctx, ports.CmdChangeName, map[string]any{"name": name}); err != nil {
		return fmt.Errorf("change name: %w", err)
	}
	return nil
}

// ChangeMetadata replaces the local peer's metadata string.
func (s *Session) ChangeMetadata(ctx context.Context, metadata string) error {
	if _, err := s.invoke(ctx, ports.CmdChangeMetadata, map[string]any{"metadata": metadata}); err != nil {
		return fmt.Errorf("change metadata: %w", err)
	}
	return nil
}

// RaiseHand raises the local peer's hand.
func (s *Session) RaiseHand(ctx context.Context) error {
	if _, err := s.invoke(ctx, ports.CmdRaiseHand, nil); err != nil {
		return fmt.Errorf("raise hand: %w", err)
	}
	return nil
}

// LowerHand lowers the local peer's hand.
func (s *Session) LowerHand(ctx context.Context) error {
	if _, err := s.invoke(ctx, ports.CmdLowerHand, nil); err != nil {
		return fmt.Errorf("lower hand: %w", err)
	}
	return nil
}

// SendBroadcastMessage sends a message to everyone in the room.
func (s *Session) SendBroadcastMessage(ctx context.Context, message, messageType string) error {
	return s.sendMessage(ctx, map[string]any{"message": message, "type": messageType})
}

// SendGroupMessage sends a message to every peer holding one of the
// given roles.
func (s *Session) SendGroupMessage(ctx context.Context, message, messageType string, roles []string) error {
	return s.sendMessage(ctx, map[string]any{"message": message, "type": messageType, "roles": roles})
}

// SendDirectMessage sends a message to a single peer.
func (s *Session) SendDirectMessage(ctx context.Context, message, messageType string, peerID domain.PeerID) error {
	return s.sendMessage(ctx, map[string]any{"message": message, "type": messageType, "peerId": peerID})
}

func (s *Session) sendMessage(ctx context.Context, payload map[string]any) error {
	if _, err := s.invoke(ctx, ports.CmdSendMessage, payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// StartRTMPOrRecording starts browser recording and/or RTMP streaming.
func (s *Session) StartRTMPOrRecording(ctx context.Context, cfg RecordingConfig) error {
	if _, err := s.invoke(ctx, ports.CmdStartRTMPOrRecording, cfg); err != nil {
		return fmt.Errorf("start rtmp or recording: %w", err)
	}
	return nil
}

// StopRTMPAndRecording stops both browser recording and RTMP.
func (s *Session) StopRTMPAndRecording(ctx context.Context) error {
	if _, err := s.invoke(ctx, ports.CmdStopRTMPAndRecording, nil); err != nil {
		return fmt.Errorf("stop rtmp and recording: %w", err)
	}
	return nil
}

// StartHLSStreaming starts HLS streaming of the room.
func (s *Session) StartHLSStreaming(ctx context.Context, cfg HLSConfig) error {
	if _, err := s.invoke(ctx, ports.CmdStartHLSStreaming, cfg); err != nil {
		return fmt.Errorf("start hls streaming: %w", err)
	}
	return nil
}

// StopHLSStreaming stops HLS streaming.
func (s *Session) StopHLSStreaming(ctx context.Context) error {
	if _, err := s.invoke(ctx, ports.CmdStopHLSStreaming, nil); err != nil {
		return fmt.Errorf("stop hls streaming: %w", err)
	}
	return nil
}

// AuthTokenByRoomCode exchanges a room code for a join token.
func (s *Session) AuthTokenByRoomCode(ctx context.Context, roomCode, userID, endpoint string) (string, error) {
	payload := map[string]any{"roomCode": roomCode}
	if userID != "" {
		payload["userId"] = userID
	}
	if endpoint != "" {
		payload["endpoint"] = endpoint
	}
	raw, err := s.invoke(ctx, ports.CmdGetAuthTokenByRoomCode, payload)
	if err != nil {
		return "", fmt.Errorf("get auth token: %w", err)
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("get auth token: undecodable response")
		}
		token = resp.Token
	}
	return token, nil
}
