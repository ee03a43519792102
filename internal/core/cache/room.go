package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/encoder"
	"roomlink/internal/core/ports"
)

// Room caches the single room object with the same lazy-read /
// eager-write pattern as Peers. There is exactly one instance per
// session, so dispatch reduces to "replace the relevant substate by
// update type".
type Room struct {
	sessionID domain.SessionID
	resolver  ports.PropertyResolver
	enc       *encoder.Encoder
	log       *zap.SugaredLogger

	mu    sync.RWMutex
	props map[domain.RoomProperty]any
}

func NewRoom(sessionID domain.SessionID, resolver ports.PropertyResolver, enc *encoder.Encoder, log *zap.SugaredLogger) *Room {
	return &Room{
		sessionID: sessionID,
		resolver:  resolver,
		enc:       enc,
		log:       log,
		props:     make(map[domain.RoomProperty]any),
	}
}

// Apply routes one decoded room update into the cache.
func (c *Room) Apply(data domain.RoomUpdateData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch data.Kind {
	case domain.RoomMuted, domain.RoomUnmuted:
		// Mute state is per-device playback, not room state.
	case domain.RoomPeerCountUpdated:
		c.props[domain.RoomPropPeerCount] = data.PeerCount
	case domain.BrowserRecordingUpdated:
		c.props[domain.RoomPropBrowserRecordingState] = data.BrowserRecordingState
	case domain.ServerRecordingUpdated:
		c.props[domain.RoomPropServerRecordingState] = data.ServerRecordingState
	case domain.HLSRecordingUpdated:
		c.props[domain.RoomPropHLSRecordingState] = data.HLSRecordingState
	case domain.RTMPStreamingUpdated:
		c.props[domain.RoomPropRTMPStreamingState] = data.RTMPStreamingState
	case domain.HLSStreamingUpdated:
		c.props[domain.RoomPropHLSStreamingState] = data.HLSStreamingState
	default:
		// Untagged refresh (initial join, ON_ROOM_UPDATE without a
		// recognized type): replace everything the snapshot carries.
		c.mergeRoom(data.Room)
	}
}

func (c *Room) mergeRoom(room *domain.Room) {
	if room == nil {
		return
	}
	if room.Name != "" {
		c.props[domain.RoomPropName] = room.Name
	}
	if room.SessionID != "" {
		c.props[domain.RoomPropSessionID] = room.SessionID
	}
	if room.PeerCount != nil {
		c.props[domain.RoomPropPeerCount] = room.PeerCount
	}
	if room.LocalPeer != nil {
		c.props[domain.RoomPropLocalPeer] = room.LocalPeer
	}
	c.props[domain.RoomPropBrowserRecordingState] = &room.BrowserRecordingState
	c.props[domain.RoomPropServerRecordingState] = &room.ServerRecordingState
	c.props[domain.RoomPropHLSRecordingState] = &room.HLSRecordingState
	c.props[domain.RoomPropRTMPStreamingState] = &room.RTMPStreamingState
	c.props[domain.RoomPropHLSStreamingState] = &room.HLSStreamingState
}

// Cleanup drops all cached room state.
func (c *Room) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props = make(map[domain.RoomProperty]any)
}

func (c *Room) Name() (string, error) {
	v, err := c.property(domain.RoomPropName, func(raw json.RawMessage) any {
		if s := stringValue(raw); s != nil {
			return *s
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (c *Room) ServerSessionID() (string, error) {
	v, err := c.property(domain.RoomPropSessionID, func(raw json.RawMessage) any {
		if s := stringValue(raw); s != nil {
			return *s
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

func (c *Room) PeerCount() (*int, error) {
	v, err := c.property(domain.RoomPropPeerCount, func(raw json.RawMessage) any {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		return &n
	})
	if err != nil {
		return nil, err
	}
	n, _ := v.(*int)
	return n, nil
}

func (c *Room) LocalPeer() (*domain.Peer, error) {
	v, err := c.property(domain.RoomPropLocalPeer, func(raw json.RawMessage) any {
		if p := c.enc.Peer(raw); p != nil {
			return p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*domain.Peer)
	return p, nil
}

func (c *Room) BrowserRecordingState() (*domain.BrowserRecordingState, error) {
	v, err := c.property(domain.RoomPropBrowserRecordingState, func(raw json.RawMessage) any {
		if s := c.enc.BrowserRecordingState(raw); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.BrowserRecordingState)
	return s, nil
}

func (c *Room) ServerRecordingState() (*domain.ServerRecordingState, error) {
	v, err := c.property(domain.RoomPropServerRecordingState, func(raw json.RawMessage) any {
		if s := c.enc.ServerRecordingState(raw); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.ServerRecordingState)
	return s, nil
}

func (c *Room) HLSRecordingState() (*domain.HLSRecordingState, error) {
	v, err := c.property(domain.RoomPropHLSRecordingState, func(raw json.RawMessage) any {
		if s := c.enc.HLSRecordingState(raw); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.HLSRecordingState)
	return s, nil
}

func (c *Room) RTMPStreamingState() (*domain.RTMPStreamingState, error) {
	v, err := c.property(domain.RoomPropRTMPStreamingState, func(raw json.RawMessage) any {
		if s := c.enc.RTMPStreamingState(raw); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.RTMPStreamingState)
	return s, nil
}

func (c *Room) HLSStreamingState() (*domain.HLSStreamingState, error) {
	v, err := c.property(domain.RoomPropHLSStreamingState, func(raw json.RawMessage) any {
		if s := c.enc.HLSStreamingState(raw); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*domain.HLSStreamingState)
	return s, nil
}

// property serves the cached value or resolves it once from the
// bridge, memoizing even an absent result.
func (c *Room) property(prop domain.RoomProperty, decode func(json.RawMessage) any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.props[prop]; ok {
		return v, nil
	}

	raw, err := c.resolver.RoomProperty(c.sessionID, prop)
	if err != nil {
		return nil, fmt.Errorf("room property %q: %w: %w", prop, domain.ErrPropertyUnavailable, err)
	}

	var value any
	if unwrapped := unwrap(raw, string(prop)); unwrapped != nil {
		value = decode(unwrapped)
	}
	c.props[prop] = value
	return value, nil
}
