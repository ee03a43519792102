package session

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

// bridgeResolver answers cache property misses by asking the bridge.
// Each call is a single synchronous round trip; the caches memoize the
// answer so a property is queried at most once per peer.
type bridgeResolver struct {
	bridge ports.Bridge
}

func (r *bridgeResolver) PeerProperty(sessionID domain.SessionID, peerID domain.PeerID, property domain.PeerProperty) (json.RawMessage, error) {
	payload := map[string]any{"peerId": peerID, "property": property}
	return r.bridge.Invoke(context.Background(), sessionID, ports.CmdGetPeerProperty, payload)
}

func (r *bridgeResolver) RoomProperty(sessionID domain.SessionID, property domain.RoomProperty) (json.RawMessage, error) {
	payload := map[string]any{"property": property}
	return r.bridge.Invoke(context.Background(), sessionID, ports.CmdGetRoomProperty, payload)
}
