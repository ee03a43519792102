package cache

import (
	"encoding/json"
	"fmt"

	"roomlink/internal/core/domain"
)

// Lazy read path. A property miss triggers exactly one bridge query
// for that single property; the result (even a nil one) is memoized so
// the next read is served locally. The lock is held across the resolve
// so concurrent readers of the same property cannot race a double
// query.

func (c *Peers) Name(peerID domain.PeerID) (string, error) {
	entry, err := c.property(peerID, domain.PeerPropName, func(p *peerEntry, raw json.RawMessage) {
		if v := stringValue(raw); v != nil {
			p.name = *v
		}
	})
	if err != nil {
		return "", err
	}
	return entry.name, nil
}

func (c *Peers) IsLocal(peerID domain.PeerID) (bool, error) {
	entry, err := c.property(peerID, domain.PeerPropIsLocal, func(p *peerEntry, raw json.RawMessage) {
		if v := boolValue(raw); v != nil {
			p.isLocal = *v
		}
	})
	if err != nil {
		return false, err
	}
	return entry.isLocal, nil
}

func (c *Peers) CustomerUserID(peerID domain.PeerID) (string, error) {
	entry, err := c.property(peerID, domain.PeerPropCustomerUserID, func(p *peerEntry, raw json.RawMessage) {
		if v := stringValue(raw); v != nil {
			p.customerUserID = *v
		}
	})
	if err != nil {
		return "", err
	}
	return entry.customerUserID, nil
}

func (c *Peers) Metadata(peerID domain.PeerID) (string, error) {
	entry, err := c.property(peerID, domain.PeerPropMetadata, func(p *peerEntry, raw json.RawMessage) {
		if v := stringValue(raw); v != nil {
			p.metadata = *v
		}
	})
	if err != nil {
		return "", err
	}
	return entry.metadata, nil
}

func (c *Peers) PeerType(peerID domain.PeerID) (domain.PeerType, error) {
	entry, err := c.property(peerID, domain.PeerPropType, func(p *peerEntry, raw json.RawMessage) {
		if v := stringValue(raw); v != nil {
			p.peerType = domain.PeerType(*v)
		}
	})
	if err != nil {
		return "", err
	}
	return entry.peerType, nil
}

func (c *Peers) IsHandRaised(peerID domain.PeerID) (bool, error) {
	entry, err := c.property(peerID, domain.PeerPropIsHandRaised, func(p *peerEntry, raw json.RawMessage) {
		if v := boolValue(raw); v != nil {
			p.isHandRaised = *v
		}
	})
	if err != nil {
		return false, err
	}
	return entry.isHandRaised, nil
}

func (c *Peers) Role(peerID domain.PeerID) (*domain.Role, error) {
	entry, err := c.property(peerID, domain.PeerPropRole, func(p *peerEntry, raw json.RawMessage) {
		p.role = c.enc.Role(raw)
	})
	if err != nil {
		return nil, err
	}
	return entry.role, nil
}

func (c *Peers) NetworkQuality(peerID domain.PeerID) (*domain.NetworkQuality, error) {
	entry, err := c.property(peerID, domain.PeerPropNetworkQuality, func(p *peerEntry, raw json.RawMessage) {
		p.networkQuality = c.enc.NetworkQuality(raw)
	})
	if err != nil {
		return nil, err
	}
	return entry.networkQuality, nil
}

func (c *Peers) AudioTrack(peerID domain.PeerID) (*domain.Track, error) {
	entry, err := c.property(peerID, domain.PeerPropAudioTrack, func(p *peerEntry, raw json.RawMessage) {
		p.audioTrack = c.enc.Track(raw)
	})
	if err != nil {
		return nil, err
	}
	return entry.audioTrack, nil
}

func (c *Peers) VideoTrack(peerID domain.PeerID) (*domain.Track, error) {
	entry, err := c.property(peerID, domain.PeerPropVideoTrack, func(p *peerEntry, raw json.RawMessage) {
		p.videoTrack = c.enc.Track(raw)
	})
	if err != nil {
		return nil, err
	}
	return entry.videoTrack, nil
}

func (c *Peers) AuxiliaryTracks(peerID domain.PeerID) ([]domain.Track, error) {
	entry, err := c.property(peerID, domain.PeerPropAuxiliaryTracks, func(p *peerEntry, raw json.RawMessage) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return
		}
		for _, item := range items {
			if t := c.enc.Track(item); t != nil {
				p.auxiliaryTracks = append(p.auxiliaryTracks, *t)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return append([]domain.Track(nil), entry.auxiliaryTracks...), nil
}

// property serves the cached field or resolves it once. fill receives
// the property's raw value (already unwrapped from the bridge's
// {property: value} envelope) and is not called for a null value; the
// property is marked known either way.
func (c *Peers) property(peerID domain.PeerID, prop domain.PeerProperty, fill func(*peerEntry, json.RawMessage)) (*peerEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[peerID]
	if exists && entry.has(prop) {
		return entry, nil
	}

	raw, err := c.resolver.PeerProperty(c.sessionID, peerID, prop)
	if err != nil {
		return nil, fmt.Errorf("peer property %q: %w: %w", prop, domain.ErrPropertyUnavailable, err)
	}

	if !exists {
		entry = newPeerEntry()
		c.entries[peerID] = entry
	}
	if value := unwrap(raw, string(prop)); value != nil {
		fill(entry, value)
	}
	entry.mark(prop)
	return entry, nil
}

// unwrap extracts one field from the bridge's {property: value}
// response envelope. A bare value (no envelope) passes through as-is.
func unwrap(raw json.RawMessage, field string) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	if v, ok := m[field]; ok {
		if string(v) == "null" {
			return nil
		}
		return v
	}
	return raw
}

func stringValue(raw json.RawMessage) *string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func boolValue(raw json.RawMessage) *bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	return &b
}
