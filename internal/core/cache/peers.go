// Package cache holds the locally mirrored view of room and peer state.
//
// Both caches follow the same pattern: writes are pushed eagerly by the
// event dispatcher, reads are served locally, and a miss on a single
// property falls back to one bridge query whose result is memoized.
// The caches are owned by one session and cleared explicitly on leave,
// removal or destroy; nothing survives across sessions.
package cache

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/encoder"
	"roomlink/internal/core/ports"
)

// Peers maps peer id to a typed attribute entry. Each attribute is
// independently resolvable, so the cache never needs a full peer
// object to be known in advance.
type Peers struct {
	sessionID domain.SessionID
	resolver  ports.PropertyResolver
	enc       *encoder.Encoder
	log       *zap.SugaredLogger
	metrics   ports.Metrics

	mu       sync.RWMutex
	entries  map[domain.PeerID]*peerEntry
	departed map[domain.PeerID]struct{}
}

// peerEntry is one peer's attribute bag. known tracks which fields
// hold a meaningful value; a field can be known and still nil (the
// bridge said "no role assigned"), which must not trigger a re-query.
type peerEntry struct {
	name            string
	isLocal         bool
	customerUserID  string
	metadata        string
	peerType        domain.PeerType
	isHandRaised    bool
	role            *domain.Role
	networkQuality  *domain.NetworkQuality
	audioTrack      *domain.Track
	videoTrack      *domain.Track
	auxiliaryTracks []domain.Track

	known map[domain.PeerProperty]struct{}
}

func newPeerEntry() *peerEntry {
	return &peerEntry{known: make(map[domain.PeerProperty]struct{})}
}

func (p *peerEntry) mark(prop domain.PeerProperty) {
	p.known[prop] = struct{}{}
}

func (p *peerEntry) has(prop domain.PeerProperty) bool {
	_, ok := p.known[prop]
	return ok
}

func (p *peerEntry) empty() bool {
	return len(p.known) == 0
}

func NewPeers(sessionID domain.SessionID, resolver ports.PropertyResolver, enc *encoder.Encoder, metrics ports.Metrics, log *zap.SugaredLogger) *Peers {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Peers{
		sessionID: sessionID,
		resolver:  resolver,
		enc:       enc,
		log:       log,
		metrics:   metrics,
		entries:   make(map[domain.PeerID]*peerEntry),
		departed:  make(map[domain.PeerID]struct{}),
	}
}

// Apply merges one decoded update into the cache. Dispatch is by the
// update kind; unrecognized kinds fall back to a generic merge of the
// peer snapshot so forward-incompatible events still land somewhere.
func (c *Peers) Apply(peerID domain.PeerID, data domain.UpdateData) {
	if peerID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch data.Kind {
	case domain.PeerJoined:
		delete(c.departed, peerID)
		// Idempotent against duplicate join notifications.
		if _, exists := c.entries[peerID]; !exists {
			entry := newPeerEntry()
			entry.mergePeer(data.Peer)
			if !entry.empty() {
				c.entries[peerID] = entry
			}
		}
		c.metrics.CachedPeers(len(c.entries))
		return

	case domain.PeerLeft:
		delete(c.entries, peerID)
		c.departed[peerID] = struct{}{}
		c.metrics.CachedPeers(len(c.entries))
		return
	}

	// A departed peer stays gone until an explicit join; a straggler
	// update arriving after PEER_LEFT must not resurrect the entry.
	if _, gone := c.departed[peerID]; gone {
		c.log.Debugw("update for departed peer dropped", "peer_id", peerID, "kind", data.Kind)
		return
	}

	entry, exists := c.entries[peerID]
	if !exists {
		entry = newPeerEntry()
	}

	switch data.Kind {
	case domain.TrackAdded:
		entry.trackAdded(data.Track)
	case domain.TrackRemoved:
		entry.trackRemoved(data.Track)
	case domain.TrackMuted, domain.TrackUnmuted:
		entry.trackMuteChanged(data.Track)
	case domain.TrackDegraded, domain.TrackRestored:
		entry.trackDegradeChanged(data.Track, data.Kind == domain.TrackDegraded)
	case domain.RoleChanged:
		entry.role = data.Role
		entry.mark(domain.PeerPropRole)
	case domain.NetworkQualityUpdated:
		entry.networkQuality = data.NetworkQuality
		entry.mark(domain.PeerPropNetworkQuality)
	case domain.MetadataChanged:
		if data.Metadata != nil {
			entry.metadata = *data.Metadata
			entry.mark(domain.PeerPropMetadata)
		}
	case domain.NameChanged:
		if data.Name != nil {
			entry.name = *data.Name
			entry.mark(domain.PeerPropName)
		}
	case domain.HandRaisedChanged:
		if data.IsHandRaised != nil {
			entry.isHandRaised = *data.IsHandRaised
			entry.mark(domain.PeerPropIsHandRaised)
		}
	default:
		entry.mergePeer(data.Peer)
	}

	// Writes that leave the bag empty are discarded.
	if entry.empty() {
		delete(c.entries, peerID)
	} else {
		c.entries[peerID] = entry
	}
	c.metrics.CachedPeers(len(c.entries))
}

// Cleanup drops every entry. Called on every leave, removal and
// destroy path.
func (c *Peers) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.PeerID]*peerEntry)
	c.departed = make(map[domain.PeerID]struct{})
	c.metrics.CachedPeers(0)
}

// Len reports the number of cached peers.
func (c *Peers) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PeerIDs returns the ids currently cached.
func (c *Peers) PeerIDs() []domain.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]domain.PeerID, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot assembles a consistent peer value from the cached fields.
// Unresolved fields stay at their zero value; no bridge query happens.
func (c *Peers) Snapshot(peerID domain.PeerID) (domain.Peer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[peerID]
	if !ok {
		return domain.Peer{}, false
	}
	return domain.Peer{
		PeerID:          peerID,
		Name:            entry.name,
		IsLocal:         entry.isLocal,
		CustomerUserID:  entry.customerUserID,
		Metadata:        entry.metadata,
		Type:            entry.peerType,
		IsHandRaised:    entry.isHandRaised,
		Role:            entry.role,
		NetworkQuality:  entry.networkQuality,
		AudioTrack:      entry.audioTrack,
		VideoTrack:      entry.videoTrack,
		AuxiliaryTracks: append([]domain.Track(nil), entry.auxiliaryTracks...),
	}, true
}

// mergePeer copies the snapshot's populated fields into the entry.
// Zero-valued scalar fields are treated as absent; this mirrors the
// shallow-merge safety net for untagged updates.
func (p *peerEntry) mergePeer(peer *domain.Peer) {
	if peer == nil {
		return
	}
	if peer.Name != "" {
		p.name = peer.Name
		p.mark(domain.PeerPropName)
	}
	if peer.IsLocal {
		p.isLocal = true
		p.mark(domain.PeerPropIsLocal)
	}
	if peer.CustomerUserID != "" {
		p.customerUserID = peer.CustomerUserID
		p.mark(domain.PeerPropCustomerUserID)
	}
	if peer.Metadata != "" {
		p.metadata = peer.Metadata
		p.mark(domain.PeerPropMetadata)
	}
	if peer.Type != "" {
		p.peerType = peer.Type
		p.mark(domain.PeerPropType)
	}
	if peer.IsHandRaised {
		p.isHandRaised = true
		p.mark(domain.PeerPropIsHandRaised)
	}
	if peer.Role != nil {
		p.role = peer.Role
		p.mark(domain.PeerPropRole)
	}
	if peer.NetworkQuality != nil {
		p.networkQuality = peer.NetworkQuality
		p.mark(domain.PeerPropNetworkQuality)
	}
	if peer.AudioTrack != nil {
		p.audioTrack = peer.AudioTrack
		p.mark(domain.PeerPropAudioTrack)
	}
	if peer.VideoTrack != nil {
		p.videoTrack = peer.VideoTrack
		p.mark(domain.PeerPropVideoTrack)
	}
	if peer.AuxiliaryTracks != nil {
		p.auxiliaryTracks = append([]domain.Track(nil), peer.AuxiliaryTracks...)
		p.mark(domain.PeerPropAuxiliaryTracks)
	}
}

func (p *peerEntry) trackAdded(track *domain.Track) {
	if track == nil {
		return
	}
	if track.IsRegular() {
		switch track.Type {
		case domain.TrackTypeVideo:
			t := *track
			t.IsDegraded = false
			p.videoTrack = &t
			p.mark(domain.PeerPropVideoTrack)
		case domain.TrackTypeAudio:
			t := *track
			p.audioTrack = &t
			p.mark(domain.PeerPropAudioTrack)
		}
		return
	}
	p.upsertAuxiliary(*track)
	p.mark(domain.PeerPropAuxiliaryTracks)
}

func (p *peerEntry) trackRemoved(track *domain.Track) {
	if track == nil {
		return
	}
	if track.IsRegular() {
		switch track.Type {
		case domain.TrackTypeVideo:
			p.videoTrack = nil
			p.mark(domain.PeerPropVideoTrack)
		case domain.TrackTypeAudio:
			p.audioTrack = nil
			p.mark(domain.PeerPropAudioTrack)
		}
		return
	}
	kept := p.auxiliaryTracks[:0]
	for _, aux := range p.auxiliaryTracks {
		if aux.TrackID != track.TrackID {
			kept = append(kept, aux)
		}
	}
	p.auxiliaryTracks = kept
	p.mark(domain.PeerPropAuxiliaryTracks)
}

// trackMuteChanged replaces the slot with the incoming track while
// explicitly carrying the degraded flag forward: mute and degradation
// are independent signals from the media engine.
func (p *peerEntry) trackMuteChanged(track *domain.Track) {
	if track == nil {
		return
	}
	if track.IsRegular() {
		switch track.Type {
		case domain.TrackTypeVideo:
			wasDegraded := p.videoTrack != nil && p.videoTrack.IsDegraded
			t := *track
			t.IsDegraded = wasDegraded
			p.videoTrack = &t
			p.mark(domain.PeerPropVideoTrack)
		case domain.TrackTypeAudio:
			t := *track
			p.audioTrack = &t
			p.mark(domain.PeerPropAudioTrack)
		}
		return
	}
	p.auxReplace(*track)
}

func (p *peerEntry) trackDegradeChanged(track *domain.Track, degraded bool) {
	if track == nil {
		return
	}
	if track.IsRegular() {
		switch track.Type {
		case domain.TrackTypeVideo:
			t := *track
			t.IsDegraded = degraded
			p.videoTrack = &t
			p.mark(domain.PeerPropVideoTrack)
		case domain.TrackTypeAudio:
			t := *track
			p.audioTrack = &t
			p.mark(domain.PeerPropAudioTrack)
		}
		return
	}
	t := *track
	t.IsDegraded = degraded
	p.auxReplace(t)
}

// auxReplace updates an auxiliary track in place. Only TRACK_ADDED may
// grow a known collection; a mute or degrade change for a track id we
// never saw is dropped. An unknown collection is seeded instead.
func (p *peerEntry) auxReplace(track domain.Track) {
	if !p.has(domain.PeerPropAuxiliaryTracks) {
		p.auxiliaryTracks = []domain.Track{track}
		p.mark(domain.PeerPropAuxiliaryTracks)
		return
	}
	for i := range p.auxiliaryTracks {
		if p.auxiliaryTracks[i].TrackID == track.TrackID {
			p.auxiliaryTracks[i] = track
		}
	}
}

// upsertAuxiliary keeps the collection keyed by track id with stable
// insertion order.
func (p *peerEntry) upsertAuxiliary(track domain.Track) {
	for i := range p.auxiliaryTracks {
		if p.auxiliaryTracks[i].TrackID == track.TrackID {
			p.auxiliaryTracks[i] = track
			return
		}
	}
	p.auxiliaryTracks = append(p.auxiliaryTracks, track)
}

func (c *Peers) String() string {
	return fmt.Sprintf("peers cache (session %s, %d entries)", c.sessionID, c.Len())
}
