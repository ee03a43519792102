package local

import (
	"time"

	"roomlink/internal/core/domain"
)

type trackModel struct {
	id       string
	source   domain.TrackSource
	typ      domain.TrackType
	desc     string
	mute     bool
	degraded bool
}

type peerModel struct {
	id             domain.PeerID
	name           string
	customerUserID string
	metadata       string
	role           string
	peerType       domain.PeerType
	handRaised     bool
	quality        int
	audio          *trackModel
	video          *trackModel
	aux            []*trackModel
}

type recordingModel struct {
	running   bool
	startedAt time.Time
}

type roomState struct {
	id              domain.RoomID
	name            string
	serverSessionID string

	// insertion order, so peer lists come out stable
	order []domain.PeerID
	peers map[domain.PeerID]*peerModel

	browserRecording recordingModel
	serverRecording  recordingModel
	hlsRecording     recordingModel
	rtmpStreaming    recordingModel
	hlsStreaming     recordingModel
	hlsVariants      []map[string]any
}

func (r *roomState) addPeer(p *peerModel) {
	if _, ok := r.peers[p.id]; !ok {
		r.order = append(r.order, p.id)
	}
	r.peers[p.id] = p
}

func (r *roomState) removePeer(id domain.PeerID) {
	delete(r.peers, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *roomState) peerList() []*peerModel {
	out := make([]*peerModel, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.peers[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func trackJSON(t *trackModel) map[string]any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"trackId":          t.id,
		"source":           string(t.source),
		"type":             string(t.typ),
		"trackDescription": t.desc,
		"mute":             t.mute,
		"isDegraded":       t.degraded,
	}
}

func roleJSON(name string) map[string]any {
	return map[string]any{
		"name": name,
		"permissions": map[string]any{
			"endRoom":          name == "host",
			"removeOthers":     name == "host",
			"mute":             name == "host",
			"unmute":           name == "host",
			"changeRole":       name == "host",
			"browserRecording": name == "host",
			"rtmpStreaming":    name == "host",
			"hlsStreaming":     name == "host",
		},
	}
}

func peerJSON(p *peerModel, isLocal bool) map[string]any {
	aux := make([]map[string]any, 0, len(p.aux))
	for _, t := range p.aux {
		aux = append(aux, trackJSON(t))
	}
	out := map[string]any{
		"peerID":          string(p.id),
		"name":            p.name,
		"isLocal":         isLocal,
		"customerUserID":  p.customerUserID,
		"metadata":        p.metadata,
		"type":            string(p.peerType),
		"isHandRaised":    p.handRaised,
		"role":            roleJSON(p.role),
		"networkQuality":  map[string]any{"downlinkQuality": p.quality},
		"auxiliaryTracks": aux,
	}
	if p.audio != nil {
		out["audioTrack"] = trackJSON(p.audio)
	}
	if p.video != nil {
		out["videoTrack"] = trackJSON(p.video)
	}
	return out
}

func recordingJSON(m recordingModel) map[string]any {
	out := map[string]any{"running": m.running}
	if !m.startedAt.IsZero() {
		out["startedAt"] = m.startedAt.UnixMilli()
	}
	return out
}

func (r *roomState) roomJSON(localPeerID domain.PeerID) map[string]any {
	out := map[string]any{
		"id":                    string(r.id),
		"name":                  r.name,
		"sessionId":             r.serverSessionID,
		"peerCount":             len(r.peers),
		"browserRecordingState": recordingJSON(r.browserRecording),
		"serverRecordingState":  recordingJSON(r.serverRecording),
		"hlsRecordingState":     recordingJSON(r.hlsRecording),
		"rtmpStreamingState":    recordingJSON(r.rtmpStreaming),
	}
	hls := recordingJSON(r.hlsStreaming)
	if len(r.hlsVariants) > 0 {
		hls["variants"] = r.hlsVariants
	}
	out["hlsStreamingState"] = hls
	if p, ok := r.peers[localPeerID]; ok {
		out["localPeer"] = peerJSON(p, true)
	}
	return out
}
