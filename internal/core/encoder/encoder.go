// Package encoder turns raw bridge payloads into typed domain values.
//
// Payload shapes vary by bridge platform: dates arrive as millisecond
// strings or numbers, and peer-update discriminators arrive either as a
// stable string or as a small-integer ordinal under a dynamic object
// key. All of that duality is normalized here, once, at the boundary.
// Encoding never fails hard: missing fields produce zero values and
// unknown discriminators pass through with a logged warning, so a
// forward-incompatible payload cannot crash the dispatch pipeline.
package encoder

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"roomlink/internal/core/domain"
)

type Encoder struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Encoder {
	return &Encoder{log: log}
}

type rawTrack struct {
	TrackID     string  `json:"trackId"`
	NativeID    string  `json:"nativeId"`
	Source      *string `json:"source"`
	Type        *string `json:"type"`
	Description string  `json:"trackDescription"`
	Mute        *bool   `json:"mute"`
	IsDegraded  *bool   `json:"isDegraded"`
}

type rawRole struct {
	Name        *string `json:"name"`
	Priority    *int    `json:"priority"`
	Permissions *struct {
		EndRoom          *bool `json:"endRoom"`
		RemoveOthers     *bool `json:"removeOthers"`
		Mute             *bool `json:"mute"`
		Unmute           *bool `json:"unmute"`
		ChangeRole       *bool `json:"changeRole"`
		BrowserRecording *bool `json:"browserRecording"`
		RTMPStreaming    *bool `json:"rtmpStreaming"`
		HLSStreaming     *bool `json:"hlsStreaming"`
	} `json:"permissions"`
	PublishSettings   json.RawMessage `json:"publishSettings"`
	SubscribeSettings json.RawMessage `json:"subscribeSettings"`
}

type rawPeer struct {
	PeerID          string          `json:"peerID"`
	Name            *string         `json:"name"`
	IsLocal         *bool           `json:"isLocal"`
	CustomerUserID  *string         `json:"customerUserID"`
	Metadata        *string         `json:"metadata"`
	Type            *string         `json:"type"`
	IsHandRaised    *bool           `json:"isHandRaised"`
	Role            json.RawMessage `json:"role"`
	NetworkQuality  json.RawMessage `json:"networkQuality"`
	AudioTrack      json.RawMessage `json:"audioTrack"`
	VideoTrack      json.RawMessage `json:"videoTrack"`
	AuxiliaryTracks []json.RawMessage `json:"auxiliaryTracks"`
}

// Track decodes one track object. Returns nil for empty or null input.
func (e *Encoder) Track(raw json.RawMessage) *domain.Track {
	var rt rawTrack
	if !e.decode(raw, &rt, "track") {
		return nil
	}
	if rt.TrackID == "" && rt.NativeID == "" {
		return nil
	}

	t := &domain.Track{
		TrackID:     domain.TrackID(rt.TrackID),
		NativeID:    rt.NativeID,
		Description: rt.Description,
		Source:      domain.TrackSourceRegular,
	}
	if rt.Source != nil {
		t.Source = domain.TrackSource(strings.ToLower(*rt.Source))
	}
	if rt.Type != nil {
		t.Type = domain.TrackType(strings.ToUpper(*rt.Type))
	}
	if rt.Mute != nil {
		t.Mute = *rt.Mute
	}
	if rt.IsDegraded != nil {
		t.IsDegraded = *rt.IsDegraded
	}
	return t
}

// Role decodes a role object, tolerating absent permission blocks.
func (e *Encoder) Role(raw json.RawMessage) *domain.Role {
	var rr rawRole
	if !e.decode(raw, &rr, "role") {
		return nil
	}
	if rr.Name == nil && rr.Priority == nil && rr.Permissions == nil {
		return nil
	}

	r := &domain.Role{
		PublishAllowed:   len(rr.PublishSettings) > 0 && string(rr.PublishSettings) != "null",
		SubscribeAllowed: len(rr.SubscribeSettings) > 0 && string(rr.SubscribeSettings) != "null",
	}
	if rr.Name != nil {
		r.Name = *rr.Name
	}
	if rr.Priority != nil {
		r.Priority = *rr.Priority
	}
	if p := rr.Permissions; p != nil {
		r.Permissions = domain.Permissions{
			EndRoom:          boolOf(p.EndRoom),
			RemoveOthers:     boolOf(p.RemoveOthers),
			Mute:             boolOf(p.Mute),
			Unmute:           boolOf(p.Unmute),
			ChangeRole:       boolOf(p.ChangeRole),
			BrowserRecording: boolOf(p.BrowserRecording),
			RTMPStreaming:    boolOf(p.RTMPStreaming),
			HLSStreaming:     boolOf(p.HLSStreaming),
		}
	}
	return r
}

// NetworkQuality decodes the downlink score. A payload without a score
// yields -1, meaning "not known yet".
func (e *Encoder) NetworkQuality(raw json.RawMessage) *domain.NetworkQuality {
	var rq struct {
		DownlinkQuality *int `json:"downlinkQuality"`
	}
	if !e.decode(raw, &rq, "networkQuality") {
		return nil
	}
	q := &domain.NetworkQuality{DownlinkQuality: -1}
	if rq.DownlinkQuality != nil {
		q.DownlinkQuality = *rq.DownlinkQuality
	}
	return q
}

// Peer decodes a full or partial peer object, resolving nested role,
// network quality and track sub-objects recursively.
func (e *Encoder) Peer(raw json.RawMessage) *domain.Peer {
	var rp rawPeer
	if !e.decode(raw, &rp, "peer") {
		return nil
	}

	p := &domain.Peer{
		PeerID: domain.PeerID(rp.PeerID),
		Type:   domain.PeerTypeRegular,
	}
	if rp.Name != nil {
		p.Name = *rp.Name
	}
	if rp.IsLocal != nil {
		p.IsLocal = *rp.IsLocal
	}
	if rp.CustomerUserID != nil {
		p.CustomerUserID = *rp.CustomerUserID
	}
	if rp.Metadata != nil {
		p.Metadata = *rp.Metadata
	}
	if rp.Type != nil {
		p.Type = domain.PeerType(strings.ToUpper(*rp.Type))
	}
	if rp.IsHandRaised != nil {
		p.IsHandRaised = *rp.IsHandRaised
	}
	p.Role = e.Role(rp.Role)
	p.NetworkQuality = e.NetworkQuality(rp.NetworkQuality)
	p.AudioTrack = e.Track(rp.AudioTrack)
	p.VideoTrack = e.Track(rp.VideoTrack)
	for _, rawAux := range rp.AuxiliaryTracks {
		if t := e.Track(rawAux); t != nil {
			p.AuxiliaryTracks = append(p.AuxiliaryTracks, *t)
		}
	}
	return p
}

// Peers decodes a peer list, skipping entries that do not decode.
func (e *Encoder) Peers(raw json.RawMessage) []domain.Peer {
	var items []json.RawMessage
	if !e.decode(raw, &items, "peers") {
		return nil
	}
	peers := make([]domain.Peer, 0, len(items))
	for _, item := range items {
		if p := e.Peer(item); p != nil {
			peers = append(peers, *p)
		}
	}
	return peers
}

// Exception decodes a bridge error object.
func (e *Encoder) Exception(raw json.RawMessage) *domain.Exception {
	var re struct {
		Code        *int    `json:"code"`
		Description *string `json:"description"`
		Action      *string `json:"action"`
		IsTerminal  *bool   `json:"isTerminal"`
		CanRetry    *bool   `json:"canRetry"`
	}
	if !e.decode(raw, &re, "exception") {
		return nil
	}
	ex := &domain.Exception{}
	if re.Code != nil {
		ex.Code = *re.Code
	}
	if re.Description != nil {
		ex.Description = *re.Description
	}
	if re.Action != nil {
		ex.Action = *re.Action
	}
	ex.IsTerminal = boolOf(re.IsTerminal)
	ex.CanRetry = boolOf(re.CanRetry)
	return ex
}

// Message decodes a chat message event.
func (e *Encoder) Message(raw json.RawMessage) *domain.Message {
	var rm struct {
		Sender    json.RawMessage `json:"sender"`
		Recipient struct {
			RecipientType  *string           `json:"recipientType"`
			RecipientPeer  json.RawMessage   `json:"recipientPeer"`
			RecipientRoles []json.RawMessage `json:"recipientRoles"`
		} `json:"recipient"`
		Message *string         `json:"message"`
		Type    *string         `json:"type"`
		Time    json.RawMessage `json:"time"`
	}
	if !e.decode(raw, &rm, "message") {
		return nil
	}

	m := &domain.Message{
		Sender: e.Peer(rm.Sender),
		Recipient: domain.MessageRecipient{
			Type: domain.RecipientBroadcast,
			Peer: e.Peer(rm.Recipient.RecipientPeer),
		},
	}
	if rm.Recipient.RecipientType != nil {
		m.Recipient.Type = domain.MessageRecipientType(strings.ToUpper(*rm.Recipient.RecipientType))
	}
	for _, rawRole := range rm.Recipient.RecipientRoles {
		if r := e.Role(rawRole); r != nil {
			m.Recipient.Roles = append(m.Recipient.Roles, *r)
		}
	}
	if rm.Message != nil {
		m.Payload = *rm.Message
	}
	if rm.Type != nil {
		m.Type = *rm.Type
	}
	if ts := e.Timestamp(rm.Time); ts != nil {
		m.Time = *ts
	} else {
		m.Time = time.Now()
	}
	return m
}

// PeerUpdate normalizes an update discriminator that may be a string
// name or an integer ordinal. ok is false for tokens the table does
// not cover; callers keep the raw tag and fall back to generic merge.
func (e *Encoder) PeerUpdate(token json.RawMessage) (kind domain.UpdateKind, raw string, ok bool) {
	if len(token) == 0 || string(token) == "null" {
		return domain.UpdateUnknown, "", false
	}

	var s string
	if err := json.Unmarshal(token, &s); err == nil {
		if k, found := peerUpdateNames[s]; found {
			return k, s, true
		}
		// An ordinal can also arrive quoted.
		if k, found := domain.PeerUpdateOrdinals[s]; found {
			return k, s, true
		}
		e.log.Warnw("unknown peer update discriminator", "token", s)
		return domain.UpdateUnknown, s, false
	}

	var n int
	if err := json.Unmarshal(token, &n); err == nil {
		key := strconv.Itoa(n)
		if k, found := domain.PeerUpdateOrdinals[key]; found {
			return k, key, true
		}
		e.log.Warnw("unknown peer update ordinal", "ordinal", n)
		return domain.UpdateUnknown, key, false
	}

	e.log.Warnw("undecodable peer update discriminator", "token", string(token))
	return domain.UpdateUnknown, string(token), false
}

// RoomUpdate normalizes a room update discriminator.
func (e *Encoder) RoomUpdate(token json.RawMessage) (domain.RoomUpdateKind, string, bool) {
	var s string
	if err := json.Unmarshal(token, &s); err != nil {
		if len(token) > 0 && string(token) != "null" {
			e.log.Warnw("undecodable room update discriminator", "token", string(token))
		}
		return domain.RoomUpdateUnknown, string(token), false
	}
	if k, found := roomUpdateNames[s]; found {
		return k, s, true
	}
	e.log.Warnw("unknown room update discriminator", "token", s)
	return domain.RoomUpdateUnknown, s, false
}

// Timestamp parses the bridge's millisecond-epoch dates, which arrive
// as numbers or numeric strings.
func (e *Encoder) Timestamp(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			e.log.Warnw("undecodable timestamp", "raw", string(raw))
			return nil
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			e.log.Warnw("undecodable timestamp string", "value", s)
			return nil
		}
		ms = parsed
	}
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

var peerUpdateNames = map[string]domain.UpdateKind{
	string(domain.PeerJoined):            domain.PeerJoined,
	string(domain.PeerLeft):              domain.PeerLeft,
	string(domain.RoleChanged):           domain.RoleChanged,
	string(domain.MetadataChanged):       domain.MetadataChanged,
	string(domain.NameChanged):           domain.NameChanged,
	string(domain.NetworkQualityUpdated): domain.NetworkQualityUpdated,
	string(domain.HandRaisedChanged):     domain.HandRaisedChanged,
	string(domain.TrackAdded):            domain.TrackAdded,
	string(domain.TrackRemoved):          domain.TrackRemoved,
	string(domain.TrackMuted):            domain.TrackMuted,
	string(domain.TrackUnmuted):          domain.TrackUnmuted,
	string(domain.TrackDegraded):         domain.TrackDegraded,
	string(domain.TrackRestored):         domain.TrackRestored,
}

var roomUpdateNames = map[string]domain.RoomUpdateKind{
	string(domain.RoomJoined):              domain.RoomJoined,
	string(domain.RoomMuted):               domain.RoomMuted,
	string(domain.RoomUnmuted):             domain.RoomUnmuted,
	string(domain.RoomPeerCountUpdated):    domain.RoomPeerCountUpdated,
	string(domain.BrowserRecordingUpdated): domain.BrowserRecordingUpdated,
	string(domain.ServerRecordingUpdated):  domain.ServerRecordingUpdated,
	string(domain.HLSRecordingUpdated):     domain.HLSRecordingUpdated,
	string(domain.RTMPStreamingUpdated):    domain.RTMPStreamingUpdated,
	string(domain.HLSStreamingUpdated):     domain.HLSStreamingUpdated,
}

// sortedOrdinals returns the ordinal keys in a stable order so the
// dynamic-key scan below is deterministic.
var sortedOrdinals = func() []string {
	keys := make([]string, 0, len(domain.PeerUpdateOrdinals))
	for k := range domain.PeerUpdateOrdinals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

func (e *Encoder) decode(raw json.RawMessage, into any, what string) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		e.log.Warnw("payload field does not decode", "field", what, "error", err)
		return false
	}
	return true
}

func boolOf(b *bool) bool {
	return b != nil && *b
}
