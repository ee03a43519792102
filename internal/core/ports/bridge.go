package ports

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"
)

// Command names understood by the bridge. Payload shapes are flat
// objects; every command is tagged with the session id so a
// multi-session host can route responses.
const (
	CmdJoin                     = "join"
	CmdPreview                  = "preview"
	CmdLeave                    = "leave"
	CmdDestroy                  = "destroy"
	CmdSetLocalMute             = "setLocalMute"
	CmdChangeRole               = "changeRoleOfPeer"
	CmdChangeName               = "changeName"
	CmdChangeMetadata           = "changeMetadata"
	CmdRaiseHand                = "raiseLocalPeerHand"
	CmdLowerHand                = "lowerLocalPeerHand"
	CmdSendMessage              = "sendMessage"
	CmdStartRTMPOrRecording     = "startRTMPOrRecording"
	CmdStopRTMPAndRecording     = "stopRtmpAndRecording"
	CmdStartHLSStreaming        = "startHLSStreaming"
	CmdStopHLSStreaming         = "stopHLSStreaming"
	CmdGetAuthTokenByRoomCode   = "getAuthTokenByRoomCode"
	CmdGetPeerProperty          = "getPeerProperty"
	CmdGetRoomProperty          = "getRoomProperty"
	CmdSetSessionValue          = "setSessionMetadataForKey"
	CmdGetSessionValue          = "getSessionMetadataForKey"
	CmdAddKeyChangeListener     = "addKeyChangeListener"
	CmdRemoveKeyChangeListener  = "removeKeyChangeListener"
	CmdEnableEvent              = "enableEvent"
	CmdDisableEvent             = "disableEvent"
)

// Bridge is the command side of the conferencing engine. It is opaque:
// payloads cross an async boundary and failures come back unchanged as
// errors, with no retry at this layer.
type Bridge interface {
	// Invoke sends a command and waits for the bridge's response.
	Invoke(ctx context.Context, sessionID domain.SessionID, command string, payload any) (json.RawMessage, error)

	// Notify sends a fire-and-forget command.
	Notify(ctx context.Context, sessionID domain.SessionID, command string, payload any) error
}

// EventHandler receives one raw event payload. Payloads carry the
// emitting session's id; consumers discard mismatches.
type EventHandler func(payload json.RawMessage)

// EventSource is the event side of the bridge. Events for a given
// session are delivered in emission order.
type EventSource interface {
	Subscribe(sessionID domain.SessionID, event domain.EventType, h EventHandler) (Subscription, error)
}

type Subscription interface {
	Remove() error
}

// PropertyResolver backs lazy cache fills with a direct bridge query
// for a single property.
type PropertyResolver interface {
	PeerProperty(sessionID domain.SessionID, peerID domain.PeerID, property domain.PeerProperty) (json.RawMessage, error)
	RoomProperty(sessionID domain.SessionID, property domain.RoomProperty) (json.RawMessage, error)
}
