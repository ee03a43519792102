package domain

// EventType names one logical event stream from the bridge. Values
// match the wire tags the bridge emits.
type EventType string

const (
	EventJoin                  EventType = "ON_JOIN"
	EventPreview               EventType = "ON_PREVIEW"
	EventRoomUpdate            EventType = "ON_ROOM_UPDATE"
	EventPeerUpdate            EventType = "ON_PEER_UPDATE"
	EventTrackUpdate           EventType = "ON_TRACK_UPDATE"
	EventError                 EventType = "ON_ERROR"
	EventMessage               EventType = "ON_MESSAGE"
	EventSpeaker               EventType = "ON_SPEAKER"
	EventReconnecting          EventType = "RECONNECTING"
	EventReconnected           EventType = "RECONNECTED"
	EventRoleChangeRequest     EventType = "ON_ROLE_CHANGE_REQUEST"
	EventRemovedFromRoom       EventType = "ON_REMOVED_FROM_ROOM"
	EventSessionStoreAvailable EventType = "ON_SESSION_STORE_AVAILABLE"
	EventSessionStoreChanged   EventType = "ON_SESSION_STORE_CHANGED"
	EventPIPRoomLeave          EventType = "ON_PIP_ROOM_LEAVE"
)
