package domain

import "time"

// MessageRecipientType scopes who receives a chat message.
type MessageRecipientType string

const (
	RecipientBroadcast MessageRecipientType = "BROADCAST"
	RecipientPeer      MessageRecipientType = "PEER"
	RecipientRoles     MessageRecipientType = "ROLES"
)

type MessageRecipient struct {
	Type  MessageRecipientType
	Peer  *Peer
	Roles []Role
}

// Message is a chat payload relayed through the bridge. Payload and
// Type are opaque application strings.
type Message struct {
	Sender    *Peer
	Recipient MessageRecipient
	Payload   string
	Type      string
	Time      time.Time
}
