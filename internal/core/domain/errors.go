package domain

import "errors"

var (
	ErrPeerNotFound        = errors.New("peer not found")
	ErrTrackNotFound       = errors.New("track not found")
	ErrPropertyUnavailable = errors.New("property unavailable")
	ErrSessionClosed       = errors.New("session closed")
	ErrNoActiveRoom        = errors.New("no active room session")
	ErrBridgeUnavailable   = errors.New("bridge unavailable")
	ErrWatchRejected       = errors.New("key watch rejected by bridge")
)
