// Package store backs the emulator's shared session metadata. The
// memory implementation serves a single process; the redis one lets
// several emulator instances share one room's key space.
package store

import (
	"context"
	"encoding/json"

	"roomlink/internal/core/domain"
)

// Change is one observed write to a room's key space.
type Change struct {
	Key   string
	Value json.RawMessage
}

// Store is a per-room key-value space with change notification.
type Store interface {
	Set(ctx context.Context, room domain.RoomID, key string, value json.RawMessage) error
	Get(ctx context.Context, room domain.RoomID, key string) (json.RawMessage, error)

	// Watch delivers every subsequent change in the room, including
	// the watcher's own writes. The returned func cancels the watch.
	Watch(ctx context.Context, room domain.RoomID, fn func(Change)) (func() error, error)

	Close() error
}
