package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.Get(ctx, "room-1", "topic")
	require.NoError(t, err)
	assert.Nil(t, got, "unset key reads as nil")

	require.NoError(t, m.Set(ctx, "room-1", "topic", json.RawMessage(`"standup"`)))
	got, err = m.Get(ctx, "room-1", "topic")
	require.NoError(t, err)
	assert.JSONEq(t, `"standup"`, string(got))

	require.NoError(t, m.Set(ctx, "room-1", "topic", json.RawMessage(`"retro"`)))
	got, err = m.Get(ctx, "room-1", "topic")
	require.NoError(t, err)
	assert.JSONEq(t, `"retro"`, string(got))
}

func TestMemory_RoomsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "room-1", "topic", json.RawMessage(`"a"`)))

	got, err := m.Get(ctx, "room-2", "topic")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemory_WatchDeliversInWriteOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var seen []Change
	cancel, err := m.Watch(ctx, "room-1", func(c Change) { seen = append(seen, c) })
	require.NoError(t, err)
	defer func() { _ = cancel() }()

	require.NoError(t, m.Set(ctx, "room-1", "a", json.RawMessage(`1`)))
	require.NoError(t, m.Set(ctx, "room-1", "b", json.RawMessage(`2`)))
	require.NoError(t, m.Set(ctx, "room-1", "a", json.RawMessage(`3`)))

	require.Len(t, seen, 3)
	assert.Equal(t, "a", seen[0].Key)
	assert.Equal(t, "b", seen[1].Key)
	assert.JSONEq(t, `3`, string(seen[2].Value))
}

func TestMemory_WatchScopedToRoom(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var seen []Change
	cancel, err := m.Watch(ctx, "room-1", func(c Change) { seen = append(seen, c) })
	require.NoError(t, err)
	defer func() { _ = cancel() }()

	require.NoError(t, m.Set(ctx, "room-2", "a", json.RawMessage(`1`)))
	assert.Empty(t, seen)
}

func TestMemory_CancelStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var first, second []Change
	cancelFirst, err := m.Watch(ctx, "room-1", func(c Change) { first = append(first, c) })
	require.NoError(t, err)
	cancelSecond, err := m.Watch(ctx, "room-1", func(c Change) { second = append(second, c) })
	require.NoError(t, err)
	defer func() { _ = cancelSecond() }()

	require.NoError(t, cancelFirst())
	require.NoError(t, m.Set(ctx, "room-1", "a", json.RawMessage(`1`)))

	assert.Empty(t, first)
	assert.Len(t, second, 1)

	// Cancelling twice is harmless.
	assert.NoError(t, cancelFirst())
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	assert.NoError(t, m.Close())
}
