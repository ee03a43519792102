package store

import (
	"context"
	"encoding/json"
	"sync"

	"roomlink/internal/core/domain"
)

type memoryWatcher struct {
	id int
	fn func(Change)
}

// Memory is an in-process Store. Watchers are invoked synchronously
// on the writer's goroutine, so changes arrive in write order.
type Memory struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]map[string]json.RawMessage
	watchers map[domain.RoomID][]memoryWatcher
	nextID   int
}

func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[domain.RoomID]map[string]json.RawMessage),
		watchers: make(map[domain.RoomID][]memoryWatcher),
	}
}

func (m *Memory) Set(_ context.Context, room domain.RoomID, key string, value json.RawMessage) error {
	m.mu.Lock()
	kv, ok := m.rooms[room]
	if !ok {
		kv = make(map[string]json.RawMessage)
		m.rooms[room] = kv
	}
	kv[key] = value
	watchers := make([]memoryWatcher, len(m.watchers[room]))
	copy(watchers, m.watchers[room])
	m.mu.Unlock()

	for _, w := range watchers {
		w.fn(Change{Key: key, Value: value})
	}
	return nil
}

func (m *Memory) Get(_ context.Context, room domain.RoomID, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[room][key], nil
}

func (m *Memory) Watch(_ context.Context, room domain.RoomID, fn func(Change)) (func() error, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.watchers[room] = append(m.watchers[room], memoryWatcher{id: id, fn: fn})
	m.mu.Unlock()

	cancel := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		watchers := m.watchers[room]
		for i, w := range watchers {
			if w.id == id {
				m.watchers[room] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		if len(m.watchers[room]) == 0 {
			delete(m.watchers, room)
		}
		return nil
	}
	return cancel, nil
}

func (m *Memory) Close() error { return nil }
