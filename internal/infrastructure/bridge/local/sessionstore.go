package local

import (
	"context"
	"encoding/json"
	"fmt"

	"roomlink/internal/core/domain"
	"roomlink/internal/infrastructure/bridge/local/store"
)

func (b *Bridge) setSessionValue(ctx context.Context, sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("setSessionMetadataForKey payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	roomID := ss.room.id
	b.mu.Unlock()

	if err := b.kv.Set(ctx, roomID, req.Key, req.Value); err != nil {
		return nil, fmt.Errorf("store set: %w", err)
	}
	return json.Marshal(map[string]json.RawMessage{"finalValue": req.Value})
}

func (b *Bridge) getSessionValue(ctx context.Context, sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("getSessionMetadataForKey payload: %w", err)
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	roomID := ss.room.id
	b.mu.Unlock()

	value, err := b.kv.Get(ctx, roomID, req.Key)
	if err != nil {
		return nil, fmt.Errorf("store get: %w", err)
	}
	if value == nil {
		value = json.RawMessage("null")
	}
	return json.Marshal(map[string]json.RawMessage{"value": value})
}

func (b *Bridge) addKeyChangeListener(ctx context.Context, sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Keys     []string `json:"keys"`
		UniqueID string   `json:"uniqueId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("addKeyChangeListener payload: %w", err)
	}
	if len(req.Keys) == 0 {
		return nil, fmt.Errorf("no keys to watch")
	}

	b.mu.Lock()
	ss, err := b.session(sessionID)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	ss.watches[req.UniqueID] = req.Keys
	needWatch := ss.cancelWatch == nil
	roomID := ss.room.id
	b.mu.Unlock()

	if needWatch {
		cancel, err := b.kv.Watch(ctx, roomID, func(change store.Change) {
			b.onStoreChange(sessionID, change)
		})
		if err != nil {
			b.mu.Lock()
			delete(ss.watches, req.UniqueID)
			b.mu.Unlock()
			return nil, fmt.Errorf("store watch: %w", err)
		}
		b.mu.Lock()
		ss.cancelWatch = cancel
		b.mu.Unlock()
	}
	return json.RawMessage(`{}`), nil
}

func (b *Bridge) removeKeyChangeListener(sessionID domain.SessionID, payload json.RawMessage) (json.RawMessage, error) {
	var req struct {
		UniqueID string `json:"uniqueId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("removeKeyChangeListener payload: %w", err)
	}

	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return json.RawMessage(`{}`), nil
	}
	delete(ss.watches, req.UniqueID)
	var cancel func() error
	if len(ss.watches) == 0 {
		cancel = ss.cancelWatch
		ss.cancelWatch = nil
	}
	b.mu.Unlock()

	if cancel != nil {
		if err := cancel(); err != nil {
			b.log.Debugw("store watch cancel failed", "session", sessionID, "error", err)
		}
	}
	return json.RawMessage(`{}`), nil
}

// onStoreChange forwards a store change to the session when any of its
// registrations watch the changed key.
func (b *Bridge) onStoreChange(sessionID domain.SessionID, change store.Change) {
	b.mu.Lock()
	ss, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return
	}
	watched := false
	for _, keys := range ss.watches {
		for _, k := range keys {
			if k == change.Key {
				watched = true
				break
			}
		}
		if watched {
			break
		}
	}
	b.mu.Unlock()
	if !watched {
		return
	}

	var value any
	if len(change.Value) > 0 {
		value = change.Value
	}
	b.emit(sessionID, domain.EventSessionStoreChanged, map[string]any{
		"key":   change.Key,
		"value": value,
	})
}
