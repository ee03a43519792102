// Package sessionstore exposes the room's shared realtime key-value
// store and multiplexes any number of application key-change listeners
// over a single bridge notification channel.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

// KeyChange is one observed value change. Value is nil when the key
// was cleared.
type KeyChange struct {
	Key   string
	Value *string
}

// KeyChangeHandler receives either an error (failed bridge
// registration, reported exactly once) or a change, never both.
type KeyChangeHandler func(err error, change *KeyChange)

// Store is the session-store facade for one room session. Set and Get
// pass through to the bridge uncached, so reads always reflect the
// latest remote value at call time.
type Store struct {
	sessionID domain.SessionID
	bridge    ports.Bridge
	events    ports.EventSource
	metrics   ports.Metrics
	log       *zap.SugaredLogger

	mu         sync.Mutex
	channelSub ports.Subscription
	emitter    *keyEmitter
	count      int

	now func() time.Time // test seam for unique id generation
}

func New(sessionID domain.SessionID, bridge ports.Bridge, events ports.EventSource, metrics ports.Metrics, log *zap.SugaredLogger) *Store {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Store{
		sessionID: sessionID,
		bridge:    bridge,
		events:    events,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// Set assigns a value for a key, making it visible to every peer in
// the room. The returned value is the bridge's final stored value.
func (s *Store) Set(ctx context.Context, key string, value *string) (*string, error) {
	payload := map[string]any{"key": key, "value": value}
	raw, err := s.bridge.Invoke(ctx, s.sessionID, ports.CmdSetSessionValue, payload)
	if err != nil {
		return nil, fmt.Errorf("session store set %q: %w", key, err)
	}
	var resp struct {
		FinalValue *string `json:"finalValue"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return value, nil
	}
	return resp.FinalValue, nil
}

// Get returns the latest remote value for a key. It never serves a
// cached value and delivers no updates; use AddKeyChangeListener for
// those.
func (s *Store) Get(ctx context.Context, key string) (*string, error) {
	raw, err := s.bridge.Invoke(ctx, s.sessionID, ports.CmdGetSessionValue, map[string]any{"key": key})
	if err != nil {
		return nil, fmt.Errorf("session store get %q: %w", key, err)
	}
	var resp struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil
	}
	return resp.Value, nil
}

// KeyChangeSubscription undoes one AddKeyChangeListener registration.
type KeyChangeSubscription struct {
	once    sync.Once
	cleanup func()
}

// Remove detaches the registration's callbacks and, when it was the
// last one, tears down the shared bridge channel.
func (s *KeyChangeSubscription) Remove() {
	s.once.Do(func() {
		if s.cleanup != nil {
			s.cleanup()
		}
	})
}

// AddKeyChangeListener watches a set of keys. The shared bridge
// channel and the internal per-key emitter are created lazily on the
// first registration and torn down when the last registration is
// removed. If the bridge rejects the registration, cb is invoked once
// with the error and the registration is rolled back; the returned
// subscription is then inert.
func (s *Store) AddKeyChangeListener(ctx context.Context, keys []string, cb KeyChangeHandler) *KeyChangeSubscription {
	s.mu.Lock()

	if s.channelSub == nil {
		sub, err := s.events.Subscribe(s.sessionID, domain.EventSessionStoreChanged, s.onChanged)
		if err != nil {
			s.mu.Unlock()
			cb(fmt.Errorf("subscribe session store channel: %w", err), nil)
			return &KeyChangeSubscription{}
		}
		s.channelSub = sub
	}
	if s.emitter == nil {
		s.emitter = newKeyEmitter()
	}

	// Unique id per registration call; the bridge tracks the watched
	// key set under it and the emitter tags its bindings with it so
	// they can be torn down together.
	uniqueID := strings.Join(keys, "") + "_" + strconv.FormatInt(s.now().UnixMilli(), 10)

	for _, key := range keys {
		s.emitter.add(key, uniqueID, cb)
	}
	s.count++
	s.metrics.KeyChangeListeners(s.count)
	s.mu.Unlock()

	payload := map[string]any{"keys": keys, "uniqueId": uniqueID}
	if _, err := s.bridge.Invoke(ctx, s.sessionID, ports.CmdAddKeyChangeListener, payload); err != nil {
		cb(fmt.Errorf("%w: %v", domain.ErrWatchRejected, err), nil)
		s.teardown(uniqueID)
		return &KeyChangeSubscription{}
	}

	return &KeyChangeSubscription{cleanup: func() { s.teardown(uniqueID) }}
}

// teardown removes one registration's bindings, unwatches its key set
// on the bridge, and closes the shared channel when the registration
// count reaches zero. The count never goes negative.
func (s *Store) teardown(uniqueID string) {
	s.mu.Lock()
	if s.emitter != nil {
		s.emitter.removeByID(uniqueID)
	}
	if s.count > 0 {
		s.count--
	}
	remaining := s.count
	var channelSub ports.Subscription
	if remaining == 0 {
		channelSub = s.channelSub
		s.channelSub = nil
		s.emitter = nil
	}
	s.metrics.KeyChangeListeners(remaining)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.bridge.Invoke(ctx, s.sessionID, ports.CmdRemoveKeyChangeListener, map[string]any{"uniqueId": uniqueID}); err != nil {
		// The watch may never have registered or is already gone.
		s.log.Debugw("remove key change listener", "uniqueId", uniqueID, "error", err)
	}
	if channelSub != nil {
		if err := channelSub.Remove(); err != nil {
			s.log.Debugw("remove session store channel subscription", "error", err)
		}
	}
}

// Close force-releases the channel and every binding. Used by session
// teardown paths.
func (s *Store) Close() {
	s.mu.Lock()
	channelSub := s.channelSub
	s.channelSub = nil
	s.emitter = nil
	s.count = 0
	s.metrics.KeyChangeListeners(0)
	s.mu.Unlock()

	if channelSub != nil {
		if err := channelSub.Remove(); err != nil {
			s.log.Debugw("remove session store channel subscription", "error", err)
		}
	}
}

// onChanged dispatches one bridge change notification. Fan-out is
// per-key: every callback registered for the changed key fires, no
// matter which registration call added it.
func (s *Store) onChanged(payload json.RawMessage) {
	var data struct {
		ID    string  `json:"id"`
		Key   string  `json:"key"`
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		s.log.Warnw("undecodable session store change", "error", err)
		return
	}
	if data.ID != string(s.sessionID) {
		return
	}

	s.mu.Lock()
	emitter := s.emitter
	s.mu.Unlock()
	if emitter == nil {
		return
	}
	emitter.emit(data.Key, &KeyChange{Key: data.Key, Value: data.Value})
}
