// Package local is an in-process bridge emulator. It implements the
// same command and event surface a remote bridge exposes, backed by a
// pluggable key-value store, and exists for development setups and
// tests that need real event flows without a conferencing backend.
package local

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/bridge/local/store"
)

type subKey struct {
	sessionID domain.SessionID
	event     domain.EventType
}

type handlerEntry struct {
	id string
	h  ports.EventHandler
}

type emission struct {
	key     subKey
	payload json.RawMessage
}

type sessionState struct {
	id     domain.SessionID
	room   *roomState
	peerID domain.PeerID

	// key-change registrations, uniqueId to watched keys
	watches     map[string][]string
	cancelWatch func() error
}

// Bridge emulates a conferencing bridge for any number of sessions in
// one process. Events are delivered from a single goroutine, so each
// session observes them in emission order.
type Bridge struct {
	kv     store.Store
	secret []byte
	log    *zap.SugaredLogger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionState
	rooms    map[domain.RoomID]*roomState
	handlers map[subKey][]handlerEntry

	queue chan emission
	done  chan struct{}
	once  sync.Once
}

// New creates an emulator over the given store. The secret signs the
// auth tokens handed out by getAuthTokenByRoomCode.
func New(kv store.Store, secret string, log *zap.SugaredLogger) *Bridge {
	b := &Bridge{
		kv:       kv,
		secret:   []byte(secret),
		log:      log,
		now:      time.Now,
		sessions: make(map[domain.SessionID]*sessionState),
		rooms:    make(map[domain.RoomID]*roomState),
		handlers: make(map[subKey][]handlerEntry),
		queue:    make(chan emission, 256),
		done:     make(chan struct{}),
	}
	go b.deliverLoop()
	return b
}

// Invoke runs a command synchronously against the emulated room state.
func (b *Bridge) Invoke(ctx context.Context, sessionID domain.SessionID, command string, payload any) (json.RawMessage, error) {
	raw, err := b.handle(ctx, sessionID, command, marshalPayload(payload))
	if err != nil {
		b.log.Debugw("command failed", "command", command, "session", sessionID, "error", err)
		return nil, err
	}
	return raw, nil
}

// Notify runs a command and drops its result.
func (b *Bridge) Notify(ctx context.Context, sessionID domain.SessionID, command string, payload any) error {
	_, err := b.Invoke(ctx, sessionID, command, payload)
	return err
}

// Subscribe registers a handler for one event type of one session.
func (b *Bridge) Subscribe(sessionID domain.SessionID, event domain.EventType, h ports.EventHandler) (ports.Subscription, error) {
	key := subKey{sessionID: sessionID, event: event}
	entry := handlerEntry{id: uuid.NewString(), h: h}
	b.mu.Lock()
	b.handlers[key] = append(b.handlers[key], entry)
	b.mu.Unlock()
	return &subscription{b: b, key: key, id: entry.id}, nil
}

type subscription struct {
	b   *Bridge
	key subKey
	id  string
}

func (s *subscription) Remove() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	entries := s.b.handlers[s.key]
	for i, e := range entries {
		if e.id == s.id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(s.b.handlers, s.key)
	} else {
		s.b.handlers[s.key] = entries
	}
	return nil
}

// emit queues an event for a session. The payload map gets the session
// id stamped in as the routing envelope.
func (b *Bridge) emit(sessionID domain.SessionID, event domain.EventType, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["id"] = string(sessionID)
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Warnw("unmarshalable event payload", "event", event, "error", err)
		return
	}
	select {
	case b.queue <- emission{key: subKey{sessionID: sessionID, event: event}, payload: raw}:
	case <-b.done:
	}
}

func (b *Bridge) deliverLoop() {
	for {
		select {
		case em := <-b.queue:
			b.mu.Lock()
			entries := make([]handlerEntry, len(b.handlers[em.key]))
			copy(entries, b.handlers[em.key])
			b.mu.Unlock()
			for _, e := range entries {
				e.h(em.payload)
			}
		case <-b.done:
			return
		}
	}
}

// Close stops event delivery and cancels every store watch.
func (b *Bridge) Close() error {
	b.once.Do(func() { close(b.done) })
	b.mu.Lock()
	cancels := make([]func() error, 0, len(b.sessions))
	for _, ss := range b.sessions {
		if ss.cancelWatch != nil {
			cancels = append(cancels, ss.cancelWatch)
			ss.cancelWatch = nil
		}
	}
	b.mu.Unlock()
	for _, cancel := range cancels {
		if err := cancel(); err != nil {
			b.log.Debugw("store watch cancel failed", "error", err)
		}
	}
	return nil
}

func marshalPayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
