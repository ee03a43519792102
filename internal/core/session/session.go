// Package session holds the SDK facade: one object per join/preview
// session owning the peer and room caches, one bridge subscription per
// logical event type, and at most one application delegate per type.
package session

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"roomlink/internal/core/cache"
	"roomlink/internal/core/domain"
	"roomlink/internal/core/encoder"
	"roomlink/internal/core/ports"
	"roomlink/internal/core/sessionstore"
)

// Event is the encoded, cache-enriched payload handed to a delegate.
// Only the fields relevant to the event type are populated.
type Event struct {
	Type domain.EventType

	Room          *domain.Room
	Peer          *domain.Peer
	Track         *domain.Track
	UpdateKind    domain.UpdateKind
	RawUpdate     string
	RoomUpdate    domain.RoomUpdateKind
	PreviewTracks []domain.Track
	Message       *domain.Message
	Exception     *domain.Exception
	Speakers      []Speaker
	RequestedBy   *domain.Peer
	SuggestedRole *domain.Role
	Reason        string
	RoomEnded     bool
	SessionStore  *sessionstore.Store
	Raw           json.RawMessage
}

// Speaker is one active-speaker report.
type Speaker struct {
	Peer  *domain.Peer
	Level int
}

// Delegate receives encoded events. At most one delegate exists per
// event type; events arriving with none registered are dropped, never
// queued.
type Delegate func(Event)

type registration struct {
	sub      ports.Subscription
	delegate Delegate
}

// Session is the facade over one conferencing session. Construct with
// New, then Join or Preview; Leave or Destroy releases everything.
type Session struct {
	id      domain.SessionID
	bridge  ports.Bridge
	events  ports.EventSource
	enc     *encoder.Encoder
	metrics ports.Metrics
	log     *zap.SugaredLogger

	mu        sync.Mutex
	listeners map[domain.EventType]*registration
	peers     *cache.Peers
	room      *cache.Room
	store     *sessionstore.Store
	closed    bool
}

func New(bridge ports.Bridge, events ports.EventSource, metrics ports.Metrics, log *zap.SugaredLogger) *Session {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Session{
		id:        domain.SessionID(uuid.NewString()),
		bridge:    bridge,
		events:    events,
		enc:       encoder.New(log),
		metrics:   metrics,
		log:       log,
		listeners: make(map[domain.EventType]*registration),
	}
}

// ID is this facade instance's session id. Every outbound command and
// inbound event carries it.
func (s *Session) ID() domain.SessionID { return s.id }

// Peers exposes the peer cache. Nil until Join or Preview.
func (s *Session) Peers() *cache.Peers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers
}

// Room exposes the room cache. Nil until Join or Preview.
func (s *Session) Room() *cache.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// SessionStore returns the shared key-value store facade, creating it
// on first use.
func (s *Session) SessionStore() *sessionstore.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionStoreLocked()
}

func (s *Session) sessionStoreLocked() *sessionstore.Store {
	if s.store == nil {
		s.store = sessionstore.New(s.id, s.bridge, s.events, s.metrics, s.log)
	}
	return s.store
}

// AddEventListener registers the delegate for one event type. The
// bridge subscription for that type is created exactly once; calling
// again replaces the delegate without re-subscribing.
func (s *Session) AddEventListener(event domain.EventType, delegate Delegate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, exists := s.listeners[event]
	if !exists {
		sub, err := s.events.Subscribe(s.id, event, func(raw json.RawMessage) {
			s.dispatch(event, raw)
		})
		if err != nil {
			return err
		}
		reg = &registration{sub: sub}
		s.listeners[event] = reg
	}
	reg.delegate = delegate
	return nil
}

// RemoveEventListener tears down the bridge subscription for one event
// type. Removing an unregistered type is a no-op.
func (s *Session) RemoveEventListener(event domain.EventType) {
	s.mu.Lock()
	reg, exists := s.listeners[event]
	if exists {
		delete(s.listeners, event)
	}
	s.mu.Unlock()

	if exists && reg.sub != nil {
		if err := reg.sub.Remove(); err != nil {
			s.log.Warnw("remove event subscription", "event", event, "error", err)
		}
	}
}

// RemoveAllListeners tears down every bridge subscription. Part of
// session teardown.
func (s *Session) RemoveAllListeners() {
	s.mu.Lock()
	regs := make(map[domain.EventType]*registration, len(s.listeners))
	for event, reg := range s.listeners {
		regs[event] = reg
	}
	s.listeners = make(map[domain.EventType]*registration)
	s.mu.Unlock()

	for event, reg := range regs {
		if reg.sub != nil {
			if err := reg.sub.Remove(); err != nil {
				s.log.Warnw("remove event subscription", "event", event, "error", err)
			}
		}
	}
}

// delegateFor returns the registered delegate, or nil.
func (s *Session) delegateFor(event domain.EventType) Delegate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.listeners[event]; ok {
		return reg.delegate
	}
	return nil
}

// roomLeaveCleanup clears both caches and the session-store channel.
// Explicit rather than garbage-collected, to rule out cross-session
// staleness.
func (s *Session) roomLeaveCleanup() {
	s.mu.Lock()
	peers, room, store := s.peers, s.room, s.store
	s.mu.Unlock()

	if peers != nil {
		peers.Cleanup()
	}
	if room != nil {
		room.Cleanup()
	}
	if store != nil {
		store.Close()
	}
}
