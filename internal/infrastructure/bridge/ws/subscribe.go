package ws

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type subscription struct {
	c   *Client
	key subKey
	id  string
}

// Subscribe registers a handler for one event type of one session.
// The first handler for a type tells the bridge to start emitting it;
// removing the last tells it to stop.
func (c *Client) Subscribe(sessionID domain.SessionID, event domain.EventType, h ports.EventHandler) (ports.Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", event)
	}
	key := subKey{sessionID: sessionID, event: event}
	entry := handlerEntry{id: uuid.NewString(), h: h}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrBridgeUnavailable
	}
	first := len(c.handlers[key]) == 0
	c.handlers[key] = append(c.handlers[key], entry)
	c.mu.Unlock()

	if first {
		if err := c.Notify(context.Background(), sessionID, ports.CmdEnableEvent, map[string]any{"event": event}); err != nil {
			c.removeHandler(key, entry.id)
			return nil, fmt.Errorf("subscribe %s: %w", event, err)
		}
	}
	return &subscription{c: c, key: key, id: entry.id}, nil
}

func (s *subscription) Remove() error {
	last := s.c.removeHandler(s.key, s.id)
	if !last {
		return nil
	}
	if err := s.c.Notify(context.Background(), s.key.sessionID, ports.CmdDisableEvent, map[string]any{"event": s.key.event}); err != nil {
		s.c.log.Debugw("disable event failed", "event", s.key.event, "error", err)
	}
	return nil
}

// removeHandler reports whether the removed handler was the last one
// for its key.
func (c *Client) removeHandler(key subKey, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[key]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(c.handlers, key)
		return true
	}
	c.handlers[key] = entries
	return false
}
