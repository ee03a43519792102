package sessionstore

import "sync"

// keyEmitter is the internal per-key callback registry. Bindings are
// tagged with their registration's unique id so one registration's
// callbacks can be removed as a group without touching callbacks other
// registrations attached to the same keys.
type keyEmitter struct {
	mu       sync.Mutex
	bindings map[string][]binding // key -> callbacks
}

type binding struct {
	uniqueID string
	cb       KeyChangeHandler
}

func newKeyEmitter() *keyEmitter {
	return &keyEmitter{bindings: make(map[string][]binding)}
}

func (e *keyEmitter) add(key, uniqueID string, cb KeyChangeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[key] = append(e.bindings[key], binding{uniqueID: uniqueID, cb: cb})
}

func (e *keyEmitter) removeByID(uniqueID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, list := range e.bindings {
		kept := make([]binding, 0, len(list))
		for _, b := range list {
			if b.uniqueID != uniqueID {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(e.bindings, key)
		} else {
			e.bindings[key] = kept
		}
	}
}

// emit invokes the callbacks outside the registry lock so a callback
// may remove its own registration.
func (e *keyEmitter) emit(key string, change *KeyChange) {
	e.mu.Lock()
	targets := append([]binding(nil), e.bindings[key]...)
	e.mu.Unlock()

	for _, b := range targets {
		b.cb(nil, change)
	}
}
