package storage

import (
	"fmt"
	"sync"
)

// TokenCategory selects one of the three bounded token namespaces.
type TokenCategory uint8

const (
	TokenLabel TokenCategory = iota + 1
	TokenPropertyKey
	TokenRelationshipType
)

func (c TokenCategory) String() string {
	switch c {
	case TokenLabel:
		return "label"
	case TokenPropertyKey:
		return "property key"
	case TokenRelationshipType:
		return "relationship type"
	default:
		return "unknown"
	}
}

// tokenRegistry interns names of one category into dense ids. Capacity is
// fixed; ids are assigned monotonically and never reclaimed. Allocation is
// the only mutation and runs under the write lock, so two concurrent
// first-uses of the same name always get the same id.
type tokenRegistry struct {
	mu       sync.RWMutex
	category TokenCategory
	capacity int
	names    []string
	ids      map[string]TokenID
}

func newTokenRegistry(category TokenCategory, capacity int) *tokenRegistry {
	return &tokenRegistry{
		category: category,
		capacity: capacity,
		ids:      make(map[string]TokenID),
	}
}

// resolve returns the id for name, allocating it on first use. The second
// return value reports whether a new id was allocated. Lookups of already
// interned names keep working after the space is exhausted.
func (r *tokenRegistry) resolve(name string) (TokenID, bool, error) {
	r.mu.RLock()
	id, ok := r.ids[name]
	r.mu.RUnlock()
	if ok {
		return id, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[name]; ok {
		return id, false, nil
	}
	if len(r.names) >= r.capacity {
		return 0, false, fmt.Errorf("%s %q: capacity %d reached: %w",
			r.category, name, r.capacity, ErrTokenSpaceExhausted)
	}
	id = TokenID(len(r.names))
	r.names = append(r.names, name)
	r.ids[name] = id
	return id, true, nil
}

// lookup returns the id for name without allocating.
func (r *tokenRegistry) lookup(name string) (TokenID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[name]
	return id, ok
}

// name returns the interned name for id.
func (r *tokenRegistry) name(id TokenID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.names) {
		return "", fmt.Errorf("%s token %d is not allocated", r.category, id)
	}
	return r.names[id], nil
}

// restore re-registers a persisted token on engine open. Tokens are
// replayed in id order, so each restored id must extend the dense range.
func (r *tokenRegistry) restore(id TokenID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) != len(r.names) {
		return fmt.Errorf("%s token %d (%q) restored out of order, expected %d",
			r.category, id, name, len(r.names))
	}
	if int(id) >= r.capacity {
		return fmt.Errorf("%s token %d (%q) exceeds capacity %d",
			r.category, id, name, r.capacity)
	}
	r.names = append(r.names, name)
	r.ids[name] = id
	return nil
}

func (r *tokenRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
