// Package subscriber keeps the set of chats that receive reminders.
package subscriber

import (
	"errors"
	"sync"
)

// ErrNotSubscribed is returned when removing a chat that is not in the set.
var ErrNotSubscribed = errors.New("chat is not subscribed")

// Registry is an in-memory set of chat ids, safe for concurrent use.
// Its zero value is ready to use.
type Registry struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: map[int64]struct{}{}}
}

// Subscribe adds id and reports whether it was not present before.
func (r *Registry) Subscribe(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[int64]struct{}{}
	}
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Unsubscribe removes id, or returns ErrNotSubscribed and leaves the set
// unchanged.
func (r *Registry) Unsubscribe(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return ErrNotSubscribed
	}
	delete(r.ids, id)
	return nil
}

func (r *Registry) Contains(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Snapshot returns an unordered copy of the current set.
func (r *Registry) Snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	return out
}
