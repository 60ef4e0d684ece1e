// Package presence tracks which users hold a live session on this process.
package presence

import (
	"sync"

	"e2e_relay/internal/model"

	"github.com/google/uuid"
)

// Session is a live transport connection. Push must not block: it queues the
// event or reports false when the session cannot take it.
type Session interface {
	ID() string
	Push(model.Event) bool
}

// Registry maps a user to at most one session. A second Connect for the same
// user supersedes the first; Disconnect only removes the session it is given,
// so a stale session closing late cannot evict its replacement.
type Registry struct {
	mu        sync.RWMutex
	byUser    map[uuid.UUID]Session
	bySession map[string]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:    make(map[uuid.UUID]Session),
		bySession: make(map[string]uuid.UUID),
	}
}

// Connect registers s for user and returns the session it replaced, if any.
// The caller owns closing the replaced session.
func (r *Registry) Connect(user uuid.UUID, s Session) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.byUser[user]
	if prev != nil {
		delete(r.bySession, prev.ID())
	}
	r.byUser[user] = s
	r.bySession[s.ID()] = user
	return prev
}

// Disconnect removes s and reports whether it was the current session of
// its user.
func (r *Registry) Disconnect(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.bySession[s.ID()]
	if !ok {
		return false
	}
	delete(r.bySession, s.ID())
	if cur := r.byUser[user]; cur != nil && cur.ID() == s.ID() {
		delete(r.byUser, user)
	}
	return true
}

func (r *Registry) Lookup(user uuid.UUID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byUser[user]
	return s, ok
}

func (r *Registry) Online(user uuid.UUID) bool {
	_, ok := r.Lookup(user)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser)
}

// Sessions returns a snapshot of the current sessions.
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		res = append(res, s)
	}
	return res
}
