// Package session holds the identity a data service acts on behalf of.
package session

import (
	"sync"

	"campusevents/internal/model"
)

// User is the signed-in identity.
type User struct {
	ID         string
	Role       model.Role
	Name       string
	RollNumber string
	Email      string
}

// IsAdmin reports whether the user may perform admin operations.
func (u User) IsAdmin() bool {
	return u.Role == model.RoleAdmin
}

// UserFromProfile builds the session identity for a stored profile.
func UserFromProfile(p model.Profile) User {
	return User{ID: p.ID, Role: p.Role, Name: p.Name, RollNumber: p.RollNumber, Email: p.Email}
}

// Session tracks the current user and notifies listeners on login/logout.
type Session struct {
	mu        sync.RWMutex
	user      *User
	nextID    int
	listeners map[int]func(*User)
}

// New returns a signed-out session.
func New() *Session {
	return &Session{listeners: map[int]func(*User){}}
}

// Current returns the signed-in user, or nil.
func (s *Session) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Login replaces the current user and notifies listeners.
func (s *Session) Login(u User) {
	s.mu.Lock()
	s.user = &u
	listeners := s.snapshot()
	s.mu.Unlock()
	for _, fn := range listeners {
		cp := u
		fn(&cp)
	}
}

// Logout clears the current user and notifies listeners with nil.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return
	}
	s.user = nil
	listeners := s.snapshot()
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(nil)
	}
}

// OnChange registers fn to run after every login or logout. The returned
// func removes it.
func (s *Session) OnChange(fn func(*User)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// snapshot must be called with mu held.
func (s *Session) snapshot() []func(*User) {
	out := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
