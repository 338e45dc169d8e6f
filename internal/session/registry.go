package session

import (
	"fmt"
	"sync"

	"github.com/victornm/chotrivia/internal/errors"
)

var (
	ErrAlreadyActive = errors.New(errors.CodeAlreadyExists,
		errors.WithMessagef("session: a game is already active"))
	ErrNotFound = errors.New(errors.CodeNotFound,
		errors.WithMessagef("session: no active game"))
)

// Registry holds the single active session of every server.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
	}
}

// TryCreate stores the session built by factory unless the server already has one.
// The server's slot is reserved while factory runs, so concurrent calls for the same
// server fail with ErrAlreadyActive while other servers are not blocked.
func (r *Registry) TryCreate(serverID string, factory func() (*Session, error)) (*Session, error) {
	if err := r.reserve(serverID); err != nil {
		return nil, err
	}

	var s *Session
	defer func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.pending, serverID)
		if s != nil {
			r.sessions[serverID] = s
		}
	}()

	s, err := factory()
	if err != nil {
		s = nil
		return nil, err
	}

	return s, nil
}

func (r *Registry) reserve(serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[serverID]; ok {
		return fmt.Errorf("server %s: %w", serverID, ErrAlreadyActive)
	}
	if _, ok := r.pending[serverID]; ok {
		return fmt.Errorf("server %s: %w", serverID, ErrAlreadyActive)
	}

	r.pending[serverID] = struct{}{}
	return nil
}

func (r *Registry) Get(serverID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[serverID]
	if !ok {
		return nil, fmt.Errorf("server %s: %w", serverID, ErrNotFound)
	}

	return s, nil
}

// Remove deletes the server's session, if any.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, serverID)
}

// RemoveSession deletes the server's session only if it is still the given one.
func (r *Registry) RemoveSession(serverID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[serverID]
	if !ok || s.ID() != sessionID {
		return false
	}

	delete(r.sessions, serverID)
	return true
}

// IsSameSession reports whether sessionID is still the active session of the server.
func (r *Registry) IsSameSession(serverID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[serverID]
	return ok && s.ID() == sessionID
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
