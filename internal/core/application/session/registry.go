package session

import (
	"context"
	"sort"
	"sync"

	"merchantdispatch/internal/pkg/errs"
)

// Opener creates sessions; *Factory implements it.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (*Session, error)
}

// Registry keeps the open sessions by id.
type Registry struct {
	opener Opener

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(opener Opener) *Registry {
	return &Registry{opener: opener, sessions: make(map[string]*Session)}
}

// Open creates and registers a session.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	s, err := r.opener.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the session or an ObjectNotFoundError.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errs.NewObjectNotFoundError("session", id)
	}
	return s, nil
}

// Close tears down and forgets the session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return errs.NewObjectNotFoundError("session", id)
	}
	s.Close()
	return nil
}

// IDs lists the open sessions, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll tears down every session, as on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
