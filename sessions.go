package main

import (
	"sync"
	"time"
)

const defaultSessionIdle = 30 * time.Minute

type session struct {
	pipeline *Pipeline
	lastUsed time.Time
}

// SessionRegistry hands out one pipeline per presenter session, so
// supersession and caching never cross sessions.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  func() *Pipeline
	idleTTL  time.Duration
	now      func() time.Time
}

func NewSessionRegistry(factory func() *Pipeline, idleTTL time.Duration) *SessionRegistry {
	if idleTTL <= 0 {
		idleTTL = defaultSessionIdle
	}
	return &SessionRegistry{
		sessions: map[string]*session{},
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

func (r *SessionRegistry) Pipeline(key string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Evict idle sessions lazily
	for k, s := range r.sessions {
		if k != key && now.Sub(s.lastUsed) > r.idleTTL {
			delete(r.sessions, k)
		}
	}

	s, ok := r.sessions[key]
	if !ok {
		s = &session{pipeline: r.factory()}
		r.sessions[key] = s
	}
	s.lastUsed = now

	return s.pipeline
}

func (r *SessionRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
