package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"docscan/internal/session"
)

type entry struct {
	controller *session.Controller
	touched    time.Time
}

// store holds the live scan sessions keyed by id.
type store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	ttl      time.Duration
	now      func() time.Time
}

func newStore(ttl time.Duration) *store {
	return &store{
		sessions: make(map[uuid.UUID]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// add registers c and evicts sessions idle for longer than the ttl.
func (s *store) add(id uuid.UUID, c *session.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.ttl > 0 {
		for k, e := range s.sessions {
			if now.Sub(e.touched) > s.ttl {
				e.controller.Reset()
				delete(s.sessions, k)
			}
		}
	}
	s.sessions[id] = &entry{controller: c, touched: now}
}

func (s *store) get(id uuid.UUID) (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = s.now()
	return e.controller, true
}

func (s *store) remove(id uuid.UUID) (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	delete(s.sessions, id)
	return e.controller, true
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
