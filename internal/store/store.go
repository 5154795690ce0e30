package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"yuzu/receptionist/internal/types"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrInvalidID = errors.New("invalid call sid")
)

// Store owns every call session. Sessions cross the boundary by value
// (cloned), so a caller mutating its copy never touches stored state until
// Save.
type Store interface {
	// GetOrCreate returns the session for callSid, creating it in normal
	// mode on first contact. created reports whether it was new.
	GetOrCreate(ctx context.Context, callSid string) (sess *types.Session, created bool, err error)
	Get(ctx context.Context, callSid string) (*types.Session, error)
	Save(ctx context.Context, sess *types.Session) error
	// Delete evicts a session, typically when the call ends.
	Delete(ctx context.Context, callSid string) error
	// ExpireIdle evicts sessions whose last activity is older than idle and
	// returns how many were removed.
	ExpireIdle(ctx context.Context, idle time.Duration) (int, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	now      func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, callSid string) (*types.Session, bool, error) {
	if callSid == "" {
		return nil, false, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[callSid]; ok {
		return sess.Clone(), false, nil
	}
	sess := types.NewSession(callSid, s.now().UTC())
	s.sessions[callSid] = sess
	gaugeSessions.Set(float64(len(s.sessions)))
	metricSessionsCreated.Inc()
	return sess.Clone(), true, nil
}

func (s *MemoryStore) Get(_ context.Context, callSid string) (*types.Session, error) {
	if callSid == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callSid]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sess *types.Session) error {
	if sess == nil || sess.CallSid == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.CallSid] = sess.Clone()
	gaugeSessions.Set(float64(len(s.sessions)))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, callSid string) error {
	if callSid == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[callSid]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, callSid)
	gaugeSessions.Set(float64(len(s.sessions)))
	metricSessionsEvicted.WithLabelValues("hangup").Inc()
	return nil
}

func (s *MemoryStore) ExpireIdle(_ context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		gaugeSessions.Set(float64(len(s.sessions)))
		metricSessionsEvicted.WithLabelValues("idle").Add(float64(n))
	}
	return n, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
