package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/use-agent/smarteraz/models"
)

// Factory builds a new, independent transport session.
type Factory func() (Engine, error)

// Sessions hands out transports to crawls. By default each crawl gets its
// own session (fresh cookies, its own browser) that is closed when the crawl
// releases it. With shared set, every crawl uses one long-lived session
// that is closed by Close.
//
// At most maxActive sessions are checked out at once; Acquire blocks until
// a slot frees up or ctx is done.
type Sessions struct {
	factory Factory
	mode    string
	shared  bool
	slots   chan struct{}
	active  atomic.Int32

	mu         sync.Mutex
	sharedSess Engine
}

// NewSessions creates a Sessions. maxActive <= 0 means unlimited.
func NewSessions(mode string, factory Factory, shared bool, maxActive int) *Sessions {
	s := &Sessions{factory: factory, mode: mode, shared: shared}
	if maxActive > 0 {
		s.slots = make(chan struct{}, maxActive)
	}
	return s
}

// Acquire returns a transport and the func that gives it back. The release
// func must be called exactly once, on every path; it closes isolated
// sessions.
func (s *Sessions) Acquire(ctx context.Context) (Engine, func(), error) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, nil, CategorizeError(ctx.Err(), "waiting for a transport session")
		}
	}
	freeSlot := func() {
		if s.slots != nil {
			<-s.slots
		}
	}

	eng, err := s.get()
	if err != nil {
		freeSlot()
		return nil, nil, err
	}
	s.active.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.active.Add(-1)
			if !s.shared {
				if err := eng.Close(); err != nil {
					slog.Warn("closing transport session failed", "engine", eng.Name(), "error", err)
				}
			}
			freeSlot()
		})
	}
	return eng, release, nil
}

func (s *Sessions) get() (Engine, error) {
	if !s.shared {
		eng, err := s.factory()
		if err != nil {
			return nil, CategorizeError(err, "failed to create transport")
		}
		return eng, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharedSess == nil {
		eng, err := s.factory()
		if err != nil {
			return nil, CategorizeError(err, "failed to create transport")
		}
		s.sharedSess = eng
		slog.Info("shared transport session created", "engine", eng.Name())
	}
	return s.sharedSess, nil
}

// Stats returns a snapshot of session usage.
func (s *Sessions) Stats() models.TransportStats {
	return models.TransportStats{
		Mode:           s.mode,
		SharedSession:  s.shared,
		ActiveSessions: int(s.active.Load()),
		MaxSessions:    cap(s.slots),
	}
}

// Close closes the shared session, if one was created.
func (s *Sessions) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sharedSess == nil {
		return nil
	}
	err := s.sharedSess.Close()
	s.sharedSess = nil
	return err
}
