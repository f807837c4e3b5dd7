package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/smarteraz/models"
)

func countingFactory(made *[]*stubEngine) Factory {
	return func() (Engine, error) {
		eng := &stubEngine{name: "http"}
		*made = append(*made, eng)
		return eng, nil
	}
}

func TestSessions_IsolatedByDefault(t *testing.T) {
	var made []*stubEngine
	s := NewSessions("http", countingFactory(&made), false, 0)

	a, releaseA, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, releaseB, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if a == b {
		t.Fatal("isolated sessions must not share an engine")
	}
	if got := s.Stats().ActiveSessions; got != 2 {
		t.Errorf("ActiveSessions = %d, want 2", got)
	}

	releaseA()
	releaseA()
	releaseB()

	for i, eng := range made {
		if eng.closed != 1 {
			t.Errorf("engine %d closed %d times, want 1", i, eng.closed)
		}
	}
	if got := s.Stats().ActiveSessions; got != 0 {
		t.Errorf("ActiveSessions = %d, want 0", got)
	}
}

func TestSessions_Shared(t *testing.T) {
	var made []*stubEngine
	s := NewSessions("http", countingFactory(&made), true, 0)

	a, releaseA, _ := s.Acquire(context.Background())
	b, releaseB, _ := s.Acquire(context.Background())
	releaseA()
	releaseB()

	if a != b || len(made) != 1 {
		t.Fatalf("shared sessions created %d engines", len(made))
	}
	if made[0].closed != 0 {
		t.Error("release must not close a shared session")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if made[0].closed != 1 {
		t.Errorf("shared session closed %d times, want 1", made[0].closed)
	}
}

func TestSessions_MaxActiveBlocks(t *testing.T) {
	var made []*stubEngine
	s := NewSessions("http", countingFactory(&made), false, 1)

	_, release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := s.Acquire(ctx); !models.IsCode(err, models.ErrCodeTimeout) {
		t.Fatalf("second acquire err = %v, want %s", err, models.ErrCodeTimeout)
	}

	release()
	_, release2, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestSessions_FactoryError(t *testing.T) {
	boom := errors.New("chrome not found")
	s := NewSessions("browser", func() (Engine, error) { return nil, boom }, false, 1)

	_, _, err := s.Acquire(context.Background())
	if !errors.Is(err, boom) || !models.IsCode(err, models.ErrCodeTransport) {
		t.Fatalf("err = %v, want transport error wrapping %v", err, boom)
	}
	// The slot must have been given back.
	if got := len(s.slots); got != 0 {
		t.Errorf("slots in use = %d, want 0", got)
	}
}
