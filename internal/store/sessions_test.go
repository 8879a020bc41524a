package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/chrysalis/internal/identity"
)

func TestTouchSession(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	clock := newFakeClock()
	db.Now = clock.Now

	s, err := db.TouchSession(ctx, "u1", "sess-001")
	if err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	if s.TurnCount != 1 || s.Duration() != 0 || s.OwnerID != "u1" {
		t.Errorf("first touch = %+v", s)
	}

	clock.Advance(20 * time.Minute)
	s, err = db.TouchSession(ctx, "u1", "sess-001")
	if err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	if s.TurnCount != 2 || s.Duration() != 20*time.Minute {
		t.Errorf("second touch = %+v (duration %v)", s, s.Duration())
	}

	if _, err := db.TouchSession(ctx, "u1", ""); !identity.IsValidation(err) {
		t.Errorf("empty session id = %v", err)
	}
}

func TestIncrementBreakthroughs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, err := db.TouchSession(ctx, "u1", "s1"); err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 3; want++ {
		got, err := db.IncrementBreakthroughs(ctx, "s1")
		if err != nil {
			t.Fatalf("IncrementBreakthroughs: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}
	s, _ := db.Session(ctx, "s1")
	if s.BreakthroughCount != 3 {
		t.Errorf("stored count = %d", s.BreakthroughCount)
	}

	if _, err := db.IncrementBreakthroughs(ctx, "nope"); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("unknown session = %v", err)
	}
	missing, err := db.Session(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Session(nope) = %v, %v", missing, err)
	}
}
