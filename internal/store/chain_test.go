package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lazypower/chrysalis/internal/identity"
)

func TestCreateFirstNode(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	n := seed(t, db, "u1", identity.Water, "Healer", "healer", "Listener")
	if n.Seq != 1 || n.ParentNodeID != "" {
		t.Errorf("seq=%d parent=%q", n.Seq, n.ParentNodeID)
	}
	if n.ContinuityScore != 1.0 {
		t.Errorf("first node score = %v, want 1.0", n.ContinuityScore)
	}
	if n.PhaseLabel != "Flowing (cycle 1)" || n.Cycle != 1 {
		t.Errorf("phase = %q cycle %d", n.PhaseLabel, n.Cycle)
	}
	if len(n.RoleTags) != 2 {
		t.Errorf("tags not normalized: %v", n.RoleTags)
	}

	got, err := db.Node(ctx, n.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if got == nil || got.Category != identity.Water || !got.IsCurrent() {
		t.Fatalf("Node = %+v", got)
	}
	if len(got.RoleTags) != 2 || got.RoleTags[0] != "healer" {
		t.Errorf("stored tags = %v", got.RoleTags)
	}
}

func TestCreateNodeClosesPrior(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	clock := newFakeClock()
	db.Now = clock.Now

	first := seed(t, db, "u1", identity.Water, "healer")
	clock.Advance(time.Hour)
	second := seed(t, db, "u1", identity.Fire, "warrior")

	if second.ParentNodeID != first.ID || second.Seq != 2 {
		t.Errorf("parent=%q seq=%d", second.ParentNodeID, second.Seq)
	}
	// category changed, no tag overlap
	if math.Abs(second.ContinuityScore-0.65) > 1e-9 {
		t.Errorf("score = %v, want 0.65", second.ContinuityScore)
	}

	prior, err := db.Node(ctx, first.ID)
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if prior.ActiveUntil == nil || !prior.ActiveUntil.Equal(clock.Now()) {
		t.Errorf("prior ActiveUntil = %v, want %v", prior.ActiveUntil, clock.Now())
	}

	cur, err := db.CurrentNode(ctx, "u1")
	if err != nil {
		t.Fatalf("CurrentNode: %v", err)
	}
	if cur.ID != second.ID {
		t.Errorf("current = %s, want %s", cur.ID, second.ID)
	}

	chain, err := db.Chain(ctx, "u1")
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(chain) != 2 || chain[0].ID != first.ID || chain[1].ID != second.ID {
		t.Errorf("chain order wrong: %+v", chain)
	}

	ts, err := db.Transitions(ctx, "u1")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(ts) != 1 {
		t.Fatalf("transitions = %d, want 1", len(ts))
	}
	tr := ts[0]
	if tr.NodeID != second.ID || tr.FromCategory != identity.Water || tr.ToCategory != identity.Fire {
		t.Errorf("transition = %+v", tr)
	}
	if tr.Symbol != identity.Symbol(identity.Water, identity.Fire) || tr.DiscontinuityScore != 0.7 || !tr.TranslationNeeded {
		t.Errorf("classification = %+v", tr)
	}
}

func TestCreateNodeSameCategoryNoTransition(t *testing.T) {
	db := testDB(t)
	seed(t, db, "u1", identity.Earth, "builder")
	n := seed(t, db, "u1", identity.Earth, "builder")
	if n.ContinuityScore != 1.0 {
		t.Errorf("score = %v, want 1.0", n.ContinuityScore)
	}
	ts, _ := db.Transitions(context.Background(), "u1")
	if len(ts) != 0 {
		t.Errorf("expected no transitions, got %d", len(ts))
	}
}

func TestCreateNodeExplicitScoreAndCycle(t *testing.T) {
	db := testDB(t)
	score := 0.42
	n, err := db.CreateNode(context.Background(), identity.NodeInput{
		OwnerID:         "u1",
		Category:        identity.Air,
		Cycle:           3,
		ContinuityScore: &score,
		PhaseLabel:      "Custom",
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if n.ContinuityScore != 0.42 || n.Cycle != 3 || n.PhaseLabel != "Custom" {
		t.Errorf("node = %+v", n)
	}
	// cycle carries forward when not supplied
	next := seed(t, db, "u1", identity.Ether)
	if next.Cycle != 3 {
		t.Errorf("cycle = %d, want 3", next.Cycle)
	}
}

func TestCreateNodeValidation(t *testing.T) {
	db := testDB(t)
	_, err := db.CreateNode(context.Background(), identity.NodeInput{OwnerID: "u1"})
	if !identity.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var se *identity.StorageError
	if errors.As(err, &se) {
		t.Error("validation error should not be wrapped as storage error")
	}
}

func TestCreateNodeWithEmbedding(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n, err := db.CreateNode(ctx, identity.NodeInput{
		OwnerID:          "u1",
		Category:         identity.Fire,
		EssenceSummary:   "burning bright",
		EssenceEmbedding: []float64{0.1, 0.2, 0.3},
		EmbeddingModel:   "test",
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	rec, err := db.Embedding(ctx, n.ID)
	if err != nil || rec == nil {
		t.Fatalf("Embedding = %v, %v", rec, err)
	}
	if rec.Model != "test" || rec.Dimensions != 3 {
		t.Errorf("record = %+v", rec)
	}
}

func TestOneCurrentInvariantSequential(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cats := []identity.Category{identity.Earth, identity.Water, identity.Air, identity.Fire, identity.Ether}
	for i := 0; i < 20; i++ {
		seed(t, db, "u1", cats[i%len(cats)])
		count, err := db.CountCurrent(ctx, "u1")
		if err != nil {
			t.Fatalf("CountCurrent: %v", err)
		}
		if count != 1 {
			t.Fatalf("after %d creates: %d current nodes", i+1, count)
		}
	}
	chain, _ := db.Chain(ctx, "u1")
	for i, n := range chain {
		if n.Seq != int64(i+1) {
			t.Errorf("node %d has seq %d", i, n.Seq)
		}
		if i > 0 && n.ParentNodeID != chain[i-1].ID {
			t.Errorf("node %d parent = %q, want %q", i, n.ParentNodeID, chain[i-1].ID)
		}
	}
}

func TestOneCurrentInvariantConcurrent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		for _, owner := range []string{"u1", "u2"} {
			wg.Add(1)
			go func(owner string, i int) {
				defer wg.Done()
				_, err := db.CreateNode(ctx, identity.NodeInput{
					OwnerID:  owner,
					Category: identity.Order[i%len(identity.Order)],
				})
				if err != nil {
					errs <- fmt.Errorf("%s/%d: %w", owner, i, err)
				}
			}(owner, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("CreateNode: %v", err)
	}

	for _, owner := range []string{"u1", "u2"} {
		count, err := db.CountCurrent(ctx, owner)
		if err != nil {
			t.Fatalf("CountCurrent: %v", err)
		}
		if count != 1 {
			t.Errorf("%s has %d current nodes", owner, count)
		}
		chain, _ := db.Chain(ctx, owner)
		if len(chain) != writers {
			t.Errorf("%s chain length = %d, want %d", owner, len(chain), writers)
		}
	}
}

func TestAdvanceHeadConflict(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n := seed(t, db, "u1", identity.Earth)

	// A writer that observed a stale head loses.
	stale := &chainHead{currentNodeID: n.ID, seq: 0}
	next := &identity.Node{ID: n.ID, Seq: 1}
	err := advanceHead(ctx, db, "u1", stale, next, 0)
	if !errors.Is(err, identity.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	err = advanceHead(ctx, db, "u1", nil, next, 0)
	if !errors.Is(err, identity.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate head, got %v", err)
	}
}

func TestNodeNotFound(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	n, err := db.Node(ctx, "missing")
	if err != nil || n != nil {
		t.Errorf("Node(missing) = %v, %v", n, err)
	}
	cur, err := db.CurrentNode(ctx, "nobody")
	if err != nil || cur != nil {
		t.Errorf("CurrentNode(nobody) = %v, %v", cur, err)
	}
	chain, err := db.Chain(ctx, "nobody")
	if err != nil || len(chain) != 0 {
		t.Errorf("Chain(nobody) = %v, %v", chain, err)
	}
}

func TestClosedDBReturnsStorageError(t *testing.T) {
	db := testDB(t)
	db.Close()
	_, err := db.CurrentNode(context.Background(), "u1")
	var se *identity.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if se.Op != "current node" {
		t.Errorf("Op = %q", se.Op)
	}
}
