package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/lazypower/chrysalis/internal/identity"
)

func TestCalculateContinuity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	empty, err := db.CalculateContinuity(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateContinuity: %v", err)
	}
	if empty.NodeCount != 0 || empty.ChainCoherence != 0 {
		t.Errorf("empty = %+v", empty)
	}

	first, _ := db.CreateNode(ctx, identity.NodeInput{
		OwnerID: "u1", Category: identity.Water, EssenceEmbedding: []float64{1, 0},
	})
	second, _ := db.CreateNode(ctx, identity.NodeInput{
		OwnerID: "u1", Category: identity.Fire, EssenceEmbedding: []float64{1, 1},
	})
	if _, err := db.RecordReinterpretation(ctx, identity.ReinterpretationInput{
		OwnerID: "u1", InterpretingNodeID: second.ID, SourceNodeID: first.ID,
		InterpretationText: "then and now", IntegrationDepth: 0.5,
	}); err != nil {
		t.Fatal(err)
	}

	m, err := db.CalculateContinuity(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateContinuity: %v", err)
	}
	if m.NodeCount != 2 || m.TransitionCount != 1 || m.ReinterpretationCount != 1 {
		t.Errorf("counts = %+v", m)
	}
	// avg (1.0 + 0.65)/2 = 0.825, bonus 1/2*0.1 = 0.05
	if math.Abs(m.ChainCoherence-0.875) > 1e-9 {
		t.Errorf("coherence = %v, want 0.875", m.ChainCoherence)
	}
	if m.EssenceSimilarity == nil || math.Abs(*m.EssenceSimilarity-1/math.Sqrt2) > 1e-9 {
		t.Errorf("essence similarity = %v", m.EssenceSimilarity)
	}
}

func TestBuildContext(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	cc, err := db.BuildContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if cc.CurrentNode != nil || len(cc.PendingMessages) != 0 || cc.PendingMessages == nil {
		t.Errorf("empty context = %+v", cc)
	}
	if !strings.Contains(cc.SummaryText, "No identity node") {
		t.Errorf("summary = %q", cc.SummaryText)
	}

	n := seed(t, db, "u1", identity.Earth)
	send(t, db, n, "one")
	send(t, db, n, "two")
	seed(t, db, "u1", identity.Air)

	cc, err = db.BuildContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if cc.CurrentNode == nil || cc.CurrentNode.Category != identity.Air {
		t.Errorf("current = %+v", cc.CurrentNode)
	}
	if len(cc.PendingMessages) != 2 {
		t.Errorf("pending = %d", len(cc.PendingMessages))
	}
	if cc.UnresolvedTransition == nil || cc.UnresolvedTransition.ToCategory != identity.Air {
		t.Errorf("transition = %+v", cc.UnresolvedTransition)
	}
	if cc.ChainCoherence != cc.Metrics.ChainCoherence || cc.ChainCoherence == 0 {
		t.Errorf("coherence = %v", cc.ChainCoherence)
	}
	for _, want := range []string{"Unfolding (cycle 1)", "2 messages"} {
		if !strings.Contains(cc.SummaryText, want) {
			t.Errorf("summary %q missing %q", cc.SummaryText, want)
		}
	}
}

func TestBuildContextClosedDB(t *testing.T) {
	db := testDB(t)
	db.Close()
	if _, err := db.BuildContext(context.Background(), "u1"); err == nil {
		t.Error("expected error from closed database")
	}
}

func TestBuildContextCanceled(t *testing.T) {
	db := testDB(t)
	seed(t, db, "u1", identity.Earth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.BuildContext(ctx, "u1")
	var se *identity.StorageError
	if !errors.As(err, &se) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want storage error wrapping context.Canceled", err)
	}
}

func TestBuildContextEssenceSimilarity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := seed(t, db, "u1", identity.Earth)
	second := seed(t, db, "u1", identity.Air)
	if err := db.SaveEmbedding(ctx, first.ID, []float64{1, 0}, "test"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveEmbedding(ctx, second.ID, []float64{1, 0}, "test"); err != nil {
		t.Fatal(err)
	}

	cc, err := db.BuildContext(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if sim := cc.Metrics.EssenceSimilarity; sim == nil || math.Abs(*sim-1) > 1e-9 {
		t.Errorf("essence similarity = %v, want 1", sim)
	}
}
