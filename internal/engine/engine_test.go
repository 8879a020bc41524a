package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/lazypower/chrysalis/internal/detect"
	"github.com/lazypower/chrysalis/internal/identity"
	"github.com/lazypower/chrysalis/internal/metrics"
	"github.com/lazypower/chrysalis/internal/ritual"
	"github.com/lazypower/chrysalis/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zaptest.NewLogger(t), metrics.NewCollector("test"))
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func withClock(e *Engine) *clock {
	c := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e.DB.Now = c.Now
	return c
}

func seed(t *testing.T, e *Engine, owner string, cat identity.Category, roles ...string) *identity.Node {
	t.Helper()
	n, err := e.SeedNode(context.Background(), identity.NodeInput{
		OwnerID:        owner,
		Category:       cat,
		RoleTags:       roles,
		DominantMoods:  []string{"steady"},
		EssenceSummary: "building something that lasts",
	})
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

func TestLoadContextEmptyChain(t *testing.T) {
	e := testEngine(t)
	res, err := e.LoadContext(context.Background(), ContextRequest{OwnerID: "ana"})
	require.NoError(t, err)

	assert.Equal(t, "No identity node has been recorded yet. No messages are waiting. Chain coherence is 0%.", res.ContextSummary)
	assert.Contains(t, res.PromptInjectionText, "<identity>")
	assert.Nil(t, res.PendingReflection)
	assert.Empty(t, res.SurfacedMessageID)
}

func TestLoadContextRequiresOwner(t *testing.T) {
	e := testEngine(t)
	_, err := e.LoadContext(context.Background(), ContextRequest{})
	assert.True(t, identity.IsValidation(err))
}

func TestLoadContextSurfacesByTheme(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Water)
	msg, err := e.RecordFutureMessage(ctx, "ana", "It gets lighter.", MessageMeta{RelevanceTags: []string{"Grief"}})
	require.NoError(t, err)

	res, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", Themes: []string{"grief"}})
	require.NoError(t, err)

	require.NotNil(t, res.PendingReflection)
	assert.Equal(t, msg.ID, res.SurfacedMessageID)
	assert.NotEmpty(t, res.PendingReflection.Questions)
	assert.LessOrEqual(t, len(res.PendingReflection.Questions), 3)
	assert.Contains(t, res.PromptInjectionText, "It gets lighter.")
	assert.Empty(t, res.PendingReflection.Dialogue, "message from the current node needs no dialogue")
	assert.Contains(t, res.ContextSummary, "1 message from a past self is waiting")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.MessagesSurfaced))
}

func TestLoadContextOpensDialogueAcrossNodes(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	_, err := e.RecordFutureMessage(ctx, "ana", "Keep building.", MessageMeta{RelevanceTags: []string{"work"}})
	require.NoError(t, err)
	_, err = e.ConfirmTransition(ctx, "ana", &detect.Signal{Type: identity.SignalEvolution, SuggestedCategory: identity.Fire}, "")
	require.NoError(t, err)

	res, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", Themes: []string{"work"}})
	require.NoError(t, err)
	require.NotNil(t, res.PendingReflection)

	dialogue := res.PendingReflection.Dialogue
	assert.Contains(t, dialogue, "Rooting (cycle 1)")
	assert.Contains(t, dialogue, "Forge")
	assert.Contains(t, dialogue, "Kindling (cycle 1)")
	assert.Contains(t, res.PromptInjectionText, dialogue)
}

func TestLoadContextSurfacesOnReflectiveCue(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	_, err := e.RecordFutureMessage(ctx, "ana", "older", MessageMeta{RelevanceTags: []string{"work"}})
	require.NoError(t, err)
	newer, err := e.RecordFutureMessage(ctx, "ana", "newer", MessageMeta{RelevanceTags: []string{"family"}})
	require.NoError(t, err)

	res, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", Utterance: "I remember how scared I was"})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, res.SurfacedMessageID)
}

func TestLoadContextWithoutCueKeepsMessagesPending(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	_, err := e.RecordFutureMessage(ctx, "ana", "hold on", MessageMeta{RelevanceTags: []string{"grief"}})
	require.NoError(t, err)

	res, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", Themes: []string{"cooking"}, Utterance: "what's for dinner"})
	require.NoError(t, err)
	assert.Nil(t, res.PendingReflection)
	assert.Contains(t, res.ContextSummary, "Rooting (cycle 1)")
}

func TestLoadContextDegradesOnStorageError(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.DB.Close())

	res, err := e.LoadContext(context.Background(), ContextRequest{OwnerID: "ana"})
	require.NoError(t, err)
	assert.Equal(t, &ContextResult{}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.Degraded.WithLabelValues("load_context")))
}

func TestAfterResponseNoSignal(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{})
	require.NoError(t, err)
	assert.False(t, res.BoundaryDetected)
	assert.Nil(t, res.Signal)

	events, err := e.DB.BoundaryEvents(ctx, "ana", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAfterResponseMicroAutoConfirms(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := seed(t, e, "ana", identity.Earth, "builder")

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		Emotional: &detect.EmotionalShift{From: "steady", To: "calm", Intensity: 0.9},
		Input:     "I finally slept well",
	})
	require.NoError(t, err)

	require.True(t, res.BoundaryDetected)
	assert.Equal(t, identity.SignalMicro, res.Signal.Type)
	assert.Equal(t, 0.45, res.Signal.Strength)
	assert.Empty(t, res.ConfirmationPromptText)
	assert.Empty(t, res.MomentMessageID)

	require.NotNil(t, res.AutoConfirmedNode)
	assert.Equal(t, first.ID, res.AutoConfirmedNode.ParentNodeID)
	assert.Equal(t, identity.Earth, res.AutoConfirmedNode.Category)
	assert.Equal(t, []string{"calm"}, res.AutoConfirmedNode.DominantMoods)
	assert.Equal(t, []string{"builder"}, res.AutoConfirmedNode.RoleTags)

	events, err := e.DB.BoundaryEvents(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, identity.BoundaryMicro, events[0].Kind)
	assert.Equal(t, first.ID, events[0].FromNodeID)
	assert.Equal(t, "I finally slept well", events[0].InputExcerpt)
	assert.Equal(t, res.AutoConfirmedNode.ID, events[0].ResultingNodeID)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.Boundaries.WithLabelValues("micro")))
}

func TestAfterResponseRespectsAutoConfirmOption(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	opts := e.Options()
	opts.AutoConfirm = false
	e.SetOptions(opts)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		Emotional: &detect.EmotionalShift{To: "calm", Intensity: 0.9},
	})
	require.NoError(t, err)
	assert.True(t, res.BoundaryDetected)
	assert.Nil(t, res.AutoConfirmedNode)

	chain, err := e.Chain(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}

func TestAfterResponseUsesHotSwappedThresholds(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "ana", identity.Earth)
	opts := e.Options()
	opts.Detect.MicroIntensity = 0.95
	e.SetOptions(opts)

	res, err := e.AfterResponse(context.Background(), "ana", TurnSignals{
		Emotional: &detect.EmotionalShift{Intensity: 0.9},
	})
	require.NoError(t, err)
	assert.False(t, res.BoundaryDetected)
}

func TestAfterResponseTransformation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth, "builder")

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		Category:          &detect.CategoryShift{From: identity.Earth, To: identity.Fire},
		Roles:             &detect.RoleShift{To: []string{"artist"}},
		BreakthroughCount: ptr(4),
	})
	require.NoError(t, err)

	require.True(t, res.BoundaryDetected)
	sig := res.Signal
	assert.Equal(t, identity.SignalTransformation, sig.Type)
	assert.Equal(t, 0.95, sig.Strength)
	assert.True(t, sig.RequiresConfirmation)
	assert.Equal(t, sig.ConfirmationPrompt, res.ConfirmationPromptText)
	assert.Equal(t, ritual.BridgingRitual(identity.Earth, identity.Fire), res.TransitionRitualText)
	assert.Nil(t, res.AutoConfirmedNode)

	msg, err := e.DB.Message(ctx, res.MomentMessageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, identity.MessageSymbolicState, msg.Type)
	assert.Equal(t, "The Forge", msg.Title)
	assert.Contains(t, msg.RelevanceTags, "transformation")

	events, err := e.DB.BoundaryEvents(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, identity.BoundaryMetamorphosis, events[0].Kind)
	assert.Equal(t, identity.Fire, events[0].CategoryTo)

	var payload detect.Signal
	require.NoError(t, json.Unmarshal(events[0].SignalPayload, &payload))
	assert.Equal(t, identity.SignalTransformation, payload.Type)

	node, err := e.ConfirmTransition(ctx, "ana", sig, "learning to burn bright")
	require.NoError(t, err)
	assert.Equal(t, identity.Fire, node.Category)
	assert.Equal(t, "Kindling (cycle 1)", node.PhaseLabel)
	assert.Equal(t, []string{"artist"}, node.RoleTags)

	tr, err := e.DB.LatestUnresolvedTransition(ctx, "ana")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "Forge", tr.Symbol)

	require.NoError(t, e.CompleteRitual(ctx, "ana", tr.ID))
	assert.ErrorIs(t, e.CompleteRitual(ctx, "ana", tr.ID), identity.ErrAlreadyCompleted)
}

func TestConfirmEvent(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := seed(t, e, "ana", identity.Earth, "builder")
	seed(t, e, "bob", identity.Earth)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		Category:          &detect.CategoryShift{From: identity.Earth, To: identity.Fire},
		Roles:             &detect.RoleShift{To: []string{"artist"}},
		BreakthroughCount: ptr(4),
	})
	require.NoError(t, err)
	require.True(t, res.Signal.RequiresConfirmation)
	require.NotEmpty(t, res.EventID)

	_, err = e.ConfirmEvent(ctx, "bob", res.EventID, "")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	node, err := e.ConfirmEvent(ctx, "ana", res.EventID, "learning to burn bright")
	require.NoError(t, err)
	assert.Equal(t, identity.Fire, node.Category)
	assert.Equal(t, first.ID, node.ParentNodeID)
	assert.Equal(t, []string{"artist"}, node.RoleTags)
	assert.Equal(t, "learning to burn bright", node.EssenceSummary)

	ev, err := e.DB.BoundaryEvent(ctx, "ana", res.EventID)
	require.NoError(t, err)
	assert.Equal(t, node.ID, ev.ResultingNodeID)

	_, err = e.ConfirmEvent(ctx, "ana", res.EventID, "")
	assert.ErrorIs(t, err, identity.ErrAlreadyConfirmed)

	chain, err := e.Chain(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestConfirmEventRejectsStaleBoundary(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		Category:          &detect.CategoryShift{From: identity.Earth, To: identity.Water},
		BreakthroughCount: ptr(3),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.EventID)

	_, err = e.ConfirmTransition(ctx, "ana", &detect.Signal{Type: identity.SignalEvolution, SuggestedCategory: identity.Air}, "")
	require.NoError(t, err)

	_, err = e.ConfirmEvent(ctx, "ana", res.EventID, "")
	assert.ErrorIs(t, err, identity.ErrConflict)

	_, err = e.ConfirmEvent(ctx, "ana", "", "")
	assert.True(t, identity.IsValidation(err))
}

func TestAfterResponseDerivesSessionSignals(t *testing.T) {
	e := testEngine(t)
	clk := withClock(e)
	ctx := context.Background()
	seed(t, e, "ana", identity.Air)

	_, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", SessionID: "s1"})
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)
	_, err = e.LoadContext(ctx, ContextRequest{OwnerID: "ana", SessionID: "s1"})
	require.NoError(t, err)

	first, err := e.AfterResponse(ctx, "ana", TurnSignals{SessionID: "s1", Breakthrough: true})
	require.NoError(t, err)
	require.NotNil(t, first.Signal)
	assert.Equal(t, identity.SignalBreakthrough, first.Signal.Type)
	assert.Equal(t, 0.7, first.Signal.Strength)
	assert.Equal(t, []string{"long_session"}, first.Signal.Indicators)
	assert.NotEmpty(t, first.ConfirmationPromptText)

	second, err := e.AfterResponse(ctx, "ana", TurnSignals{SessionID: "s1", Breakthrough: true})
	require.NoError(t, err)
	assert.Equal(t, 0.8, second.Signal.Strength)

	msg, err := e.DB.Message(ctx, second.MomentMessageID)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, identity.MessageWisdomSeed, msg.Type)

	sess, err := e.DB.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.BreakthroughCount)
}

func TestAfterResponseShortBreakthroughAutoConfirms(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Air)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{Breakthrough: true, SessionSeconds: ptr(60.0)})
	require.NoError(t, err)
	require.NotNil(t, res.Signal)
	assert.Equal(t, 0.6, res.Signal.Strength)
	assert.False(t, res.Signal.RequiresConfirmation)
	assert.NotNil(t, res.AutoConfirmedNode)
	assert.NotEmpty(t, res.MomentMessageID)
}

func TestAfterResponseDeliversSurfacedMessage(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := seed(t, e, "ana", identity.Water)
	msg, err := e.RecordFutureMessage(ctx, "ana", "Trust the current.", MessageMeta{RelevanceTags: []string{"change"}})
	require.NoError(t, err)

	loaded, err := e.LoadContext(ctx, ContextRequest{OwnerID: "ana", Themes: []string{"change"}, SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, msg.ID, loaded.SurfacedMessageID)

	res, err := e.AfterResponse(ctx, "ana", TurnSignals{
		SessionID:         "s1",
		SurfacedMessageID: loaded.SurfacedMessageID,
		Emotional:         &detect.EmotionalShift{To: "moved", Intensity: 0.8},
		Interpretation:    "I did trust it.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.EventID)

	got, err := e.DB.Message(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, got.Delivered())
	assert.Equal(t, "I did trust it.", got.ReceivedInterpretation)
	assert.Contains(t, string(got.DeliveryContext), res.EventID)

	reinterps, err := e.DB.Reinterpretations(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, reinterps, 1)
	assert.Equal(t, StubIntegrationDepth, reinterps[0].IntegrationDepth)
	assert.Equal(t, res.EventID, reinterps[0].TriggerEventID)
	assert.Equal(t, first.ID, reinterps[0].InterpretingNodeID)
	assert.Equal(t, first.ID, reinterps[0].SourceNodeID)

	// A repeated delivery is ignored.
	_, err = e.AfterResponse(ctx, "ana", TurnSignals{SurfacedMessageID: msg.ID})
	require.NoError(t, err)
	reinterps, err = e.DB.Reinterpretations(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, reinterps, 1)
}

func TestAfterResponseIgnoresOtherOwnersMessage(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Water)
	seed(t, e, "bob", identity.Fire)
	bobMsg, err := e.RecordFutureMessage(ctx, "bob", "Only for bob.", MessageMeta{})
	require.NoError(t, err)

	_, err = e.AfterResponse(ctx, "ana", TurnSignals{SurfacedMessageID: bobMsg.ID, Interpretation: "ana read it"})
	require.NoError(t, err)

	got, err := e.DB.Message(ctx, bobMsg.ID)
	require.NoError(t, err)
	assert.False(t, got.Delivered())
	assert.Empty(t, got.ReceivedInterpretation)

	pending, err := e.PendingMessages(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	reinterps, err := e.DB.Reinterpretations(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, reinterps)
}

func TestOwnerScopedReferences(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Water)
	bobNode := seed(t, e, "bob", identity.Fire)
	bobMsg, err := e.RecordFutureMessage(ctx, "bob", "Only for bob.", MessageMeta{})
	require.NoError(t, err)

	_, err = e.Reinterpret(ctx, "ana", ReinterpretRequest{SourceMessageID: bobMsg.ID, Text: "mine now?", IntegrationDepth: 0.5})
	assert.ErrorIs(t, err, identity.ErrNotFound)

	_, err = e.Reinterpret(ctx, "ana", ReinterpretRequest{SourceNodeID: bobNode.ID, Text: "mine now?", IntegrationDepth: 0.5})
	assert.True(t, identity.IsValidation(err), "foreign source node: %v", err)

	_, err = e.RecordFutureMessage(ctx, "ana", "to bob's self", MessageMeta{ToNodeID: bobNode.ID})
	var ve *identity.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "to_node_id", ve.Field)

	_, err = e.RecordFutureMessage(ctx, "ana", "to nobody", MessageMeta{ToNodeID: "ghost"})
	assert.True(t, identity.IsValidation(err), "unknown recipient: %v", err)
}

func TestAfterResponseDegradesOnStorageError(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.DB.Close())

	res, err := e.AfterResponse(context.Background(), "ana", TurnSignals{
		Emotional: &detect.EmotionalShift{Intensity: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, &TurnResult{}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.Degraded.WithLabelValues("after_response")))
}

func TestConfirmTransitionNeedsCategory(t *testing.T) {
	e := testEngine(t)
	_, err := e.ConfirmTransition(context.Background(), "ana", &detect.Signal{Type: identity.SignalMicro}, "")
	assert.True(t, identity.IsValidation(err))

	_, err = e.ConfirmTransition(context.Background(), "ana", nil, "")
	assert.True(t, identity.IsValidation(err))
}

func TestConfirmTransitionEmbedsEssence(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	e.SetEmbedder(&fakeEmbedder{})

	node, err := e.ConfirmTransition(ctx, "ana", &detect.Signal{
		Type:              identity.SignalEvolution,
		SuggestedCategory: identity.Water,
	}, "the sea and the stone")
	require.NoError(t, err)
	assert.Equal(t, "Flowing (cycle 1)", node.PhaseLabel)

	rec, err := e.DB.Embedding(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "fake", rec.Model)
	assert.Equal(t, []float64{1, 0, 1}, rec.Embedding)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.Metrics.NodesCreated))
}

func TestConfirmTransitionSurvivesEmbedFailure(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	seed(t, e, "ana", identity.Earth)
	e.SetEmbedder(&fakeEmbedder{err: errors.New("ollama down")})

	node, err := e.ConfirmTransition(ctx, "ana", &detect.Signal{Type: identity.SignalEvolution}, "still here")
	require.NoError(t, err)

	rec, err := e.DB.Embedding(ctx, node.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSeedNodeRejectsExistingChain(t *testing.T) {
	e := testEngine(t)
	seed(t, e, "ana", identity.Earth)

	_, err := e.SeedNode(context.Background(), identity.NodeInput{OwnerID: "ana", Category: identity.Fire})
	assert.ErrorIs(t, err, identity.ErrConflict)
	var se *identity.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestRecordFutureMessage(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	_, err := e.RecordFutureMessage(ctx, "ana", "hello", MessageMeta{})
	assert.True(t, identity.IsValidation(err), "no current node")

	n := seed(t, e, "ana", identity.Ether)
	msg, err := e.RecordFutureMessage(ctx, "ana", "hello", MessageMeta{
		Title:         "For later",
		RelevanceTags: []string{"New Job", "new job"},
	})
	require.NoError(t, err)
	assert.Equal(t, identity.MessageLetter, msg.Type)
	assert.Equal(t, n.ID, msg.FromNodeID)
	assert.Equal(t, []string{"new-job"}, msg.RelevanceTags)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics.MessagesRecorded.WithLabelValues("letter")))

	_, err = e.RecordFutureMessage(ctx, "ana", "", MessageMeta{})
	assert.True(t, identity.IsValidation(err), "empty content")
}

func TestReinterpretResolvesSourceFromMessage(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	first := seed(t, e, "ana", identity.Earth)
	msg, err := e.RecordFutureMessage(ctx, "ana", "stay", MessageMeta{})
	require.NoError(t, err)
	second, err := e.ConfirmTransition(ctx, "ana", &detect.Signal{SuggestedCategory: identity.Air}, "")
	require.NoError(t, err)

	r, err := e.Reinterpret(ctx, "ana", ReinterpretRequest{
		SourceMessageID:  msg.ID,
		Text:             "I stayed, and it mattered.",
		IntegrationDepth: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, r.SourceNodeID)
	assert.Equal(t, second.ID, r.InterpretingNodeID)

	_, err = e.Reinterpret(ctx, "ana", ReinterpretRequest{SourceMessageID: "missing", Text: "x"})
	assert.ErrorIs(t, err, identity.ErrNotFound)

	m, err := e.Continuity(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 2, m.NodeCount)
	assert.Equal(t, 1, m.ReinterpretationCount)
	assert.Equal(t, 1, m.TransitionCount)
}

func TestChainEmpty(t *testing.T) {
	e := testEngine(t)
	nodes, err := e.Chain(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)
}
