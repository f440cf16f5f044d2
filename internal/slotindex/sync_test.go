package slotindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/queue"
)

func TestProjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := openTestGraph(t)
	s := newTestSync(g, nil)
	sess := testSession("a", "r1", "08:00", model.SessionPlanned)

	require.True(t, s.Project(ctx, sess).Indexed)
	first, err := g.Stats(ctx)
	require.NoError(t, err)

	require.True(t, s.Project(ctx, sess).Indexed)
	second, err := g.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// room, slot, instructor and session nodes; IN_ROOM, AT_SLOT, TAUGHT_BY edges
	assert.Equal(t, Stats{Nodes: 4, Edges: 3}, first)
}

func TestProjectLagsAndRequeuesWhenIndexDown(t *testing.T) {
	g := openTestGraph(t)
	q := queue.NewInMemory(4)
	s := newTestSync(g, q)
	require.NoError(t, g.Close())

	out := s.Project(context.Background(), testSession("a", "r1", "08:00", model.SessionPlanned))
	assert.True(t, out.Committed)
	assert.False(t, out.Indexed)
	assert.True(t, out.Lagged())
	assert.True(t, out.Requeued)
	assert.Error(t, out.Err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-ch:
		assert.Equal(t, queue.Message{Type: queue.TypeReprojectSession, ID: "a"}, msg)
	case <-time.After(time.Second):
		t.Fatal("expected a reprojection message")
	}
}

func TestProjectWithoutQueueOnlyLags(t *testing.T) {
	g := openTestGraph(t)
	s := newTestSync(g, nil)
	require.NoError(t, g.Close())

	out := s.Project(context.Background(), testSession("a", "r1", "08:00", model.SessionPlanned))
	assert.True(t, out.Lagged())
	assert.False(t, out.Requeued)
}

func TestProjectSubstitution(t *testing.T) {
	ctx := context.Background()
	g := openTestGraph(t)
	s := newTestSync(g, nil)
	require.True(t, s.Project(ctx, testSession("a", "r1", "08:00", model.SessionSubstituted)).Indexed)

	pending := model.SubstitutionRequest{ID: "q1", SessionID: "a", Status: model.SubstitutionRequested}
	require.True(t, s.ProjectSubstitution(ctx, pending).Indexed)
	st, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Edges, "pending requests add nothing")

	replacement := "t-sub"
	now := time.Date(2026, time.October, 2, 9, 0, 0, 0, time.UTC)
	accepted := model.SubstitutionRequest{ID: "q1", SessionID: "a", Status: model.SubstitutionAccepted, ReplacementInstructorID: &replacement, RespondedAt: &now}
	require.True(t, s.ProjectSubstitution(ctx, accepted).Indexed)

	st, err = g.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Nodes: 5, Edges: 4}, st)
}

func TestResyncRebuildsFromEmptyAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := openTestGraph(t)
	s := newTestSync(g, nil)

	replacement := "t-sub"
	responded := time.Date(2026, time.October, 2, 9, 0, 0, 0, time.UTC)
	sub := testSession("b", "r2", "10:00", model.SessionSubstituted)
	sub.InstructorID = replacement
	src := newFakeSource(
		testSession("a", "r1", "08:00", model.SessionPlanned),
		sub,
		testSession("c", "r1", "08:00", model.SessionCancelled),
	)
	src.subs["q1"] = model.SubstitutionRequest{ID: "q1", SessionID: "b", Status: model.SubstitutionAccepted, ReplacementInstructorID: &replacement, RespondedAt: &responded}
	src.subs["q2"] = model.SubstitutionRequest{ID: "q2", SessionID: "c", Status: model.SubstitutionRequested}

	// Stale content that the rebuild must drop.
	require.True(t, s.Project(ctx, testSession("ghost", "r9", "16:00", model.SessionPlanned)).Indexed)

	first, err := s.Resync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Sessions)
	assert.Equal(t, 1, first.Substitutions)

	second, err := s.Resync(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, first.Index, second.Index)

	// rooms r1 r2, slots mon:morning-1 mon:morning-2, instructors t-a t-sub t-c, sessions a b c
	assert.Equal(t, Stats{Nodes: 10, Edges: 10}, second.Index)

	got, err := g.Occupants(ctx, Query{SlotID: "mon:afternoon-2", Date: monday})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = g.Occupants(ctx, Query{SlotID: "mon:morning-1", Date: monday, RoomID: "r1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].SessionID)
}

func TestResyncFailsWhenIndexDown(t *testing.T) {
	g := openTestGraph(t)
	s := newTestSync(g, nil)
	require.NoError(t, g.Close())

	_, err := s.Resync(context.Background(), newFakeSource())
	assert.ErrorIs(t, err, apperr.ErrDependencyUnavailable)
}

func TestReprojectorHandle(t *testing.T) {
	ctx := context.Background()
	g := openTestGraph(t)
	q := queue.NewInMemory(4)
	s := newTestSync(g, q)
	src := newFakeSource(testSession("a", "r1", "08:00", model.SessionPlanned))
	r := NewReprojector(s, src, q, 2, zap.NewNop())

	require.NoError(t, r.Handle(ctx, queue.Message{Type: queue.TypeReprojectSession, ID: "a"}))
	got, err := g.Occupants(ctx, Query{SlotID: "mon:morning-1", Date: monday})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	assert.NoError(t, r.Handle(ctx, queue.Message{Type: queue.TypeReprojectSession, ID: "missing"}), "vanished records are dropped")
	assert.Error(t, r.Handle(ctx, queue.Message{Type: "bogus", ID: "a"}))
}

func TestReprojectorRequeuesUntilMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := openTestGraph(t)
	q := queue.NewInMemory(4)
	s := newTestSync(g, q)
	src := newFakeSource(testSession("a", "r1", "08:00", model.SessionPlanned))
	r := NewReprojector(s, src, q, 2, zap.NewNop())
	require.NoError(t, g.Close())

	assert.Error(t, r.Handle(ctx, queue.Message{Type: queue.TypeReprojectSession, ID: "a"}))
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	var requeued queue.Message
	select {
	case requeued = <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected requeue")
	}
	assert.Equal(t, 1, requeued.Attempt)

	assert.Error(t, r.Handle(ctx, requeued))
	select {
	case msg := <-ch:
		t.Fatalf("unexpected requeue %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}
