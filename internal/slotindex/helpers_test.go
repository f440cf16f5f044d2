package slotindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
)

var monday = model.NewDate(2026, time.October, 12)

func openTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func testSession(id, room, start string, status model.SessionStatus) model.Session {
	return model.Session{
		ID:                   id,
		CourseID:             "math-1",
		Date:                 monday,
		StartTime:            start,
		EndTime:              "23:00",
		RoomID:               room,
		Status:               status,
		InstructorID:         "t-" + id,
		OriginalInstructorID: "t-" + id,
		UpdatedAt:            time.Date(2026, time.October, 1, 9, 0, 0, 0, time.UTC),
	}
}

type fakeSource struct {
	sessions map[string]model.Session
	subs     map[string]model.SubstitutionRequest
	order    []string
}

func newFakeSource(sessions ...model.Session) *fakeSource {
	src := &fakeSource{sessions: map[string]model.Session{}, subs: map[string]model.SubstitutionRequest{}}
	for _, s := range sessions {
		src.sessions[s.ID] = s
		src.order = append(src.order, s.ID)
	}
	return src
}

func (f *fakeSource) Session(_ context.Context, id string) (model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return model.Session{}, apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

func (f *fakeSource) Substitution(_ context.Context, id string) (model.SubstitutionRequest, error) {
	r, ok := f.subs[id]
	if !ok {
		return model.SubstitutionRequest{}, apperr.NotFound(apperr.CodeSubstitutionNotFound, "substitution %s not found", id)
	}
	return r, nil
}

func (f *fakeSource) AllSessions(context.Context) ([]model.Session, error) {
	out := make([]model.Session, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.sessions[id])
	}
	return out, nil
}

func (f *fakeSource) AcceptedSubstitutions(context.Context) ([]model.SubstitutionRequest, error) {
	var out []model.SubstitutionRequest
	for _, r := range f.subs {
		if r.Status == model.SubstitutionAccepted {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestSync(g *Graph, q Publisher) *Synchronizer {
	return NewSynchronizer(g, q, time.Second, zap.NewNop())
}
