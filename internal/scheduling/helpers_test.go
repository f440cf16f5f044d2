package scheduling

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/slotindex"
	"classroom/internal/store"
)

var (
	monday     = model.NewDate(2026, time.October, 12)
	nextMonday = model.NewDate(2026, time.October, 19)
)

// memStore mimics the sessions table, including its partial unique indexes.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	order    []string
	seq      int
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]model.Session{}}
}

func (m *memStore) WithTx(store.DBTX) SessionStore { return m }

func (m *memStore) Get(_ context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.Session{}, apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id string) (model.Session, error) {
	return m.Get(ctx, id)
}

func (m *memStore) occupied(s model.Session) bool {
	if !s.Status.Occupies() {
		return false
	}
	for _, other := range m.sessions {
		if other.ID != s.ID && other.Status.Occupies() &&
			other.RoomID == s.RoomID && other.Date.Equal(s.Date.Time) && other.SlotID == s.SlotID {
			return true
		}
	}
	return false
}

func (m *memStore) Insert(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		m.seq++
		s.ID = fmt.Sprintf("sess-%d", m.seq)
	}
	if s.OriginSessionID != nil {
		for _, other := range m.sessions {
			if other.OriginSessionID != nil && *other.OriginSessionID == *s.OriginSessionID {
				return model.Session{}, makeupExists(*s.OriginSessionID)
			}
		}
	}
	if m.occupied(s) {
		return model.Session{}, slotOccupied(s)
	}
	m.sessions[s.ID] = s
	m.order = append(m.order, s.ID)
	return s, nil
}

func (m *memStore) Update(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", s.ID)
	}
	cur.Status = s.Status
	cur.InstructorID = s.InstructorID
	cur.RescheduledTo = s.RescheduledTo
	cur.UpdatedAt = s.UpdatedAt
	if m.occupied(cur) {
		return slotOccupied(cur)
	}
	m.sessions[s.ID] = cur
	return nil
}

func (m *memStore) filter(keep func(model.Session) bool) []model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, id := range m.order {
		if s := m.sessions[id]; keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (m *memStore) ListByClass(_ context.Context, classID string) ([]model.Session, error) {
	return m.filter(func(s model.Session) bool { return testCourses[s.CourseID].ClassID == classID }), nil
}

func (m *memStore) ListByInstructor(_ context.Context, id string) ([]model.Session, error) {
	return m.filter(func(s model.Session) bool { return s.InstructorID == id }), nil
}

func (m *memStore) ListByRoom(_ context.Context, id string) ([]model.Session, error) {
	return m.filter(func(s model.Session) bool { return s.RoomID == id }), nil
}

func (m *memStore) ListAll(context.Context) ([]model.Session, error) {
	return m.filter(func(model.Session) bool { return true }), nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(_ context.Context, fn func(q store.DBTX) error) error {
	return fn(nil)
}

var testCourses = map[string]model.Course{
	"math": {ID: "math", ClassID: "6a", Name: "Mathematics", InstructorID: "ada"},
	"bio":  {ID: "bio", ClassID: "6b", Name: "Biology", InstructorID: "grace"},
}

var testInstructors = map[string]model.Instructor{
	"ada":   {ID: "ada", Name: "Ada", Contract: model.ContractPermanent},
	"grace": {ID: "grace", Name: "Grace", Contract: model.ContractPermanent},
	"linus": {ID: "linus", Name: "Linus", Contract: model.ContractTemporary},
}

type memDirectory struct{}

func (memDirectory) Course(_ context.Context, id string) (model.Course, error) {
	c, ok := testCourses[id]
	if !ok {
		return model.Course{}, apperr.NotFound(apperr.CodeCourseNotFound, "course %s not found", id)
	}
	return c, nil
}

func (memDirectory) Instructor(_ context.Context, id string) (model.Instructor, error) {
	in, ok := testInstructors[id]
	if !ok {
		return model.Instructor{}, apperr.NotFound(apperr.CodeInstructorNotFound, "instructor %s not found", id)
	}
	return in, nil
}

// tickingClock advances one second per reading.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	svc   *Service
	store *memStore
	graph *slotindex.Graph
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g, err := slotindex.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	log := zap.NewNop()
	st := newMemStore()
	svc := NewService(Deps{
		Sessions:  st,
		Tx:        passthroughTx{},
		Directory: memDirectory{},
		Detector:  slotindex.NewDetector(g, time.Second, log),
		Projector: slotindex.NewSynchronizer(g, nil, time.Second, log),
		Now:       tickingClock(),
		Log:       log,
	})
	return fixture{svc: svc, store: st, graph: g}
}

func mathAt(date model.Date, start, end, room string) ScheduleRequest {
	return ScheduleRequest{CourseID: "math", Date: date, StartTime: start, EndTime: end, RoomID: room}
}
