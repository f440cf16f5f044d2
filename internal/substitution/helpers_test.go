package substitution

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/scheduling"
	"classroom/internal/slotindex"
	"classroom/internal/store"
)

var monday = model.NewDate(2026, time.October, 12)

type memSessions struct {
	mu   sync.Mutex
	rows map[string]model.Session
	seq  int
}

func (m *memSessions) WithTx(store.DBTX) scheduling.SessionStore { return m }

func (m *memSessions) Get(_ context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return model.Session{}, apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

func (m *memSessions) GetForUpdate(ctx context.Context, id string) (model.Session, error) {
	return m.Get(ctx, id)
}

func (m *memSessions) clash(s model.Session) bool {
	for _, o := range m.rows {
		if o.ID != s.ID && o.Status.Occupies() && s.Status.Occupies() &&
			o.RoomID == s.RoomID && o.SlotID == s.SlotID && o.Date.Equal(s.Date.Time) {
			return true
		}
	}
	return false
}

func (m *memSessions) Insert(_ context.Context, s model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	s.ID = fmt.Sprintf("sess-%d", m.seq)
	if m.clash(s) {
		return model.Session{}, apperr.Conflict(apperr.CodeSlotOccupied, "occupied")
	}
	m.rows[s.ID] = s
	return s, nil
}

func (m *memSessions) Update(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clash(s) {
		return apperr.Conflict(apperr.CodeSlotOccupied, "occupied")
	}
	m.rows[s.ID] = s
	return nil
}

func (m *memSessions) ListByClass(context.Context, string) ([]model.Session, error) {
	return nil, nil
}

func (m *memSessions) ListByInstructor(context.Context, string) ([]model.Session, error) {
	return nil, nil
}

func (m *memSessions) ListByRoom(context.Context, string) ([]model.Session, error) {
	return nil, nil
}

func (m *memSessions) ListAll(context.Context) ([]model.Session, error) {
	return nil, nil
}

type memRequests struct {
	mu   sync.Mutex
	rows map[string]model.SubstitutionRequest
	seq  int
}

func (m *memRequests) WithTx(store.DBTX) RequestStore { return m }

func (m *memRequests) Insert(_ context.Context, req model.SubstitutionRequest) (model.SubstitutionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req.ID = fmt.Sprintf("req-%d", m.seq)
	m.rows[req.ID] = req
	return req, nil
}

func (m *memRequests) Get(_ context.Context, id string) (model.SubstitutionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok {
		return model.SubstitutionRequest{}, apperr.NotFound(apperr.CodeSubstitutionNotFound, "substitution request %s not found", id)
	}
	return req, nil
}

func (m *memRequests) GetForUpdate(ctx context.Context, id string) (model.SubstitutionRequest, error) {
	return m.Get(ctx, id)
}

func (m *memRequests) Resolve(_ context.Context, req model.SubstitutionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[req.ID] = req
	return nil
}

func (m *memRequests) ListByStatus(_ context.Context, status model.SubstitutionStatus) ([]model.SubstitutionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SubstitutionRequest
	for _, r := range m.rows {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

// staff is ordered by name, as the directory returns it.
var staff = []model.Instructor{
	{ID: "ada", Name: "Ada", Contract: model.ContractPermanent},
	{ID: "bob", Name: "Bob", Contract: model.ContractTemporary},
	{ID: "cy", Name: "Cy", Contract: model.ContractPermanent},
	{ID: "dee", Name: "Dee", Contract: model.ContractTemporary},
	{ID: "eve", Name: "Eve", Contract: model.ContractPermanent},
}

type memDirectory struct{}

func (memDirectory) Course(_ context.Context, id string) (model.Course, error) {
	if id != "math" {
		return model.Course{}, apperr.NotFound(apperr.CodeCourseNotFound, "course %s not found", id)
	}
	return model.Course{ID: "math", ClassID: "6a", Name: "Mathematics", InstructorID: "ada"}, nil
}

func (memDirectory) Instructor(_ context.Context, id string) (model.Instructor, error) {
	for _, in := range staff {
		if in.ID == id {
			return in, nil
		}
	}
	return model.Instructor{}, apperr.NotFound(apperr.CodeInstructorNotFound, "instructor %s not found", id)
}

func (memDirectory) Instructors(context.Context) ([]model.Instructor, error) {
	return append([]model.Instructor(nil), staff...), nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(_ context.Context, fn func(q store.DBTX) error) error {
	return fn(nil)
}

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
	svc       *Service
	scheduler *scheduling.Service
	requests  *memRequests
	graph     *slotindex.Graph
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g, err := slotindex.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	log := zap.NewNop()
	clock := tickingClock()
	syncer := slotindex.NewSynchronizer(g, nil, time.Second, log)
	scheduler := scheduling.NewService(scheduling.Deps{
		Sessions:  &memSessions{rows: map[string]model.Session{}},
		Tx:        passthroughTx{},
		Directory: memDirectory{},
		Detector:  slotindex.NewDetector(g, time.Second, log),
		Projector: syncer,
		Now:       clock,
		Log:       log,
	})
	requests := &memRequests{rows: map[string]model.SubstitutionRequest{}}
	svc := NewService(Deps{
		Requests:    requests,
		Tx:          passthroughTx{},
		Sessions:    scheduler,
		Instructors: memDirectory{},
		Index:       g,
		Projector:   syncer,
		Now:         clock,
		Log:         log,
	})
	return fixture{svc: svc, scheduler: scheduler, requests: requests, graph: g}
}

func (f fixture) schedule(t *testing.T, room, start, instructor string) model.Session {
	t.Helper()
	got, err := f.scheduler.Schedule(context.Background(), scheduling.ScheduleRequest{
		CourseID: "math", Date: monday, StartTime: start, EndTime: "09:45", RoomID: room, InstructorID: instructor,
	})
	require.NoError(t, err)
	return got.Session
}
