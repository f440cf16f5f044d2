package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/store"
)

type markKey struct{ session, student string }

type memMarks struct {
	mu      sync.Mutex
	marks   map[markKey]model.AttendanceStatus
	streaks map[string]model.Streak
	writes  int
}

func newMemMarks() *memMarks {
	return &memMarks{marks: map[markKey]model.AttendanceStatus{}, streaks: map[string]model.Streak{}}
}

func (m *memMarks) WithTx(store.DBTX) MarkStore { return m }

func (m *memMarks) LockStudent(context.Context, string) error { return nil }

func (m *memMarks) Mark(_ context.Context, sessionID, studentID string) (model.AttendanceStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.marks[markKey{sessionID, studentID}]
	return st, ok, nil
}

func (m *memMarks) UpsertMark(_ context.Context, sessionID, studentID string, status model.AttendanceStatus, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[markKey{sessionID, studentID}] = status
	m.writes++
	return nil
}

func (m *memMarks) Streak(_ context.Context, studentID string) (model.Streak, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streaks[studentID]
	return st, ok, nil
}

func (m *memMarks) SaveStreak(_ context.Context, studentID string, st model.Streak, delta int, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.Bonus = m.streaks[studentID].Bonus + delta
	m.streaks[studentID] = st
	return st.Bonus, nil
}

func (m *memMarks) TopStreaks(_ context.Context, n int) ([]model.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LeaderboardEntry, 0, len(m.streaks))
	for id, st := range m.streaks {
		out = append(out, model.LeaderboardEntry{StudentID: id, Streak: st.Current})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Streak != out[j].Streak {
			return out[i].Streak > out[j].Streak
		}
		return out[i].StudentID > out[j].StudentID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memMarks) AllStreaks(context.Context) (map[string]model.Streak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Streak, len(m.streaks))
	for k, v := range m.streaks {
		out[k] = v
	}
	return out, nil
}

// daySessions holds one planned session per day from day0 on.
type daySessions map[string]model.Session

func sessionOn(i int) string { return fmt.Sprintf("day-%02d", i) }

func newDaySessions(days int) daySessions {
	out := daySessions{}
	for i := 0; i < days; i++ {
		out[sessionOn(i)] = model.Session{ID: sessionOn(i), Date: day0.AddDays(i), Status: model.SessionPlanned}
	}
	return out
}

func (d daySessions) Session(_ context.Context, id string) (model.Session, error) {
	s, ok := d[id]
	if !ok {
		return model.Session{}, apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", id)
	}
	return s, nil
}

type roster map[string]bool

func (r roster) Student(_ context.Context, id string) (model.Student, error) {
	if !r[id] {
		return model.Student{}, apperr.NotFound(apperr.CodeStudentNotFound, "student %s not found", id)
	}
	return model.Student{ID: id, Name: id}, nil
}

type passthroughTx struct{}

func (passthroughTx) InTx(_ context.Context, fn func(q store.DBTX) error) error {
	return fn(nil)
}

type fixture struct {
	svc      *Service
	marks    *memMarks
	sessions daySessions
	redis    *miniredis.Miniredis
}

func newTestClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	marks := newMemMarks()
	sessions := newDaySessions(30)
	svc := NewService(Deps{
		Marks:        marks,
		Tx:           passthroughTx{},
		Sessions:     sessions,
		Students:     roster{"amy": true, "ben": true, "cat": true},
		Cache:        NewCache(newTestClient(t, mr)),
		CacheTimeout: time.Second,
		Log:          zap.NewNop(),
	})
	return fixture{svc: svc, marks: marks, sessions: sessions, redis: mr}
}

func (f fixture) present(t *testing.T, student string, day int) Result {
	t.Helper()
	res, err := f.svc.MarkPresence(context.Background(), Mark{SessionID: sessionOn(day), StudentID: student, Status: "present"})
	if err != nil {
		t.Fatalf("mark %s present on day %d: %v", student, day, err)
	}
	return res
}
