package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom/internal/model"
	"classroom/internal/store"
	"classroom/internal/store/storetest"
)

func newRepo(t *testing.T) (*Repository, *store.TxRunner) {
	t.Helper()
	db := storetest.Open(t)
	storetest.Exec(t, db,
		`INSERT INTO instructors (id, name) VALUES ('ada', 'Ada')`,
		`INSERT INTO courses (id, class_id, name, instructor_id) VALUES ('math', '6a', 'Maths', 'ada')`,
		`INSERT INTO sessions (id, course_id, session_date, start_time, end_time, room_id, slot_id, instructor_id, original_instructor_id)
		 VALUES ('s1', 'math', '2026-10-12', '08:00', '09:45', 'r101', 'mon-1', 'ada', 'ada')`,
		`INSERT INTO students (id, name) VALUES ('kim', 'Kim'), ('lee', 'Lee'), ('max', 'Max')`,
	)
	return NewRepository(db), store.NewTxRunner(db)
}

func TestRepositoryMarks(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	at := time.Date(2026, time.October, 12, 8, 5, 0, 0, time.UTC)

	_, ok, err := repo.Mark(ctx, "s1", "kim")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.UpsertMark(ctx, "s1", "kim", model.AttendanceLate, at))
	require.NoError(t, repo.UpsertMark(ctx, "s1", "kim", model.AttendancePresent, at.Add(time.Minute)))

	status, ok, err := repo.Mark(ctx, "s1", "kim")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.AttendancePresent, status)
}

func TestRepositorySaveStreakAccumulatesBonus(t *testing.T) {
	repo, tx := newRepo(t)
	ctx := context.Background()
	at := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	day := model.NewDate(2026, time.October, 16)

	_, ok, err := repo.Streak(ctx, "kim")
	require.NoError(t, err)
	assert.False(t, ok)

	err = tx.InTx(ctx, func(q store.DBTX) error {
		r := repo.WithTx(q)
		if err := r.LockStudent(ctx, "kim"); err != nil {
			return err
		}
		total, err := r.SaveStreak(ctx, "kim", model.Streak{Current: 5, LastPresent: &day}, 1, at)
		assert.Equal(t, 1, total)
		return err
	})
	require.NoError(t, err)

	total, err := repo.SaveStreak(ctx, "kim", model.Streak{Current: 10, LastPresent: &day}, 1, at)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	st, ok, err := repo.Streak(ctx, "kim")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10, st.Current)
	assert.Equal(t, 2, st.Bonus)
	require.NotNil(t, st.LastPresent)
	assert.Equal(t, "2026-10-16", st.LastPresent.String())
}

func TestRepositoryTopStreaks(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	at := time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

	for id, n := range map[string]int{"kim": 3, "lee": 7, "max": 3} {
		_, err := repo.SaveStreak(ctx, id, model.Streak{Current: n}, 0, at)
		require.NoError(t, err)
	}

	top, err := repo.TopStreaks(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []model.LeaderboardEntry{{StudentID: "lee", Streak: 7}, {StudentID: "max", Streak: 3}}, top)

	all, err := repo.AllStreaks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Nil(t, all["kim"].LastPresent)
}
