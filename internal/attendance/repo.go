package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classroom/internal/model"
	"classroom/internal/store"
)

// Repository persists attendance facts and durable streaks in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to q.
func (r *Repository) WithTx(q store.DBTX) MarkStore {
	return &Repository{db: q}
}

// LockStudent serialises streak updates for a student until the transaction ends.
func (r *Repository) LockStudent(ctx context.Context, studentID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, studentID); err != nil {
		return fmt.Errorf("lock student %s: %w", studentID, err)
	}
	return nil
}

// Mark returns the recorded status for (session, student), if any.
func (r *Repository) Mark(ctx context.Context, sessionID, studentID string) (model.AttendanceStatus, bool, error) {
	var status model.AttendanceStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM attendance
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID).Scan(&status)
	if store.IsNoRows(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get attendance: %w", err)
	}
	return status, true, nil
}

// UpsertMark records the status for (session, student).
func (r *Repository) UpsertMark(ctx context.Context, sessionID, studentID string, status model.AttendanceStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (session_id, student_id, status, marked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			marked_at = EXCLUDED.marked_at
	`, sessionID, studentID, string(status), at)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// Streak returns the durable streak of a student. ok is false when none was
// recorded yet.
func (r *Repository) Streak(ctx context.Context, studentID string) (model.Streak, bool, error) {
	var (
		st   model.Streak
		last sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT current_streak, last_present, bonus_units
		FROM streaks WHERE student_id = $1
	`, studentID).Scan(&st.Current, &last, &st.Bonus)
	if store.IsNoRows(err) {
		return model.Streak{}, false, nil
	}
	if err != nil {
		return model.Streak{}, false, fmt.Errorf("get streak: %w", err)
	}
	if last.Valid {
		d := model.DateOf(last.Time)
		st.LastPresent = &d
	}
	return st, true, nil
}

// SaveStreak stores the current streak and adds bonusDelta to the bonus total,
// which it returns.
func (r *Repository) SaveStreak(ctx context.Context, studentID string, st model.Streak, bonusDelta int, at time.Time) (int, error) {
	var last any
	if st.LastPresent != nil {
		last = st.LastPresent.Time
	}
	var bonus int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO streaks (student_id, current_streak, last_present, bonus_units, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			last_present = EXCLUDED.last_present,
			bonus_units = streaks.bonus_units + EXCLUDED.bonus_units,
			updated_at = EXCLUDED.updated_at
		RETURNING bonus_units
	`, studentID, st.Current, last, bonusDelta, at).Scan(&bonus)
	if err != nil {
		return 0, fmt.Errorf("save streak: %w", err)
	}
	return bonus, nil
}

// TopStreaks ranks students the way the cached leaderboard does.
func (r *Repository) TopStreaks(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, current_streak
		FROM streaks
		ORDER BY current_streak DESC, student_id DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("list top streaks: %w", err)
	}
	defer rows.Close()

	var out []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.StudentID, &e.Streak); err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AllStreaks returns every durable streak keyed by student.
func (r *Repository) AllStreaks(ctx context.Context) (map[string]model.Streak, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT student_id, current_streak, last_present, bonus_units FROM streaks`)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.Streak)
	for rows.Next() {
		var (
			id   string
			st   model.Streak
			last sql.NullTime
		)
		if err := rows.Scan(&id, &st.Current, &last, &st.Bonus); err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		if last.Valid {
			d := model.DateOf(last.Time)
			st.LastPresent = &d
		}
		out[id] = st
	}
	return out, rows.Err()
}
