package scheduling

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/store"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to q, typically a transaction.
func (r *Repository) WithTx(q store.DBTX) SessionStore {
	return &Repository{db: q}
}

const sessionColumns = `id, course_id, session_date, start_time, end_time, room_id, slot_id, status,
	instructor_id, original_instructor_id, rescheduled_to, origin_session_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		s           model.Session
		date        time.Time
		rescheduled sql.NullTime
		origin      sql.NullString
	)
	if err := row.Scan(&s.ID, &s.CourseID, &date, &s.StartTime, &s.EndTime, &s.RoomID, &s.SlotID, &s.Status,
		&s.InstructorID, &s.OriginalInstructorID, &rescheduled, &origin, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.Session{}, err
	}
	s.Date = model.DateOf(date)
	if rescheduled.Valid {
		d := model.DateOf(rescheduled.Time)
		s.RescheduledTo = &d
	}
	if origin.Valid {
		s.OriginSessionID = &origin.String
	}
	return s, nil
}

// Get returns a session by id.
func (r *Repository) Get(ctx context.Context, id string) (model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetForUpdate returns a session by id holding its row lock until the
// surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (model.Session, error) {
	return r.get(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) get(ctx context.Context, query, id string) (model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if store.IsNoRows(err) {
		return model.Session{}, apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", id)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// originConstraint keeps one make-up per postponed session.
const originConstraint = "sessions_origin_uidx"

// Insert writes a new session. An occupied room slot or a second make-up of
// the same session maps to a Conflict.
func (r *Repository) Insert(ctx context.Context, s model.Session) (model.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.OriginalInstructorID == "" {
		s.OriginalInstructorID = s.InstructorID
	}
	var rescheduled any
	if s.RescheduledTo != nil {
		rescheduled = s.RescheduledTo.Time
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, course_id, session_date, start_time, end_time, room_id, slot_id, status,
			instructor_id, original_instructor_id, rescheduled_to, origin_session_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		RETURNING created_at, updated_at
	`, s.ID, s.CourseID, s.Date.Time, s.StartTime, s.EndTime, s.RoomID, s.SlotID, string(s.Status),
		s.InstructorID, s.OriginalInstructorID, rescheduled, s.OriginSessionID, s.UpdatedAt)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			if store.ViolatedConstraint(err) == originConstraint {
				return model.Session{}, makeupExists(*s.OriginSessionID)
			}
			return model.Session{}, slotOccupied(s)
		}
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// Update writes the mutable fields of s.
func (r *Repository) Update(ctx context.Context, s model.Session) error {
	var rescheduled any
	if s.RescheduledTo != nil {
		rescheduled = s.RescheduledTo.Time
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $2, instructor_id = $3, rescheduled_to = $4, updated_at = $5
		WHERE id = $1
	`, s.ID, string(s.Status), s.InstructorID, rescheduled, s.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return slotOccupied(s)
		}
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound(apperr.CodeSessionNotFound, "session %s not found", s.ID)
	}
	return nil
}

func slotOccupied(s model.Session) *apperr.Error {
	return apperr.Conflict(apperr.CodeSlotOccupied, "room %s is already booked for %s on %s", s.RoomID, s.SlotID, s.Date).
		WithMeta("room_id", s.RoomID).
		WithMeta("slot_id", s.SlotID).
		WithMeta("date", s.Date.String())
}

func makeupExists(originID string) *apperr.Error {
	return apperr.Conflict(apperr.CodeMakeupExists, "session %s already has a make-up session", originID).
		WithMeta("origin_session_id", originID)
}

// ListByClass returns the sessions of every course taught to a class.
func (r *Repository) ListByClass(ctx context.Context, classID string) ([]model.Session, error) {
	return r.list(ctx, `
		SELECT s.id, s.course_id, s.session_date, s.start_time, s.end_time, s.room_id, s.slot_id, s.status,
			s.instructor_id, s.original_instructor_id, s.rescheduled_to, s.origin_session_id, s.created_at, s.updated_at
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		WHERE c.class_id = $1
		ORDER BY s.session_date, s.start_time, s.id
	`, classID)
}

// ListByInstructor returns the sessions an instructor effectively teaches.
func (r *Repository) ListByInstructor(ctx context.Context, instructorID string) ([]model.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE instructor_id = $1
		ORDER BY session_date, start_time, id`, instructorID)
}

// ListByRoom returns the sessions booked into a room.
func (r *Repository) ListByRoom(ctx context.Context, roomID string) ([]model.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE room_id = $1
		ORDER BY session_date, start_time, id`, roomID)
}

// ListAll returns every session, for index rebuilds.
func (r *Repository) ListAll(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
