package substitution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/store"
)

// Repository persists substitution requests in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to q.
func (r *Repository) WithTx(q store.DBTX) RequestStore {
	return &Repository{db: q}
}

const requestColumns = `id, session_id, absent_instructor_id, replacement_instructor_id, status, reason,
	requested_by, requested_at, responded_by, responded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (model.SubstitutionRequest, error) {
	var (
		req         model.SubstitutionRequest
		replacement sql.NullString
		respondedBy sql.NullString
		respondedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.SessionID, &req.AbsentInstructorID, &replacement, &req.Status, &req.Reason,
		&req.RequestedBy, &req.RequestedAt, &respondedBy, &respondedAt); err != nil {
		return model.SubstitutionRequest{}, err
	}
	if replacement.Valid {
		req.ReplacementInstructorID = &replacement.String
	}
	if respondedBy.Valid {
		req.RespondedBy = &respondedBy.String
	}
	if respondedAt.Valid {
		req.RespondedAt = &respondedAt.Time
	}
	return req, nil
}

// Insert writes a new request.
func (r *Repository) Insert(ctx context.Context, req model.SubstitutionRequest) (model.SubstitutionRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO substitution_requests (id, session_id, absent_instructor_id, status, reason, requested_by, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, req.ID, req.SessionID, req.AbsentInstructorID, string(req.Status), req.Reason, req.RequestedBy, req.RequestedAt)
	if err != nil {
		return model.SubstitutionRequest{}, fmt.Errorf("insert substitution request: %w", err)
	}
	return req, nil
}

// Get returns a request by id.
func (r *Repository) Get(ctx context.Context, id string) (model.SubstitutionRequest, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM substitution_requests WHERE id = $1`, id)
}

// GetForUpdate returns a request by id and locks its row.
func (r *Repository) GetForUpdate(ctx context.Context, id string) (model.SubstitutionRequest, error) {
	return r.get(ctx, `SELECT `+requestColumns+` FROM substitution_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) get(ctx context.Context, query, id string) (model.SubstitutionRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if store.IsNoRows(err) {
		return model.SubstitutionRequest{}, apperr.NotFound(apperr.CodeSubstitutionNotFound, "substitution request %s not found", id)
	}
	if err != nil {
		return model.SubstitutionRequest{}, fmt.Errorf("get substitution request: %w", err)
	}
	return req, nil
}

// Resolve records the response to a request.
func (r *Repository) Resolve(ctx context.Context, req model.SubstitutionRequest) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE substitution_requests
		SET status = $2, replacement_instructor_id = $3, responded_by = $4, responded_at = $5
		WHERE id = $1
	`, req.ID, string(req.Status), req.ReplacementInstructorID, req.RespondedBy, req.RespondedAt)
	if err != nil {
		return fmt.Errorf("resolve substitution request: %w", err)
	}
	return nil
}

// ListByStatus returns requests in status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status model.SubstitutionStatus) ([]model.SubstitutionRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM substitution_requests
		WHERE status = $1
		ORDER BY requested_at, id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list substitution requests: %w", err)
	}
	defer rows.Close()

	var out []model.SubstitutionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan substitution request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
