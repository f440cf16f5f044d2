// Package directory reads the course, instructor and student records owned by
// the CRUD layer.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/store"
)

// Repository reads directory tables in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Course returns a course by id.
func (r *Repository) Course(ctx context.Context, id string) (model.Course, error) {
	var c model.Course
	err := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, name, instructor_id
		FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.ClassID, &c.Name, &c.InstructorID)
	if store.IsNoRows(err) {
		return model.Course{}, apperr.NotFound(apperr.CodeCourseNotFound, "course %s not found", id)
	}
	if err != nil {
		return model.Course{}, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// Instructor returns an instructor by id.
func (r *Repository) Instructor(ctx context.Context, id string) (model.Instructor, error) {
	var in model.Instructor
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, contract_type
		FROM instructors WHERE id = $1
	`, id).Scan(&in.ID, &in.Name, &in.Contract)
	if store.IsNoRows(err) {
		return model.Instructor{}, apperr.NotFound(apperr.CodeInstructorNotFound, "instructor %s not found", id)
	}
	if err != nil {
		return model.Instructor{}, fmt.Errorf("get instructor: %w", err)
	}
	return in, nil
}

// Instructors returns every instructor ordered by name.
func (r *Repository) Instructors(ctx context.Context) ([]model.Instructor, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, contract_type
		FROM instructors
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	defer rows.Close()

	var out []model.Instructor
	for rows.Next() {
		var in model.Instructor
		if err := rows.Scan(&in.ID, &in.Name, &in.Contract); err != nil {
			return nil, fmt.Errorf("scan instructor: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Student returns a student by id.
func (r *Repository) Student(ctx context.Context, id string) (model.Student, error) {
	var st model.Student
	var classID sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, class_id
		FROM students WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &classID)
	if store.IsNoRows(err) {
		return model.Student{}, apperr.NotFound(apperr.CodeStudentNotFound, "student %s not found", id)
	}
	if err != nil {
		return model.Student{}, fmt.Errorf("get student: %w", err)
	}
	st.ClassID = classID.String
	return st, nil
}
