// Package scheduling owns the session store and the session lifecycle.
package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/slotindex"
	"classroom/internal/store"
)

// SessionStore is the authoritative session table.
type SessionStore interface {
	Get(ctx context.Context, id string) (model.Session, error)
	GetForUpdate(ctx context.Context, id string) (model.Session, error)
	Insert(ctx context.Context, s model.Session) (model.Session, error)
	Update(ctx context.Context, s model.Session) error
	ListByClass(ctx context.Context, classID string) ([]model.Session, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]model.Session, error)
	ListByRoom(ctx context.Context, roomID string) ([]model.Session, error)
	ListAll(ctx context.Context) ([]model.Session, error)
	WithTx(q store.DBTX) SessionStore
}

// Directory resolves courses and instructors.
type Directory interface {
	Course(ctx context.Context, id string) (model.Course, error)
	Instructor(ctx context.Context, id string) (model.Instructor, error)
}

// ConflictChecker is the fast pre-check against the slot index.
type ConflictChecker interface {
	CheckConflict(ctx context.Context, room string, date model.Date, start string) (bool, error)
}

// Projector mirrors committed sessions into the slot index.
type Projector interface {
	Project(ctx context.Context, sess model.Session) slotindex.Outcome
}

// Deps wires a Service.
type Deps struct {
	Sessions  SessionStore
	Tx        store.Transactor
	Directory Directory
	Detector  ConflictChecker
	Projector Projector
	Now       func() time.Time
	Log       *zap.Logger
}

// Service schedules sessions and drives their status.
type Service struct {
	repo      SessionStore
	tx        store.Transactor
	dir       Directory
	detector  ConflictChecker
	projector Projector
	now       func() time.Time
	log       *zap.Logger
}

// NewService creates a service.
func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		repo:      d.Sessions,
		tx:        d.Tx,
		dir:       d.Directory,
		detector:  d.Detector,
		projector: d.Projector,
		now:       d.Now,
		log:       d.Log,
	}
}

// ScheduleRequest describes a new session.
// An empty InstructorID uses the course's default instructor.
type ScheduleRequest struct {
	CourseID     string     `json:"course_id"`
	Date         model.Date `json:"date"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	RoomID       string     `json:"room_id"`
	InstructorID string     `json:"instructor_id,omitempty"`
}

// Scheduled is a committed session and how far it reached the index.
type Scheduled struct {
	Session model.Session     `json:"session"`
	Outcome slotindex.Outcome `json:"sync"`
}

// Schedule books a planned session after the slot index pre-check. The
// authoritative store rejects a double booking the pre-check missed.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (Scheduled, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.RoomID = strings.TrimSpace(req.RoomID)
	req.InstructorID = strings.TrimSpace(req.InstructorID)
	if req.CourseID == "" {
		return Scheduled{}, apperr.Validation(apperr.CodeInvalidArgument, "course_id is required")
	}
	if req.RoomID == "" {
		return Scheduled{}, apperr.Validation(apperr.CodeInvalidArgument, "room_id is required")
	}
	if req.Date.IsZero() {
		return Scheduled{}, apperr.Validation(apperr.CodeInvalidArgument, "date is required")
	}
	if err := validateTimes(req.StartTime, req.EndTime); err != nil {
		return Scheduled{}, err
	}

	course, err := s.dir.Course(ctx, req.CourseID)
	if err != nil {
		return Scheduled{}, err
	}
	instructor := course.InstructorID
	if req.InstructorID != "" {
		if _, err := s.dir.Instructor(ctx, req.InstructorID); err != nil {
			return Scheduled{}, err
		}
		instructor = req.InstructorID
	}

	sess, err := s.newSession(req.CourseID, req.Date, req.StartTime, req.EndTime, req.RoomID, instructor, model.SessionPlanned)
	if err != nil {
		return Scheduled{}, err
	}
	if err := s.precheck(ctx, sess); err != nil {
		return Scheduled{}, err
	}

	created, err := s.repo.Insert(ctx, sess)
	if err != nil {
		return Scheduled{}, err
	}
	s.log.Info("session scheduled",
		zap.String("session_id", created.ID),
		zap.String("room_id", created.RoomID),
		zap.String("slot_id", created.SlotID),
		zap.String("date", created.Date.String()))
	return Scheduled{Session: created, Outcome: s.projector.Project(ctx, created)}, nil
}

// Applied is the result of a status change.
type Applied struct {
	Before  model.Session     `json:"-"`
	Session model.Session     `json:"session"`
	MadeUp  *model.Session    `json:"made_up,omitempty"`
	Outcome slotindex.Outcome `json:"sync"`
}

// Changed reports whether the change wrote anything.
func (a Applied) Changed() bool {
	return a.MadeUp != nil || a.Before.Status != a.Session.Status
}

// SetStatus moves a session to the named status.
func (s *Service) SetStatus(ctx context.Context, id, status string, p Params) (Applied, error) {
	to, err := model.ParseSessionStatus(status)
	if err != nil {
		return Applied{}, apperr.Validation(apperr.CodeInvalidStatus, "%v", err)
	}

	var applied Applied
	err = s.tx.InTx(ctx, func(q store.DBTX) error {
		var terr error
		applied, terr = s.TransitionTx(ctx, q, id, to, p, OriginRequest)
		return terr
	})
	if err != nil {
		return Applied{}, err
	}
	applied.Outcome = s.ProjectApplied(ctx, applied)
	return applied, nil
}

// ProjectApplied mirrors the rows a committed transition wrote.
func (s *Service) ProjectApplied(ctx context.Context, a Applied) slotindex.Outcome {
	out := slotindex.Outcome{Committed: true, Indexed: true}
	if !a.Changed() {
		return out
	}
	if a.MadeUp != nil {
		out = out.Join(s.projector.Project(ctx, *a.MadeUp))
	}
	if a.Before.Status != a.Session.Status {
		out = out.Join(s.projector.Project(ctx, a.Session))
	}
	return out
}

// TransitionTx applies a transition inside the caller's transaction q. The
// session row stays locked until q ends. Projection is left to the caller.
func (s *Service) TransitionTx(ctx context.Context, q store.DBTX, id string, to model.SessionStatus, p Params, origin Origin) (Applied, error) {
	repo := s.repo.WithTx(q)
	sess, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return Applied{}, err
	}
	effect, err := Plan(sess, to, p, origin)
	if err != nil {
		return Applied{}, err
	}

	applied := Applied{Before: sess, Session: sess}
	now := s.clock()
	switch effect {
	case EffectNone:
		return applied, nil
	case EffectSetStatus:
		sess.Status = to
	case EffectPostpone:
		target := *p.TargetDate
		sess.Status = model.SessionPostponed
		sess.RescheduledTo = &target
	case EffectSubstitute:
		if _, err := s.dir.Instructor(ctx, p.ReplacementID); err != nil {
			return Applied{}, err
		}
		if sess.OriginalInstructorID == "" {
			sess.OriginalInstructorID = sess.InstructorID
		}
		sess.InstructorID = p.ReplacementID
		sess.Status = model.SessionSubstituted
	case EffectCreateMakeup:
		madeUp, err := s.createMakeup(ctx, repo, sess, p)
		if err != nil {
			return Applied{}, err
		}
		applied.MadeUp = &madeUp
		return applied, nil
	}

	sess.UpdatedAt = now
	if err := repo.Update(ctx, sess); err != nil {
		return Applied{}, err
	}
	applied.Session = sess
	s.log.Info("session status changed",
		zap.String("session_id", sess.ID),
		zap.String("from", string(applied.Before.Status)),
		zap.String("to", string(sess.Status)))
	return applied, nil
}

// createMakeup inserts the made-up session replacing the postponed orig.
func (s *Service) createMakeup(ctx context.Context, repo SessionStore, orig model.Session, p Params) (model.Session, error) {
	date := orig.RescheduledTo
	if p.TargetDate != nil {
		date = p.TargetDate
	}
	start, end := orig.StartTime, orig.EndTime
	if p.StartTime != "" {
		start = p.StartTime
	}
	if p.EndTime != "" {
		end = p.EndTime
	}
	if err := validateTimes(start, end); err != nil {
		return model.Session{}, err
	}
	room := orig.RoomID
	if p.RoomID != "" {
		room = p.RoomID
	}
	instructor := orig.InstructorID
	if p.InstructorID != "" {
		if _, err := s.dir.Instructor(ctx, p.InstructorID); err != nil {
			return model.Session{}, err
		}
		instructor = p.InstructorID
	}

	madeUp, err := s.newSession(orig.CourseID, *date, start, end, room, instructor, model.SessionMadeUp)
	if err != nil {
		return model.Session{}, err
	}
	origin := orig.ID
	madeUp.OriginSessionID = &origin
	if err := s.precheck(ctx, madeUp); err != nil {
		return model.Session{}, err
	}
	created, err := repo.Insert(ctx, madeUp)
	if err != nil {
		return model.Session{}, err
	}
	s.log.Info("make-up session created",
		zap.String("session_id", created.ID),
		zap.String("origin_session_id", orig.ID),
		zap.String("date", created.Date.String()))
	return created, nil
}

func (s *Service) newSession(courseID string, date model.Date, start, end, room, instructor string, status model.SessionStatus) (model.Session, error) {
	slotID, err := slotindex.SlotID(date, start)
	if err != nil {
		return model.Session{}, apperr.Validation(apperr.CodeInvalidArgument, "start_time: %v", err)
	}
	now := s.clock()
	return model.Session{
		CourseID:             courseID,
		Date:                 date,
		StartTime:            start,
		EndTime:              end,
		RoomID:               room,
		SlotID:               slotID,
		Status:               status,
		InstructorID:         instructor,
		OriginalInstructorID: instructor,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// precheck consults the slot index. An unreachable index lets the write through.
func (s *Service) precheck(ctx context.Context, sess model.Session) error {
	taken, err := s.detector.CheckConflict(ctx, sess.RoomID, sess.Date, sess.StartTime)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return err
		}
		s.log.Warn("conflict pre-check skipped",
			zap.String("room_id", sess.RoomID),
			zap.String("date", sess.Date.String()),
			zap.Error(err))
		return nil
	}
	if taken {
		return slotOccupied(sess)
	}
	return nil
}

// clock returns the current time at the precision Postgres keeps.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func validateTimes(start, end string) error {
	from, err := model.ParseClock(start)
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidArgument, "start_time: %v", err)
	}
	to, err := model.ParseClock(end)
	if err != nil {
		return apperr.Validation(apperr.CodeInvalidArgument, "end_time: %v", err)
	}
	if to <= from {
		return apperr.Validation(apperr.CodeInvalidArgument, "end_time %s must be after start_time %s", end, start)
	}
	return nil
}

// Session returns a session by id.
func (s *Service) Session(ctx context.Context, id string) (model.Session, error) {
	return s.repo.Get(ctx, id)
}

// ClassSchedule lists the sessions of a class, by date.
func (s *Service) ClassSchedule(ctx context.Context, classID string) ([]model.Session, error) {
	if strings.TrimSpace(classID) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "class id is required")
	}
	return s.repo.ListByClass(ctx, classID)
}

// InstructorSchedule lists the sessions an instructor effectively teaches.
func (s *Service) InstructorSchedule(ctx context.Context, instructorID string) ([]model.Session, error) {
	if strings.TrimSpace(instructorID) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "instructor id is required")
	}
	return s.repo.ListByInstructor(ctx, instructorID)
}

// RoomOccupancy lists the sessions booked into a room.
func (s *Service) RoomOccupancy(ctx context.Context, roomID string) ([]model.Session, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidArgument, "room id is required")
	}
	return s.repo.ListByRoom(ctx, roomID)
}

// AllSessions lists every session.
func (s *Service) AllSessions(ctx context.Context) ([]model.Session, error) {
	return s.repo.ListAll(ctx)
}
