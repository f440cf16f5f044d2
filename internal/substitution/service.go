// Package substitution turns an instructor's absence into a cancelled session
// and a request, and resolves the request into a new effective instructor.
package substitution

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/model"
	"classroom/internal/scheduling"
	"classroom/internal/slotindex"
	"classroom/internal/store"
)

// RequestStore is the authoritative substitution_requests table.
type RequestStore interface {
	Insert(ctx context.Context, req model.SubstitutionRequest) (model.SubstitutionRequest, error)
	Get(ctx context.Context, id string) (model.SubstitutionRequest, error)
	GetForUpdate(ctx context.Context, id string) (model.SubstitutionRequest, error)
	Resolve(ctx context.Context, req model.SubstitutionRequest) error
	ListByStatus(ctx context.Context, status model.SubstitutionStatus) ([]model.SubstitutionRequest, error)
	WithTx(q store.DBTX) RequestStore
}

// Sessions drives session status from inside the workflow's transaction.
type Sessions interface {
	Session(ctx context.Context, id string) (model.Session, error)
	TransitionTx(ctx context.Context, q store.DBTX, id string, to model.SessionStatus, p scheduling.Params, origin scheduling.Origin) (scheduling.Applied, error)
	ProjectApplied(ctx context.Context, a scheduling.Applied) slotindex.Outcome
}

// Instructors is the instructor directory.
type Instructors interface {
	Instructor(ctx context.Context, id string) (model.Instructor, error)
	Instructors(ctx context.Context) ([]model.Instructor, error)
}

// OccupancyIndex answers who else is busy in a slot.
type OccupancyIndex interface {
	Occupants(ctx context.Context, q slotindex.Query) ([]slotindex.Occupant, error)
}

// Projector mirrors accepted substitutions into the slot index.
type Projector interface {
	ProjectSubstitution(ctx context.Context, req model.SubstitutionRequest) slotindex.Outcome
}

// Deps wires a Service.
type Deps struct {
	Requests     RequestStore
	Tx           store.Transactor
	Sessions     Sessions
	Instructors  Instructors
	Index        OccupancyIndex
	Projector    Projector
	IndexTimeout time.Duration
	Now          func() time.Time
	Log          *zap.Logger
}

// Service runs the substitution workflow.
type Service struct {
	repo         RequestStore
	tx           store.Transactor
	sessions     Sessions
	instructors  Instructors
	index        OccupancyIndex
	projector    Projector
	indexTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewService creates a service.
func NewService(d Deps) *Service {
	if d.IndexTimeout <= 0 {
		d.IndexTimeout = 2 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		repo:         d.Requests,
		tx:           d.Tx,
		sessions:     d.Sessions,
		instructors:  d.Instructors,
		index:        d.Index,
		projector:    d.Projector,
		indexTimeout: d.IndexTimeout,
		now:          d.Now,
		log:          d.Log,
	}
}

// Absence is an instructor's declared absence from a session.
// An empty AbsentInstructorID means the session's effective instructor.
type Absence struct {
	SessionID          string `json:"session_id"`
	AbsentInstructorID string `json:"absent_instructor_id,omitempty"`
	Reason             string `json:"reason"`
	RequestedBy        string `json:"requested_by"`
}

// Result is a workflow step's outcome.
type Result struct {
	Request model.SubstitutionRequest `json:"request"`
	Session model.Session             `json:"session"`
	Outcome slotindex.Outcome         `json:"sync"`
}

// DeclareAbsence cancels a planned session and opens a request for it, in one
// transaction.
func (s *Service) DeclareAbsence(ctx context.Context, a Absence) (Result, error) {
	a.SessionID = strings.TrimSpace(a.SessionID)
	a.AbsentInstructorID = strings.TrimSpace(a.AbsentInstructorID)
	if a.SessionID == "" {
		return Result{}, apperr.Validation(apperr.CodeInvalidArgument, "session id is required")
	}
	if a.AbsentInstructorID != "" {
		if _, err := s.instructors.Instructor(ctx, a.AbsentInstructorID); err != nil {
			return Result{}, err
		}
	}

	var (
		applied scheduling.Applied
		req     model.SubstitutionRequest
	)
	err := s.tx.InTx(ctx, func(q store.DBTX) error {
		var err error
		applied, err = s.sessions.TransitionTx(ctx, q, a.SessionID, model.SessionCancelled, scheduling.Params{}, scheduling.OriginRequest)
		if err != nil {
			return err
		}
		if applied.Before.Status != model.SessionPlanned {
			return apperr.Validation(apperr.CodeTransitionNotAllowed,
				"absence can only be declared for a planned session, %s is %s", a.SessionID, applied.Before.Status)
		}

		absent := a.AbsentInstructorID
		if absent == "" {
			absent = applied.Before.InstructorID
		}
		req, err = s.repo.WithTx(q).Insert(ctx, model.SubstitutionRequest{
			SessionID:          a.SessionID,
			AbsentInstructorID: absent,
			Status:             model.SubstitutionRequested,
			Reason:             strings.TrimSpace(a.Reason),
			RequestedBy:        a.RequestedBy,
			RequestedAt:        s.clock(),
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("absence declared",
		zap.String("substitution_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("absent_instructor_id", req.AbsentInstructorID))
	return Result{Request: req, Session: applied.Session, Outcome: s.sessions.ProjectApplied(ctx, applied)}, nil
}

// ListAvailableInstructors returns instructors free in the session's slot,
// permanent staff first. When the slot index cannot answer, every instructor
// is returned in directory order.
func (s *Service) ListAvailableInstructors(ctx context.Context, sessionID string) ([]model.Instructor, error) {
	sess, err := s.sessions.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	all, err := s.instructors.Instructors(ctx)
	if err != nil {
		return nil, err
	}

	ictx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()
	occupants, err := s.index.Occupants(ictx, slotindex.Query{
		SlotID:           sess.SlotID,
		Date:             sess.Date,
		ExcludeSessionID: sess.ID,
	})
	if err != nil {
		s.log.Warn("slot index unavailable, listing every instructor",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return all, nil
	}

	busy := map[string]struct{}{sess.InstructorID: {}}
	for _, o := range occupants {
		busy[o.InstructorID] = struct{}{}
	}
	free := make([]model.Instructor, 0, len(all))
	for _, in := range all {
		if _, ok := busy[in.ID]; !ok {
			free = append(free, in)
		}
	}
	slices.SortStableFunc(free, func(a, b model.Instructor) int {
		return cmp.Compare(a.Contract.Rank(), b.Contract.Rank())
	})
	return free, nil
}

// AcceptSubstitution assigns replacementID to a pending request and moves the
// covered session to substituted.
func (s *Service) AcceptSubstitution(ctx context.Context, requestID, replacementID, respondedBy string) (Result, error) {
	replacementID = strings.TrimSpace(replacementID)
	if replacementID == "" {
		return Result{}, apperr.Validation(apperr.CodeMissingParameter, "replacement_instructor_id is required").
			WithMeta("param", "replacement_instructor_id")
	}

	var (
		applied scheduling.Applied
		req     model.SubstitutionRequest
	)
	err := s.tx.InTx(ctx, func(q store.DBTX) error {
		repo := s.repo.WithTx(q)
		var err error
		req, err = s.lockPending(ctx, repo, requestID)
		if err != nil {
			return err
		}
		if _, err := s.instructors.Instructor(ctx, replacementID); err != nil {
			return err
		}
		applied, err = s.sessions.TransitionTx(ctx, q, req.SessionID, model.SessionSubstituted,
			scheduling.Params{ReplacementID: replacementID}, scheduling.OriginSubstitution)
		if err != nil {
			return err
		}

		now := s.clock()
		req.Status = model.SubstitutionAccepted
		req.ReplacementInstructorID = &replacementID
		req.RespondedBy = &respondedBy
		req.RespondedAt = &now
		return repo.Resolve(ctx, req)
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("substitution accepted",
		zap.String("substitution_id", req.ID),
		zap.String("session_id", req.SessionID),
		zap.String("replacement_instructor_id", replacementID))
	out := s.sessions.ProjectApplied(ctx, applied).Join(s.projector.ProjectSubstitution(ctx, req))
	return Result{Request: req, Session: applied.Session, Outcome: out}, nil
}

// DeclineSubstitution closes a pending request. The session stays cancelled.
func (s *Service) DeclineSubstitution(ctx context.Context, requestID, respondedBy string) (model.SubstitutionRequest, error) {
	var req model.SubstitutionRequest
	err := s.tx.InTx(ctx, func(q store.DBTX) error {
		repo := s.repo.WithTx(q)
		var err error
		req, err = s.lockPending(ctx, repo, requestID)
		if err != nil {
			return err
		}
		now := s.clock()
		req.Status = model.SubstitutionDeclined
		req.RespondedBy = &respondedBy
		req.RespondedAt = &now
		return repo.Resolve(ctx, req)
	})
	if err != nil {
		return model.SubstitutionRequest{}, err
	}
	s.log.Info("substitution declined", zap.String("substitution_id", req.ID), zap.String("session_id", req.SessionID))
	return req, nil
}

func (s *Service) lockPending(ctx context.Context, repo RequestStore, id string) (model.SubstitutionRequest, error) {
	req, err := repo.GetForUpdate(ctx, id)
	if err != nil {
		return model.SubstitutionRequest{}, err
	}
	if req.Status != model.SubstitutionRequested {
		return model.SubstitutionRequest{}, apperr.Validation(apperr.CodeSubstitutionClosed,
			"substitution request %s is already %s", id, req.Status).
			WithMeta("status", string(req.Status))
	}
	return req, nil
}

// ListPendingSubstitutions returns open requests, oldest first.
func (s *Service) ListPendingSubstitutions(ctx context.Context) ([]model.SubstitutionRequest, error) {
	return s.repo.ListByStatus(ctx, model.SubstitutionRequested)
}

// ListAccepted returns every accepted request.
func (s *Service) ListAccepted(ctx context.Context) ([]model.SubstitutionRequest, error) {
	return s.repo.ListByStatus(ctx, model.SubstitutionAccepted)
}

// GetSubstitution returns a request by id.
func (s *Service) GetSubstitution(ctx context.Context, id string) (model.SubstitutionRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
