package slotindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/model"
	"classroom/internal/queue"
)

// Outcome reports how far a committed write propagated.
// Committed is about the session store; Indexed about the slot index.
type Outcome struct {
	Committed bool  `json:"committed"`
	Indexed   bool  `json:"indexed"`
	Requeued  bool  `json:"requeued"`
	Err       error `json:"-"`
}

// Lagged reports whether the index missed a committed write.
func (o Outcome) Lagged() bool {
	return o.Committed && !o.Indexed
}

// Join combines the outcomes of projections made for one write.
func (o Outcome) Join(other Outcome) Outcome {
	return Outcome{
		Committed: o.Committed && other.Committed,
		Indexed:   o.Indexed && other.Indexed,
		Requeued:  o.Requeued || other.Requeued,
		Err:       errors.Join(o.Err, other.Err),
	}
}

// Publisher enqueues work for the reprojection worker.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Source reads authoritative state for projection.
type Source interface {
	Session(ctx context.Context, id string) (model.Session, error)
	Substitution(ctx context.Context, id string) (model.SubstitutionRequest, error)
	AllSessions(ctx context.Context) ([]model.Session, error)
	AcceptedSubstitutions(ctx context.Context) ([]model.SubstitutionRequest, error)
}

// Synchronizer projects session store records into the slot index.
type Synchronizer struct {
	graph   *Graph
	queue   Publisher
	timeout time.Duration
	log     *zap.Logger

	resyncMu sync.Mutex
}

// NewSynchronizer creates a synchronizer. q may be nil, in which case failed
// projections are only healed by a full resync.
func NewSynchronizer(g *Graph, q Publisher, timeout time.Duration, log *zap.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Synchronizer{graph: g, queue: q, timeout: timeout, log: log}
}

// Project merges sess into the index. It never fails the caller: the session
// store write has already committed. On failure the session is queued for
// reprojection.
func (s *Synchronizer) Project(ctx context.Context, sess model.Session) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	out := Outcome{Committed: true}
	if err := s.projectSession(ctx, sess); err != nil {
		out.Err = err
		s.log.Warn("slot index projection lagged",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		out.Requeued = s.requeue(ctx, queue.Message{Type: queue.TypeReprojectSession, ID: sess.ID})
		return out
	}
	metrics.IndexProjections.WithLabelValues("indexed").Inc()
	out.Indexed = true
	return out
}

// ProjectSubstitution attaches the replacement instructor of an accepted
// request to its session. Other requests are ignored.
func (s *Synchronizer) ProjectSubstitution(ctx context.Context, req model.SubstitutionRequest) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	out := Outcome{Committed: true}
	if err := s.projectSubstitution(ctx, req); err != nil {
		out.Err = err
		s.log.Warn("slot index substitution projection lagged",
			zap.String("substitution_id", req.ID),
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		out.Requeued = s.requeue(ctx, queue.Message{Type: queue.TypeReprojectSubstitution, ID: req.ID})
		return out
	}
	metrics.IndexProjections.WithLabelValues("indexed").Inc()
	out.Indexed = true
	return out
}

func (s *Synchronizer) projectSession(ctx context.Context, sess model.Session) error {
	slotID, err := SlotID(sess.Date, sess.StartTime)
	if err != nil {
		return fmt.Errorf("derive slot for session %s: %w", sess.ID, err)
	}
	return s.graph.applySession(ctx, sess, slotID)
}

func (s *Synchronizer) projectSubstitution(ctx context.Context, req model.SubstitutionRequest) error {
	if req.Status != model.SubstitutionAccepted || req.ReplacementInstructorID == nil {
		return nil
	}
	var version int64
	if req.RespondedAt != nil {
		version = req.RespondedAt.UnixMicro()
	}
	return s.graph.applySubstitution(ctx, req.SessionID, *req.ReplacementInstructorID, version)
}

func (s *Synchronizer) requeue(ctx context.Context, msg queue.Message) bool {
	if s.queue == nil {
		metrics.IndexProjections.WithLabelValues("lagged").Inc()
		return false
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		metrics.IndexProjections.WithLabelValues("lagged").Inc()
		s.log.Warn("reprojection enqueue failed, waiting for resync",
			zap.String("type", msg.Type),
			zap.String("id", msg.ID),
			zap.Error(err))
		return false
	}
	metrics.IndexProjections.WithLabelValues("requeued").Inc()
	return true
}

// ResyncReport summarises a full rebuild.
type ResyncReport struct {
	Sessions      int           `json:"sessions"`
	Substitutions int           `json:"substitutions"`
	Index         Stats         `json:"index"`
	Duration      time.Duration `json:"duration_ns"`
}

// Resync rebuilds the whole index from src. The index is cleared once at the
// start of the run; everything afterwards is a versioned merge, so live
// projections racing with the rebuild keep the newest state. Concurrent calls
// run one after the other.
func (s *Synchronizer) Resync(ctx context.Context, src Source) (ResyncReport, error) {
	s.resyncMu.Lock()
	defer s.resyncMu.Unlock()

	start := time.Now()
	defer func() { metrics.ResyncDuration.Observe(time.Since(start).Seconds()) }()

	if err := s.graph.clear(ctx); err != nil {
		return ResyncReport{}, apperr.Unavailable(apperr.CodeIndexUnavailable, err, "clear slot index")
	}

	sessions, err := src.AllSessions(ctx)
	if err != nil {
		return ResyncReport{}, fmt.Errorf("load sessions: %w", err)
	}
	var report ResyncReport
	for _, sess := range sessions {
		if err := s.projectSession(ctx, sess); err != nil {
			return report, apperr.Unavailable(apperr.CodeIndexUnavailable, err, "project session %s", sess.ID)
		}
		report.Sessions++
	}

	subs, err := src.AcceptedSubstitutions(ctx)
	if err != nil {
		return report, fmt.Errorf("load substitutions: %w", err)
	}
	for _, req := range subs {
		if err := s.projectSubstitution(ctx, req); err != nil {
			return report, apperr.Unavailable(apperr.CodeIndexUnavailable, err, "project substitution %s", req.ID)
		}
		report.Substitutions++
	}

	stats, err := s.graph.Stats(ctx)
	if err != nil {
		return report, apperr.Unavailable(apperr.CodeIndexUnavailable, err, "count slot index")
	}
	report.Index = stats
	report.Duration = time.Since(start)

	s.log.Info("slot index rebuilt",
		zap.Int("sessions", report.Sessions),
		zap.Int("substitutions", report.Substitutions),
		zap.Int("nodes", stats.Nodes),
		zap.Int("edges", stats.Edges),
		zap.Duration("duration", report.Duration))
	return report, nil
}
