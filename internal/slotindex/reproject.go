package slotindex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/queue"
)

// Reprojector retries projections that lagged behind the session store.
type Reprojector struct {
	sync        *Synchronizer
	src         Source
	queue       Publisher
	maxAttempts int
	log         *zap.Logger
}

// NewReprojector creates a reprojector. Messages failing maxAttempts times are
// dropped and left to the periodic resync.
func NewReprojector(s *Synchronizer, src Source, q Publisher, maxAttempts int, log *zap.Logger) *Reprojector {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Reprojector{sync: s, src: src, queue: q, maxAttempts: maxAttempts, log: log}
}

// Handle reprojects the record named by msg from the current authoritative state.
func (r *Reprojector) Handle(ctx context.Context, msg queue.Message) error {
	var err error
	switch msg.Type {
	case queue.TypeReprojectSession:
		sess, lerr := r.src.Session(ctx, msg.ID)
		if lerr != nil {
			return r.loadFailed(msg, lerr)
		}
		err = r.sync.projectSession(ctx, sess)
	case queue.TypeReprojectSubstitution:
		req, lerr := r.src.Substitution(ctx, msg.ID)
		if lerr != nil {
			return r.loadFailed(msg, lerr)
		}
		err = r.sync.projectSubstitution(ctx, req)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err == nil {
		r.log.Debug("reprojected", zap.String("type", msg.Type), zap.String("id", msg.ID))
		return nil
	}

	msg.Attempt++
	if msg.Attempt >= r.maxAttempts {
		r.log.Warn("reprojection abandoned, waiting for resync",
			zap.String("type", msg.Type), zap.String("id", msg.ID), zap.Int("attempts", msg.Attempt), zap.Error(err))
		return err
	}
	if perr := r.queue.Publish(ctx, msg); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

func (r *Reprojector) loadFailed(msg queue.Message, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		r.log.Warn("reprojection target vanished", zap.String("type", msg.Type), zap.String("id", msg.ID))
		return nil
	}
	return fmt.Errorf("load %s %s: %w", msg.Type, msg.ID, err)
}

// Run handles messages until the channel closes.
func (r *Reprojector) Run(ctx context.Context, messages <-chan queue.Message) {
	for msg := range messages {
		if err := r.Handle(ctx, msg); err != nil {
			r.log.Warn("reprojection failed", zap.String("type", msg.Type), zap.String("id", msg.ID), zap.Error(err))
		}
	}
}
