package slotindex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"classroom/internal/apperr"
	"classroom/internal/metrics"
	"classroom/internal/model"
)

// Detector answers whether a room slot is already taken on a date.
type Detector struct {
	graph   *Graph
	timeout time.Duration
	log     *zap.Logger
}

// NewDetector creates a detector reading g.
func NewDetector(g *Graph, timeout time.Duration, log *zap.Logger) *Detector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Detector{graph: g, timeout: timeout, log: log}
}

// CheckConflict reports whether a non-cancelled session already occupies room
// in the slot derived from (date, start).
//
// An unreachable index yields (false, err) with err of kind
// apperr.ErrDependencyUnavailable; callers proceed with the write and rely on
// the authoritative uniqueness constraint.
func (d *Detector) CheckConflict(ctx context.Context, room string, date model.Date, start string) (bool, error) {
	slotID, err := SlotID(date, start)
	if err != nil {
		return false, apperr.Validation(apperr.CodeInvalidArgument, "start time: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	occupants, err := d.graph.Occupants(ctx, Query{SlotID: slotID, Date: date, RoomID: room})
	if err != nil {
		metrics.ConflictChecks.WithLabelValues("skipped").Inc()
		d.log.Warn("slot index unavailable, skipping conflict pre-check",
			zap.String("room_id", room),
			zap.String("slot_id", slotID),
			zap.String("date", date.String()),
			zap.Error(err))
		return false, apperr.Unavailable(apperr.CodeIndexUnavailable, err, "slot index lookup")
	}
	if len(occupants) > 0 {
		metrics.ConflictChecks.WithLabelValues("occupied").Inc()
		return true, nil
	}
	metrics.ConflictChecks.WithLabelValues("free").Inc()
	return false, nil
}
