package scheduling

import (
	"classroom/internal/apperr"
	"classroom/internal/model"
)

// Origin identifies who asks for a status change.
type Origin int

const (
	// OriginRequest is a direct status change from a client.
	OriginRequest Origin = iota
	// OriginSubstitution is the substitution workflow resolving a request.
	OriginSubstitution
)

// Params carries the parameters some transitions require.
type Params struct {
	TargetDate    *model.Date
	ReplacementID string

	// Make-up overrides; empty keeps the postponed session's values.
	RoomID       string
	StartTime    string
	EndTime      string
	InstructorID string
}

// Effect is the side effect a transition has on the session store.
type Effect int

const (
	EffectNone Effect = iota
	EffectSetStatus
	EffectPostpone
	EffectSubstitute
	EffectCreateMakeup
)

type requirement int

const (
	requiresNothing requirement = iota
	requiresTargetDate
	requiresReplacement
)

type edge struct {
	from, to model.SessionStatus
}

type rule struct {
	requires     requirement
	workflowOnly bool
	effect       Effect
}

// transitions is the complete lifecycle. Nothing leads back to planned.
var transitions = map[edge]rule{
	{model.SessionPlanned, model.SessionCancelled}:     {requires: requiresNothing, effect: EffectSetStatus},
	{model.SessionPlanned, model.SessionPostponed}:     {requires: requiresTargetDate, effect: EffectPostpone},
	{model.SessionPlanned, model.SessionSubstituted}:   {requires: requiresReplacement, effect: EffectSubstitute},
	{model.SessionPostponed, model.SessionMadeUp}:      {requires: requiresNothing, effect: EffectCreateMakeup},
	{model.SessionCancelled, model.SessionSubstituted}: {requires: requiresReplacement, workflowOnly: true, effect: EffectSubstitute},
}

// Plan validates moving sess to status to and returns the effect to apply.
// It has no side effects.
func Plan(sess model.Session, to model.SessionStatus, p Params, origin Origin) (Effect, error) {
	if sess.Status == to && to != model.SessionMadeUp {
		return EffectNone, nil
	}
	r, ok := transitions[edge{from: sess.Status, to: to}]
	if !ok || (r.workflowOnly && origin != OriginSubstitution) {
		return EffectNone, apperr.Validation(apperr.CodeTransitionNotAllowed,
			"session %s cannot move from %s to %s", sess.ID, sess.Status, to).
			WithMeta("from", string(sess.Status)).
			WithMeta("to", string(to))
	}

	switch r.requires {
	case requiresTargetDate:
		if p.TargetDate == nil || p.TargetDate.IsZero() {
			return EffectNone, apperr.Validation(apperr.CodeMissingParameter, "postponing requires a target date").
				WithMeta("param", "target_date")
		}
	case requiresReplacement:
		if p.ReplacementID == "" {
			return EffectNone, apperr.Validation(apperr.CodeMissingParameter, "substitution requires a replacement instructor").
				WithMeta("param", "replacement_instructor_id")
		}
	case requiresNothing:
	}

	if r.effect == EffectCreateMakeup && p.TargetDate == nil && sess.RescheduledTo == nil {
		return EffectNone, apperr.Validation(apperr.CodeMissingParameter, "make-up session needs a target date").
			WithMeta("param", "target_date")
	}
	return r.effect, nil
}
