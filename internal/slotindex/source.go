package slotindex

import (
	"context"

	"classroom/internal/model"
)

// SourceFuncs adapts plain repository methods to Source.
type SourceFuncs struct {
	SessionFn               func(ctx context.Context, id string) (model.Session, error)
	SubstitutionFn          func(ctx context.Context, id string) (model.SubstitutionRequest, error)
	AllSessionsFn           func(ctx context.Context) ([]model.Session, error)
	AcceptedSubstitutionsFn func(ctx context.Context) ([]model.SubstitutionRequest, error)
}

func (f SourceFuncs) Session(ctx context.Context, id string) (model.Session, error) {
	return f.SessionFn(ctx, id)
}

func (f SourceFuncs) Substitution(ctx context.Context, id string) (model.SubstitutionRequest, error) {
	return f.SubstitutionFn(ctx, id)
}

func (f SourceFuncs) AllSessions(ctx context.Context) ([]model.Session, error) {
	return f.AllSessionsFn(ctx)
}

func (f SourceFuncs) AcceptedSubstitutions(ctx context.Context) ([]model.SubstitutionRequest, error) {
	return f.AcceptedSubstitutionsFn(ctx)
}
