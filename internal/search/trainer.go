package search

import (
	"context"
	"errors"

	"archsearch/internal/builder"
	"archsearch/internal/experiment"
	"archsearch/internal/model"
	"archsearch/internal/training"
)

// Candidate is one blueprint handed to a trainer together with its
// instantiated model and a stopping condition nobody else holds.
type Candidate struct {
	Blueprint model.Blueprint
	Model     *builder.Model
	Training  training.Spec
	Stopping  training.Condition
	Data      experiment.DataSources
	Device    model.Device
}

// Trainer fits a candidate and reports its score. Implementations own the
// numeric side (forward/backward passes, optimizer state).
type Trainer interface {
	Train(ctx context.Context, candidate Candidate) (training.Outcome, error)
}

type TrainerFunc func(ctx context.Context, candidate Candidate) (training.Outcome, error)

func (f TrainerFunc) Train(ctx context.Context, candidate Candidate) (training.Outcome, error) {
	return f(ctx, candidate)
}

// EpochFunc trains one epoch of a candidate and returns its validation
// accuracy.
type EpochFunc func(ctx context.Context, candidate Candidate, epoch int) (float64, error)

// EpochTrainer drives an EpochFunc with the candidate's stopping condition.
type EpochTrainer struct {
	Epoch EpochFunc
}

func (t EpochTrainer) Train(ctx context.Context, candidate Candidate) (training.Outcome, error) {
	if t.Epoch == nil {
		return training.Outcome{}, errors.New("epoch function is required")
	}
	if candidate.Stopping == nil {
		return training.Outcome{}, errors.New("candidate stopping condition is required")
	}
	return training.Run(ctx, candidate.Stopping, func(ctx context.Context, epoch int) (float64, error) {
		return t.Epoch(ctx, candidate, epoch)
	})
}
