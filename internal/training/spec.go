package training

import (
	"errors"
	"fmt"

	"archsearch/internal/model"
)

var ErrInvalidBatchSize = errors.New("invalid batch size")

// ComponentResolver validates training component names.
type ComponentResolver interface {
	Objective(name string) error
	Optimizer(name string) error
	Metric(name string) error
}

// Spec is the training regimen shared read-only by every candidate of an
// experiment. Conditions are built per run through Stopping.New.
type Spec struct {
	Objective model.Objective
	Optimizer model.Optimizer
	Metric    model.Metric
	Stopping  StoppingSpec
	BatchSize int
}

func NewSpec(resolver ComponentResolver, objective model.Objective, optimizer model.Optimizer, metric model.Metric, stopping StoppingSpec, batchSize int) (Spec, error) {
	if batchSize <= 0 {
		return Spec{}, fmt.Errorf("%w: batch_size must be > 0, got %d", ErrInvalidBatchSize, batchSize)
	}
	if err := resolver.Objective(objective.Name); err != nil {
		return Spec{}, err
	}
	if err := resolver.Optimizer(optimizer.Name); err != nil {
		return Spec{}, err
	}
	if err := resolver.Metric(metric.Name); err != nil {
		return Spec{}, err
	}
	if err := stopping.Validate(); err != nil {
		return Spec{}, err
	}

	config := make(map[string]float64, len(optimizer.Config))
	for k, v := range optimizer.Config {
		config[k] = v
	}
	optimizer.Config = config

	return Spec{
		Objective: objective,
		Optimizer: optimizer,
		Metric:    metric,
		Stopping:  stopping,
		BatchSize: batchSize,
	}, nil
}

// NewCondition returns a condition no other run shares.
func (s Spec) NewCondition() Condition {
	return s.Stopping.New()
}

func (s Spec) Description() model.TrainingDescription {
	config := make(map[string]float64, len(s.Optimizer.Config))
	for k, v := range s.Optimizer.Config {
		config[k] = v
	}
	return model.TrainingDescription{
		Objective: s.Objective,
		Optimizer: model.Optimizer{Name: s.Optimizer.Name, Config: config},
		Metric:    s.Metric,
		BatchSize: s.BatchSize,
	}
}
