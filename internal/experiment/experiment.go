package experiment

import (
	"errors"
	"fmt"
	"strings"

	"archsearch/internal/model"
	"archsearch/internal/space"
	"archsearch/internal/training"
)

// Spec is the unit submitted to a search engine.
type Spec struct {
	Label       string
	Layout      model.Layout
	Training    training.Spec
	Data        DataSources
	Environment Environment
	Parameters  *space.ParameterSpace
}

func New(label string, layout model.Layout, train training.Spec, data DataSources, env Environment, parameters *space.ParameterSpace) (Spec, error) {
	spec := Spec{
		Label:       strings.TrimSpace(label),
		Layout:      layout,
		Training:    train,
		Data:        data,
		Environment: env,
		Parameters:  parameters,
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

func (s Spec) Validate() error {
	if s.Label == "" {
		return errors.New("experiment label is required")
	}
	if strings.ContainsAny(s.Label, `/\`) {
		return fmt.Errorf("experiment label %q must not contain path separators", s.Label)
	}
	if s.Layout.InputSize <= 0 || s.Layout.OutputSize <= 0 {
		return fmt.Errorf("%w: experiment %s", model.ErrInvalidLayout, s.Label)
	}
	if s.Training.BatchSize <= 0 {
		return fmt.Errorf("%w: experiment %s", training.ErrInvalidBatchSize, s.Label)
	}
	if err := s.Training.Stopping.Validate(); err != nil {
		return err
	}
	if s.Environment.IsZero() {
		return fmt.Errorf("%w: experiment %s has no environment", ErrInvalidEnvironment, s.Label)
	}
	if s.Parameters == nil {
		return errors.New("experiment parameters are required")
	}
	if reg := s.Parameters.Registry(); reg != nil {
		if _, err := reg.Activation(s.Layout.OutputActivation); err != nil {
			return fmt.Errorf("experiment %s layout output activation: %w", s.Label, err)
		}
	}
	if err := s.Parameters.Validate(); err != nil {
		return fmt.Errorf("experiment %s parameters: %w", s.Label, err)
	}
	if s.Data.Train != nil || s.Data.Validation != nil {
		if err := s.Data.Validate(); err != nil {
			return fmt.Errorf("experiment %s data: %w", s.Label, err)
		}
	}
	return nil
}
