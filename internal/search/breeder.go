package search

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"archsearch/internal/model"
)

// Sampler draws fresh blueprints from a parameter space.
type Sampler interface {
	SampleBlueprint(label string, generation int, layout model.Layout, training model.TrainingDescription, rng *rand.Rand) (model.Blueprint, error)
}

// BreedRequest describes the generation a breeder must fill.
type BreedRequest struct {
	Label    string
	Step     int
	Size     int
	Layout   model.Layout
	Training model.TrainingDescription
}

// Breeder produces the blueprints of the next generation from the ranked
// results of the previous one. ranked is empty for the first generation.
type Breeder interface {
	Name() string
	Next(ctx context.Context, req BreedRequest, ranked []model.ScoredBlueprint, sampler Sampler, rng *rand.Rand) ([]model.Blueprint, error)
}

// ResampleBreeder ignores history and samples every generation afresh.
type ResampleBreeder struct{}

func (ResampleBreeder) Name() string { return "resample" }

func (ResampleBreeder) Next(ctx context.Context, req BreedRequest, _ []model.ScoredBlueprint, sampler Sampler, rng *rand.Rand) ([]model.Blueprint, error) {
	return sampleN(ctx, req, req.Size, sampler, rng)
}

// EliteBreeder carries the top Count successful blueprints into the next
// generation unchanged and resamples the remainder.
type EliteBreeder struct {
	Count int
}

func (EliteBreeder) Name() string { return "elite" }

func (b EliteBreeder) Next(ctx context.Context, req BreedRequest, ranked []model.ScoredBlueprint, sampler Sampler, rng *rand.Rand) ([]model.Blueprint, error) {
	if b.Count < 0 {
		return nil, fmt.Errorf("invalid elite count: %d", b.Count)
	}
	out := make([]model.Blueprint, 0, req.Size)
	for _, item := range ranked {
		if len(out) >= b.Count || len(out) >= req.Size {
			break
		}
		if item.Failed() {
			continue
		}
		carried := item.Blueprint
		carried.ID = uuid.NewString()
		carried.Generation = req.Step
		out = append(out, carried)
	}
	fresh, err := sampleN(ctx, req, req.Size-len(out), sampler, rng)
	if err != nil {
		return nil, err
	}
	return append(out, fresh...), nil
}

func sampleN(ctx context.Context, req BreedRequest, n int, sampler Sampler, rng *rand.Rand) ([]model.Blueprint, error) {
	if sampler == nil {
		return nil, fmt.Errorf("sampler is required")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	out := make([]model.Blueprint, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bp, err := sampler.SampleBlueprint(req.Label, req.Step, req.Layout, req.Training, rng)
		if err != nil {
			return nil, fmt.Errorf("sample blueprint %d of generation %d: %w", i, req.Step, err)
		}
		out = append(out, bp)
	}
	return out, nil
}

// BreederFromConfig resolves a breeder by name. elite is only read by the
// elite breeder.
func BreederFromConfig(name string, elite int) (Breeder, error) {
	switch name {
	case "", "resample":
		return ResampleBreeder{}, nil
	case "elite":
		if elite <= 0 {
			return nil, fmt.Errorf("elite breeder requires a positive elite count, got %d", elite)
		}
		return EliteBreeder{Count: elite}, nil
	default:
		return nil, fmt.Errorf("unsupported breeder: %s", name)
	}
}
