package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"archsearch/internal/model"
	"archsearch/internal/training"
)

type countingSampler struct{ n int }

func (s *countingSampler) SampleBlueprint(label string, generation int, layout model.Layout, desc model.TrainingDescription, _ *rand.Rand) (model.Blueprint, error) {
	s.n++
	return model.Blueprint{
		VersionedRecord: model.CurrentVersion(),
		ID:              fmt.Sprintf("fresh-%d", s.n),
		Label:           label,
		Generation:      generation,
		Layout:          layout,
		Training:        desc,
	}, nil
}

func TestResampleBreederSamplesWholeGeneration(t *testing.T) {
	sampler := &countingSampler{}
	req := BreedRequest{Label: "x", Step: 2, Size: 5}
	out, err := ResampleBreeder{}.Next(context.Background(), req, nil, sampler, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, out, 5)
	for _, bp := range out {
		require.Equal(t, 2, bp.Generation)
	}
}

func TestEliteBreederCarriesTopSuccesses(t *testing.T) {
	ranked := []model.ScoredBlueprint{
		{Blueprint: model.Blueprint{ID: "best", Generation: 0}, Score: 0.9},
		{Blueprint: model.Blueprint{ID: "second", Generation: 0}, Score: 0.7},
		{Blueprint: model.Blueprint{ID: "third", Generation: 0}, Score: 0.5},
		{Blueprint: model.Blueprint{ID: "broken"}, Error: "boom"},
	}
	sampler := &countingSampler{}
	out, err := EliteBreeder{Count: 2}.Next(context.Background(), BreedRequest{Label: "x", Step: 1, Size: 4}, ranked, sampler, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Equal(t, 2, sampler.n)
	for _, bp := range out[:2] {
		require.Equal(t, 1, bp.Generation)
		require.NotEqual(t, "best", bp.ID)
		require.NotEqual(t, "second", bp.ID)
	}
	require.Equal(t, "fresh-1", out[2].ID)

	// failed candidates are never carried
	out, err = EliteBreeder{Count: 4}.Next(context.Background(), BreedRequest{Step: 1, Size: 4}, ranked[3:], &countingSampler{}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, "fresh-1", out[0].ID)
}

func TestBreederFromConfig(t *testing.T) {
	b, err := BreederFromConfig("", 0)
	require.NoError(t, err)
	require.Equal(t, "resample", b.Name())

	b, err = BreederFromConfig("elite", 3)
	require.NoError(t, err)
	require.Equal(t, EliteBreeder{Count: 3}, b)

	_, err = BreederFromConfig("elite", 0)
	require.Error(t, err)
	_, err = BreederFromConfig("crossover", 1)
	require.Error(t, err)
}

func TestEpochTrainerUsesCandidateCondition(t *testing.T) {
	spec, err := training.NewAccuracyDecreaseStopping(2, 10, 5)
	require.NoError(t, err)

	trainer := EpochTrainer{Epoch: func(context.Context, Candidate, int) (float64, error) { return 0.5, nil }}
	outcome, err := trainer.Train(context.Background(), Candidate{Stopping: spec.New()})
	require.NoError(t, err)
	require.Equal(t, 7, outcome.Epochs)
	require.Equal(t, 0.5, outcome.Score)

	_, err = trainer.Train(context.Background(), Candidate{})
	require.Error(t, err)

	failing := EpochTrainer{Epoch: func(context.Context, Candidate, int) (float64, error) { return 0, errors.New("nan loss") }}
	_, err = failing.Train(context.Background(), Candidate{Stopping: spec.New()})
	require.Error(t, err)
}
