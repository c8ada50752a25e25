package storage

import (
	"context"

	"archsearch/internal/model"
)

// Store persists experiment headers, scored generations keyed by
// (label, step), and per-label generation summaries.
type Store interface {
	Init(ctx context.Context) error
	SaveExperiment(ctx context.Context, record model.ExperimentRecord) error
	GetExperiment(ctx context.Context, label string) (model.ExperimentRecord, bool, error)
	ListExperiments(ctx context.Context) ([]model.ExperimentRecord, error)
	SaveGeneration(ctx context.Context, label string, step int, scored []model.ScoredBlueprint) error
	GetGeneration(ctx context.Context, label string, step int) ([]model.ScoredBlueprint, bool, error)
	LatestStep(ctx context.Context, label string) (int, bool, error)
	SaveSummaries(ctx context.Context, label string, summaries []model.GenerationSummary) error
	GetSummaries(ctx context.Context, label string) ([]model.GenerationSummary, bool, error)
}
