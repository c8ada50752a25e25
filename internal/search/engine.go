package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"archsearch/internal/builder"
	"archsearch/internal/experiment"
	"archsearch/internal/logging"
	"archsearch/internal/model"
	"archsearch/internal/storage"
	"archsearch/internal/training"
)

var (
	ErrExperimentExists  = errors.New("experiment already has persisted generations")
	ErrUnknownExperiment = errors.New("unknown experiment")
	ErrNoResults         = errors.New("no successful blueprint")
	ErrCandidateFailed   = errors.New("candidate failed")
)

type Options struct {
	PopulationSize int
	Generations    int
	Resume         bool
	LogLevel       string
	Seed           int64
	AbortOnError   bool
	// VocabularyCap is forwarded to the engine's data provider.
	VocabularyCap int
}

func (o Options) Validate() error {
	if o.PopulationSize <= 0 {
		return fmt.Errorf("population size must be > 0")
	}
	if o.Generations <= 0 {
		return fmt.Errorf("generations must be > 0")
	}
	if _, err := logging.ParseLevel(o.LogLevel); err != nil {
		return err
	}
	return nil
}

type RunSummary struct {
	Label     string
	RunID     string
	FirstStep int
	LastStep  int
	Summaries []model.GenerationSummary
	Best      model.ScoredBlueprint
}

// Engine drives a population of candidates through generations: breed,
// build, train in parallel, rank, persist.
type Engine struct {
	Store   storage.Store
	Trainer Trainer
	Breeder Breeder
	// Data, when set, gives every worker its own data sources. Without it
	// each worker clones the experiment's iterators.
	Data   experiment.Provider
	Logger *slog.Logger
}

func (e *Engine) Run(ctx context.Context, spec experiment.Spec, opts Options) (RunSummary, error) {
	if e.Store == nil {
		return RunSummary{}, fmt.Errorf("store is required")
	}
	if e.Trainer == nil {
		return RunSummary{}, fmt.Errorf("trainer is required")
	}
	if err := spec.Validate(); err != nil {
		return RunSummary{}, err
	}
	if err := opts.Validate(); err != nil {
		return RunSummary{}, err
	}
	logger := e.Logger
	if logger == nil {
		var err error
		if logger, err = logging.New(opts.LogLevel, os.Stderr); err != nil {
			return RunSummary{}, err
		}
	}
	breeder := e.Breeder
	if breeder == nil {
		breeder = ResampleBreeder{}
	}
	logger = logger.With("experiment", spec.Label)

	if e.Data == nil && !spec.Data.IsZero() && poolSize(spec.Environment, opts.PopulationSize) > 1 {
		if _, err := spec.Data.Clone(); err != nil {
			return RunSummary{}, fmt.Errorf("%w; supply a data provider or iterators that implement Clone", err)
		}
	}

	run, err := e.prepare(ctx, spec, opts)
	if err != nil {
		return RunSummary{}, err
	}
	logger.Info("search started",
		"run_id", run.summary.RunID,
		"first_step", run.summary.FirstStep,
		"generations", opts.Generations,
		"population", opts.PopulationSize,
		"workers", spec.Environment.Workers(),
		"breeder", breeder.Name(),
	)

	rng := rand.New(rand.NewSource(opts.Seed + int64(run.summary.FirstStep)))
	build := builder.New(spec.Parameters.Registry())
	desc := spec.Training.Description()
	for step := run.summary.FirstStep; step < opts.Generations; step++ {
		if err := ctx.Err(); err != nil {
			return RunSummary{}, err
		}

		blueprints, err := breeder.Next(ctx, BreedRequest{
			Label:    spec.Label,
			Step:     step,
			Size:     opts.PopulationSize,
			Layout:   spec.Layout,
			Training: desc,
		}, run.ranked, spec.Parameters, rng)
		if err != nil {
			return RunSummary{}, fmt.Errorf("breed generation %d: %w", step, err)
		}

		scored, err := e.evaluatePopulation(ctx, spec, build, blueprints, opts, logger)
		if err != nil {
			return RunSummary{}, fmt.Errorf("generation %d: %w", step, err)
		}
		rankScored(scored)
		if err := e.Store.SaveGeneration(ctx, spec.Label, step, scored); err != nil {
			return RunSummary{}, fmt.Errorf("save generation %d: %w", step, err)
		}

		summary := summarizeGeneration(step, scored)
		run.summary.Summaries = append(run.summary.Summaries, summary)
		if err := e.Store.SaveSummaries(ctx, spec.Label, run.summary.Summaries); err != nil {
			return RunSummary{}, fmt.Errorf("save summaries: %w", err)
		}
		if len(scored) > 0 && !scored[0].Failed() && (run.summary.Best.Blueprint.ID == "" || scored[0].Score > run.summary.Best.Score) {
			run.summary.Best = scored[0]
		}
		run.summary.LastStep = step
		run.ranked = scored

		logger.Info("generation evaluated",
			"step", step,
			"evaluated", summary.Evaluated,
			"failed", summary.Failed,
			"best", summary.Best,
			"mean", summary.Mean,
			"std_dev", summary.StdDev,
			"best_id", summary.BestID,
		)
	}

	logger.Info("search finished", "last_step", run.summary.LastStep, "best_score", run.summary.Best.Score, "best_id", run.summary.Best.Blueprint.ID)
	return run.summary, nil
}

type runState struct {
	summary RunSummary
	ranked  []model.ScoredBlueprint
}

// prepare persists the experiment header, or restores the state of the
// last persisted step when resuming.
func (e *Engine) prepare(ctx context.Context, spec experiment.Spec, opts Options) (runState, error) {
	latest, found, err := e.Store.LatestStep(ctx, spec.Label)
	if err != nil {
		return runState{}, err
	}
	if found && !opts.Resume {
		return runState{}, fmt.Errorf("%w: %s (step %d); resume or choose another label", ErrExperimentExists, spec.Label, latest)
	}

	state := runState{summary: RunSummary{Label: spec.Label, LastStep: -1}}
	if found {
		record, ok, err := e.Store.GetExperiment(ctx, spec.Label)
		if err != nil {
			return runState{}, err
		}
		if !ok {
			return runState{}, fmt.Errorf("%w: %s", ErrUnknownExperiment, spec.Label)
		}
		ranked, _, err := e.Store.GetGeneration(ctx, spec.Label, latest)
		if err != nil {
			return runState{}, err
		}
		summaries, _, err := e.Store.GetSummaries(ctx, spec.Label)
		if err != nil {
			return runState{}, err
		}
		state.ranked = ranked
		state.summary.RunID = record.RunID
		state.summary.FirstStep = latest + 1
		state.summary.LastStep = latest
		state.summary.Summaries = summaries
		state.summary.Best = bestOf(ranked)
		return state, nil
	}

	stopping, err := training.EncodeStoppingSpec(spec.Training.Stopping)
	if err != nil {
		return runState{}, err
	}
	record := model.ExperimentRecord{
		VersionedRecord: model.CurrentVersion(),
		Label:           spec.Label,
		RunID:           uuid.NewString(),
		Layout:          spec.Layout,
		Training:        spec.Training.Description(),
		Stopping:        stopping,
		Parameters:      spec.Parameters.Snapshot(),
		Environment:     spec.Environment.Record(),
		PopulationSize:  opts.PopulationSize,
		Generations:     opts.Generations,
		Seed:            opts.Seed,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.Store.SaveExperiment(ctx, record); err != nil {
		return runState{}, fmt.Errorf("save experiment: %w", err)
	}
	state.summary.RunID = record.RunID
	return state, nil
}

// rankScored orders successful candidates by descending score, failed
// candidates last.
func rankScored(scored []model.ScoredBlueprint) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Failed() != scored[j].Failed() {
			return !scored[i].Failed()
		}
		return scored[i].Score > scored[j].Score
	})
}

func bestOf(scored []model.ScoredBlueprint) model.ScoredBlueprint {
	var best model.ScoredBlueprint
	found := false
	for _, item := range scored {
		if item.Failed() {
			continue
		}
		if !found || item.Score > best.Score {
			best, found = item, true
		}
	}
	return best
}

// LoadBestBlueprint returns the top scoring successful blueprint persisted
// for step. A negative step selects the latest one.
func LoadBestBlueprint(ctx context.Context, store storage.Store, label string, step int) (model.ScoredBlueprint, error) {
	if step < 0 {
		latest, ok, err := store.LatestStep(ctx, label)
		if err != nil {
			return model.ScoredBlueprint{}, err
		}
		if !ok {
			return model.ScoredBlueprint{}, fmt.Errorf("%w: %s", ErrUnknownExperiment, label)
		}
		step = latest
	}
	scored, ok, err := store.GetGeneration(ctx, label, step)
	if err != nil {
		return model.ScoredBlueprint{}, err
	}
	if !ok {
		return model.ScoredBlueprint{}, fmt.Errorf("%w: %s step %d", ErrUnknownExperiment, label, step)
	}
	best := bestOf(scored)
	if best.Blueprint.ID == "" {
		return model.ScoredBlueprint{}, fmt.Errorf("%w: %s step %d", ErrNoResults, label, step)
	}
	return best, nil
}
