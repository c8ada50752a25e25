package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"archsearch/internal/builder"
	"archsearch/internal/experiment"
	"archsearch/internal/model"
)

// evaluatePopulation builds and trains blueprints on a worker pool sized
// by the environment. Each worker is pinned to one device. Results keep
// the input order.
func (e *Engine) evaluatePopulation(ctx context.Context, spec experiment.Spec, build *builder.Builder, population []model.Blueprint, opts Options, logger *slog.Logger) ([]model.ScoredBlueprint, error) {
	type job struct {
		idx       int
		blueprint model.Blueprint
	}
	type result struct {
		idx    int
		scored model.ScoredBlueprint
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := poolSize(spec.Environment, len(population))

	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortOnce sync.Once
		abortErr  error
	)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		device := spec.Environment.DeviceFor(w)
		go func(worker int) {
			defer wg.Done()
			data, dataErr := e.workerData(spec, opts, workerCount)
			if dataErr != nil {
				dataErr = fmt.Errorf("worker %d data: %w", worker, dataErr)
			}
			for j := range jobs {
				if err := evalCtx.Err(); err != nil {
					results <- result{idx: j.idx, scored: failed(j.blueprint, err)}
					continue
				}
				if dataErr != nil {
					results <- result{idx: j.idx, scored: failed(j.blueprint, dataErr)}
					continue
				}
				scored := e.evaluateBlueprint(evalCtx, spec, build, j.blueprint, device, data)
				if scored.Failed() {
					logger.Warn("candidate failed", "blueprint", j.blueprint.ID, "device", device.String(), "error", scored.Error)
					if opts.AbortOnError {
						abortOnce.Do(func() {
							abortErr = fmt.Errorf("%w: blueprint %s: %s", ErrCandidateFailed, j.blueprint.ID, scored.Error)
							cancel()
						})
					}
				} else {
					logger.Debug("candidate trained", "blueprint", j.blueprint.ID, "device", device.String(), "score", scored.Score, "epochs", scored.Epochs)
				}
				results <- result{idx: j.idx, scored: scored}
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for i := range population {
			select {
			case jobs <- job{idx: i, blueprint: population[i]}:
			case <-evalCtx.Done():
				for ; i < len(population); i++ {
					results <- result{idx: i, scored: failed(population[i], evalCtx.Err())}
				}
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if abortErr != nil {
		return nil, abortErr
	}

	scored := make([]model.ScoredBlueprint, len(population))
	for res := range results {
		scored[res.idx] = res.scored
	}
	return scored, nil
}

func poolSize(env experiment.Environment, population int) int {
	workers := env.Workers()
	if workers > population {
		workers = population
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// workerData returns the data sources one worker trains on. The provider
// loads fresh sources per worker; otherwise the experiment's iterators are
// cloned, and only a single worker may use them uncloned.
func (e *Engine) workerData(spec experiment.Spec, opts Options, workers int) (experiment.DataSources, error) {
	if e.Data != nil {
		return e.Data.Load(spec.Training.BatchSize, opts.VocabularyCap)
	}
	if spec.Data.IsZero() {
		return spec.Data, nil
	}
	data, err := spec.Data.Clone()
	if err != nil {
		if workers == 1 {
			return spec.Data, nil
		}
		return experiment.DataSources{}, err
	}
	return data, nil
}

func (e *Engine) evaluateBlueprint(ctx context.Context, spec experiment.Spec, build *builder.Builder, bp model.Blueprint, device model.Device, data experiment.DataSources) model.ScoredBlueprint {
	m, err := build.Build(bp, device, true)
	if err != nil {
		return failed(bp, fmt.Errorf("build: %w", err))
	}
	outcome, err := e.Trainer.Train(ctx, Candidate{
		Blueprint: bp,
		Model:     m,
		Training:  spec.Training,
		Stopping:  spec.Training.NewCondition(),
		Data:      data,
		Device:    device,
	})
	if err != nil {
		return failed(bp, fmt.Errorf("train: %w", err))
	}
	if math.IsNaN(outcome.Score) || math.IsInf(outcome.Score, 0) {
		return failed(bp, fmt.Errorf("train: non-finite score %v", outcome.Score))
	}
	return model.ScoredBlueprint{
		Blueprint: bp,
		Score:     outcome.Score,
		Epochs:    outcome.Epochs,
		History:   outcome.History,
	}
}

func failed(bp model.Blueprint, err error) model.ScoredBlueprint {
	return model.ScoredBlueprint{Blueprint: bp, Error: err.Error()}
}

// summarizeGeneration expects scored ranked with successes first.
func summarizeGeneration(step int, scored []model.ScoredBlueprint) model.GenerationSummary {
	summary := model.GenerationSummary{Step: step, Evaluated: len(scored)}
	scores := make([]float64, 0, len(scored))
	for _, item := range scored {
		if item.Failed() {
			summary.Failed++
			continue
		}
		scores = append(scores, item.Score)
	}
	if len(scores) == 0 {
		return summary
	}
	summary.Best = scores[0]
	summary.BestID = scored[0].Blueprint.ID
	if len(scores) == 1 {
		summary.Mean = scores[0]
		return summary
	}
	summary.Mean, summary.StdDev = stat.MeanStdDev(scores, nil)
	return summary
}
