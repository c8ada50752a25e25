package archsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"archsearch/internal/builder"
	"archsearch/internal/config"
	"archsearch/internal/experiment"
	"archsearch/internal/logging"
	"archsearch/internal/model"
	"archsearch/internal/registry"
	"archsearch/internal/search"
	"archsearch/internal/stats"
	"archsearch/internal/storage"
)

const (
	defaultDBPath     = "archsearch.db"
	defaultExportsDir = "exports"
)

type Options struct {
	StoreKind string
	DBPath    string
	// Registry holds built-in and custom components. A fresh registry with
	// built-ins only is used when nil.
	Registry *registry.Registry
	Logger   *slog.Logger
}

type Client struct {
	store    storage.Store
	registry *registry.Registry
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
}

type SearchRequest struct {
	Spec    experiment.Spec
	Options search.Options
	Trainer search.Trainer
	// Breeder defaults to resampling every generation.
	Breeder search.Breeder
	Data    experiment.Provider
}

type ExperimentsRequest struct {
	Limit int
}

type ExperimentItem struct {
	Label        string  `json:"label"`
	RunID        string  `json:"run_id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Population   int     `json:"population_size"`
	Generations  int     `json:"generations"`
	Completed    int     `json:"completed_generations"`
	BestScore    float64 `json:"best_score"`
	BestID       string  `json:"best_id,omitempty"`
}

type GenerationsRequest struct {
	Label string
	Limit int
}

type ExportRequest struct {
	Label  string
	OutDir string
}

type ExportSummary struct {
	Label     string
	Directory string
	Files     []string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = logging.New("INFO", os.Stderr); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:    store,
		registry: reg,
		logger:   logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Registry() *registry.Registry { return c.registry }

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureStore(ctx)
	return err
}

// Search runs a validated experiment to completion, persisting every
// generation.
func (c *Client) Search(ctx context.Context, req SearchRequest) (search.RunSummary, error) {
	if req.Trainer == nil {
		return search.RunSummary{}, errors.New("search requires a trainer")
	}
	if req.Spec.Parameters != nil && req.Spec.Parameters.Registry() != c.registry {
		return search.RunSummary{}, errors.New("experiment parameters were built against a different registry")
	}
	store, err := c.ensureStore(ctx)
	if err != nil {
		return search.RunSummary{}, err
	}
	engine := &search.Engine{
		Store:   store,
		Trainer: req.Trainer,
		Breeder: req.Breeder,
		Data:    req.Data,
		Logger:  c.logger,
	}
	return engine.Run(ctx, req.Spec, req.Options)
}

// SearchConfig assembles an INI experiment file against the client's
// registry and runs it.
func (c *Client) SearchConfig(ctx context.Context, path string, trainer search.Trainer) (search.RunSummary, error) {
	plan, err := c.LoadConfig(path)
	if err != nil {
		return search.RunSummary{}, err
	}
	return c.Search(ctx, SearchRequest{
		Spec:    plan.Spec,
		Options: plan.Options,
		Trainer: trainer,
		Breeder: plan.Breeder,
	})
}

func (c *Client) LoadConfig(path string) (config.Plan, error) {
	file, err := config.Load(path)
	if err != nil {
		return config.Plan{}, err
	}
	return file.Assemble(c.registry)
}

// LoadBestBlueprint returns the best blueprint of a generation. A negative
// step selects the latest persisted one.
func (c *Client) LoadBestBlueprint(ctx context.Context, label string, step int) (model.ScoredBlueprint, error) {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return model.ScoredBlueprint{}, err
	}
	return search.LoadBestBlueprint(ctx, store, label, step)
}

// LoadBestModel rebuilds the best blueprint of a generation on device.
func (c *Client) LoadBestModel(ctx context.Context, label string, step int, device model.Device, compile bool) (*builder.Model, model.ScoredBlueprint, error) {
	best, err := c.LoadBestBlueprint(ctx, label, step)
	if err != nil {
		return nil, model.ScoredBlueprint{}, err
	}
	m, err := builder.New(c.registry).Build(best.Blueprint, device, compile)
	if err != nil {
		return nil, model.ScoredBlueprint{}, err
	}
	return m, best, nil
}

func (c *Client) Experiments(ctx context.Context, req ExperimentsRequest) ([]ExperimentItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	store, err := c.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	records, err := store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}

	out := make([]ExperimentItem, 0, len(records))
	for _, record := range records {
		item := ExperimentItem{
			Label:        record.Label,
			RunID:        record.RunID,
			CreatedAtUTC: record.CreatedAt.UTC().Format(time.RFC3339),
			Population:   record.PopulationSize,
			Generations:  record.Generations,
		}
		summaries, ok, err := store.GetSummaries(ctx, record.Label)
		if err != nil {
			return nil, err
		}
		if ok {
			item.Completed = len(summaries)
			for _, summary := range summaries {
				if summary.BestID == "" {
					continue
				}
				if item.BestID == "" || summary.Best > item.BestScore {
					item.BestScore = summary.Best
					item.BestID = summary.BestID
				}
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) Experiment(ctx context.Context, label string) (model.ExperimentRecord, error) {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return model.ExperimentRecord{}, err
	}
	record, ok, err := store.GetExperiment(ctx, label)
	if err != nil {
		return model.ExperimentRecord{}, err
	}
	if !ok {
		return model.ExperimentRecord{}, fmt.Errorf("%w: %s", search.ErrUnknownExperiment, label)
	}
	return record, nil
}

// Generations returns the per-generation summaries of label, oldest first.
// Limit keeps only the most recent entries.
func (c *Client) Generations(ctx context.Context, req GenerationsRequest) ([]model.GenerationSummary, error) {
	if req.Label == "" {
		return nil, errors.New("generations requires a label")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	store, err := c.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	summaries, ok, err := store.GetSummaries(ctx, req.Label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", search.ErrUnknownExperiment, req.Label)
	}
	if req.Limit > 0 && len(summaries) > req.Limit {
		summaries = summaries[len(summaries)-req.Limit:]
	}
	return summaries, nil
}

// Export writes the experiment header, summaries, every generation and the
// overall best blueprint of a label as files under OutDir.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.Label == "" {
		return ExportSummary{}, errors.New("export requires a label")
	}
	if req.OutDir == "" {
		req.OutDir = defaultExportsDir
	}
	record, err := c.Experiment(ctx, req.Label)
	if err != nil {
		return ExportSummary{}, err
	}
	store, err := c.ensureStore(ctx)
	if err != nil {
		return ExportSummary{}, err
	}

	artifacts := stats.ExperimentArtifacts{
		Experiment:  record,
		Generations: map[int][]model.ScoredBlueprint{},
	}
	if summaries, ok, err := store.GetSummaries(ctx, req.Label); err != nil {
		return ExportSummary{}, err
	} else if ok {
		artifacts.Summaries = summaries
	}
	for _, summary := range artifacts.Summaries {
		scored, ok, err := store.GetGeneration(ctx, req.Label, summary.Step)
		if err != nil {
			return ExportSummary{}, err
		}
		if !ok {
			continue
		}
		artifacts.Generations[summary.Step] = scored
		for _, item := range scored {
			if item.Failed() {
				continue
			}
			if artifacts.Best == nil || item.Score > artifacts.Best.Score {
				best := item
				artifacts.Best = &best
			}
		}
	}

	dir, files, err := stats.WriteExperimentArtifacts(req.OutDir, artifacts)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{Label: req.Label, Directory: filepath.Clean(dir), Files: files}, nil
}

func (c *Client) ensureStore(ctx context.Context) (storage.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return c.store, nil
	}
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	c.initialized = true
	return c.store, nil
}
