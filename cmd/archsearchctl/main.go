package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"archsearch/internal/builder"
	"archsearch/internal/config"
	"archsearch/internal/logging"
	"archsearch/internal/model"
	"archsearch/internal/registry"
	"archsearch/internal/storage"
	"archsearch/pkg/archsearch"
)

const defaultDBPath = "archsearch.db"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "validate":
		return runValidate(ctx, args[1:])
	case "sample":
		return runSample(ctx, args[1:])
	case "components":
		return runComponents(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "generations":
		return runGenerations(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runValidate(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment INI path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := loadPlan(*configPath)
	if err != nil {
		return err
	}

	spec := plan.Spec
	fmt.Printf("valid label=%s layout=%d->%d(%s) stopping=%s population=%s generations=%d workers=%d parameters=%d breeder=%s\n",
		spec.Label,
		spec.Layout.InputSize,
		spec.Layout.OutputSize,
		spec.Layout.OutputActivation,
		spec.Training.Stopping,
		humanize.Comma(int64(plan.Options.PopulationSize)),
		plan.Options.Generations,
		spec.Environment.Workers(),
		len(spec.Parameters.Paths()),
		plan.Breeder.Name(),
	)
	return nil
}

func runSample(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	configPath := fs.String("config", "", "experiment INI path")
	count := fs.Int("count", 3, "number of blueprints to sample")
	seed := fs.Int64("seed", 1, "rng seed")
	jsonOut := fs.Bool("json", false, "emit sampled blueprints as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count <= 0 {
		return errors.New("count must be > 0")
	}
	plan, err := loadPlan(*configPath)
	if err != nil {
		return err
	}

	spec := plan.Spec
	rng := rand.New(rand.NewSource(*seed))
	build := builder.New(spec.Parameters.Registry())
	blueprints := make([]model.Blueprint, 0, *count)
	for i := 0; i < *count; i++ {
		bp, err := spec.Parameters.SampleBlueprint(spec.Label, 0, spec.Layout, spec.Training.Description(), rng)
		if err != nil {
			return err
		}
		blueprints = append(blueprints, bp)
	}
	if *jsonOut {
		return writeJSON(blueprints)
	}
	for _, bp := range blueprints {
		m, err := build.Build(bp, model.CPUDevice(), true)
		if err != nil {
			return fmt.Errorf("blueprint %s: %w", bp.ID, err)
		}
		fmt.Printf("blueprint id=%s layers=%d %s\n", bp.ID, bp.LayerCount(), m.Summary())
	}
	return nil
}

func runComponents(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("components", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit components as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	reg, err := demoRegistry()
	if err != nil {
		return err
	}

	type layerItem struct {
		Name       string            `json:"name"`
		Custom     bool              `json:"custom"`
		Attributes map[string]string `json:"attributes"`
	}
	layers := make([]layerItem, 0, len(reg.LayerTypes()))
	for _, name := range reg.LayerTypes() {
		entry, err := reg.Layer(name)
		if err != nil {
			return err
		}
		item := layerItem{Name: name, Custom: entry.Custom, Attributes: map[string]string{}}
		for _, attr := range entry.Attributes() {
			item.Attributes[attr] = entry.Params[attr].String()
		}
		layers = append(layers, item)
	}

	if *jsonOut {
		return writeJSON(map[string]any{
			"activations":        reg.Activations(),
			"custom_activations": reg.CustomActivations(),
			"layers":             layers,
		})
	}
	fmt.Printf("activations=%s\n", strings.Join(reg.Activations(), ","))
	fmt.Printf("custom_activations=%s\n", strings.Join(reg.CustomActivations(), ","))
	for _, layer := range layers {
		attrs := make([]string, 0, len(layer.Attributes))
		for _, attr := range sortedKeys(layer.Attributes) {
			attrs = append(attrs, attr+"="+layer.Attributes[attr])
		}
		fmt.Printf("layer name=%s custom=%t %s\n", layer.Name, layer.Custom, strings.Join(attrs, " "))
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	limit := fs.Int("limit", 20, "max experiments to list")
	jsonOut := fs.Bool("json", false, "emit experiments as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Experiments(ctx, archsearch.ExperimentsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no experiments found")
		return nil
	}
	for _, item := range items {
		created := item.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339, item.CreatedAtUTC); err == nil {
			created = humanize.Time(ts)
		}
		fmt.Printf("label=%s run_id=%s created=%q population=%s generations=%d/%d best=%.6f best_id=%s\n",
			item.Label,
			item.RunID,
			created,
			humanize.Comma(int64(item.Population)),
			item.Completed,
			item.Generations,
			item.BestScore,
			item.BestID,
		)
	}
	return nil
}

func runGenerations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generations", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	label := fs.String("label", "", "experiment label")
	limit := fs.Int("limit", 0, "show only the most recent N generations (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit generation summaries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *label == "" {
		return errors.New("generations requires --label")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summaries, err := client.Generations(ctx, archsearch.GenerationsRequest{Label: *label, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summaries)
	}
	for _, s := range summaries {
		fmt.Printf("step=%d evaluated=%d failed=%d best=%.6f mean=%.6f std=%.6f best_id=%s\n",
			s.Step, s.Evaluated, s.Failed, s.Best, s.Mean, s.StdDev, s.BestID)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	label := fs.String("label", "", "experiment label")
	step := fs.Int("step", -1, "generation step (-1 selects the latest)")
	deviceName := fs.String("device", "cpu", "device to build on: cpu|gpu:N")
	compile := fs.Bool("compile", false, "resolve objective, optimizer and metric")
	jsonOut := fs.Bool("json", false, "emit best blueprint as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *label == "" {
		return errors.New("best requires --label")
	}
	device, err := parseDevice(*deviceName)
	if err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	m, best, err := client.LoadBestModel(ctx, *label, *step, device, *compile)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(best)
	}
	fmt.Printf("best label=%s step=%d id=%s score=%.6f epochs=%d\n", *label, best.Blueprint.Generation, best.Blueprint.ID, best.Score, best.Epochs)
	fmt.Println(m.Summary())
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	label := fs.String("label", "", "experiment label")
	outDir := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *label == "" {
		return errors.New("export requires --label")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, archsearch.ExportRequest{Label: *label, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported label=%s files=%d dir=%s\n", summary.Label, len(summary.Files), summary.Directory)
	return nil
}

func loadPlan(path string) (config.Plan, error) {
	if path == "" {
		return config.Plan{}, errors.New("--config is required")
	}
	reg, err := demoRegistry()
	if err != nil {
		return config.Plan{}, err
	}
	file, err := config.Load(path)
	if err != nil {
		return config.Plan{}, err
	}
	return file.Assemble(reg)
}

func newClient(storeKind, dbPath string) (*archsearch.Client, error) {
	reg, err := demoRegistry()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New("WARN", os.Stderr)
	if err != nil {
		return nil, err
	}
	return archsearch.New(archsearch.Options{
		StoreKind: storeKind,
		DBPath:    dbPath,
		Registry:  reg,
		Logger:    logger,
	})
}

func demoRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := registerDemoComponents(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// parseDevice reads "cpu", "gpu" or "gpu:N".
func parseDevice(name string) (model.Device, error) {
	kind, index, hasIndex := strings.Cut(strings.ToLower(strings.TrimSpace(name)), ":")
	switch kind {
	case string(model.DeviceCPU):
		if hasIndex {
			return model.Device{}, fmt.Errorf("cpu device takes no index: %s", name)
		}
		return model.CPUDevice(), nil
	case string(model.DeviceGPU):
		if !hasIndex {
			return model.GPUDevice(0), nil
		}
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 {
			return model.Device{}, fmt.Errorf("invalid gpu index: %s", name)
		}
		return model.GPUDevice(n), nil
	default:
		return model.Device{}, fmt.Errorf("unsupported device: %s", name)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: archsearchctl <validate|sample|components|runs|generations|best|export> [flags]", msg)
}
