// Package config loads experiment definitions from INI files.
//
// A file has six sections: [experiment], [layout], [training], [stopping],
// [environment] and [parameters]. Keys under [parameters] are parameter
// paths ("layout.blocks", "Dense.output_dim") and values use the parameter
// text form ("int(1, 2)", "choice(relu, tanh)", "0.5").
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"archsearch/internal/experiment"
	"archsearch/internal/model"
	"archsearch/internal/param"
	"archsearch/internal/registry"
	"archsearch/internal/search"
	"archsearch/internal/space"
	"archsearch/internal/training"
)

type File struct {
	Experiment  ExperimentSection
	Layout      LayoutSection
	Training    TrainingSection
	Stopping    StoppingSection
	Environment EnvironmentSection
	// Parameters keeps file order.
	Parameters []Parameter
}

type ExperimentSection struct {
	Label            string `ini:"label"`
	Population       int    `ini:"population"`
	Generations      int    `ini:"generations"`
	Resume           bool   `ini:"resume"`
	LogLevel         string `ini:"log_level"`
	Seed             int64  `ini:"seed"`
	UseDefaultValues bool   `ini:"use_default_values"`
	Breeder          string `ini:"breeder"`
	Elite            int    `ini:"elite"`
	AbortOnError     bool   `ini:"abort_on_error"`
	VocabularyCap    int    `ini:"vocabulary_cap"`
}

type LayoutSection struct {
	InputSize        int    `ini:"input_size"`
	OutputSize       int    `ini:"output_size"`
	OutputActivation string `ini:"output_activation"`
}

type TrainingSection struct {
	Objective    string  `ini:"objective"`
	Optimizer    string  `ini:"optimizer"`
	LearningRate float64 `ini:"learning_rate"`
	Metric       string  `ini:"metric"`
	BatchSize    int     `ini:"batch_size"`
}

type StoppingSection struct {
	Kind            string `ini:"kind"`
	Epoch           int    `ini:"epoch"`
	MinEpoch        int    `ini:"min_epoch"`
	MaxEpoch        int    `ini:"max_epoch"`
	NoProgressCount int    `ini:"noprogress_count"`
}

type EnvironmentSection struct {
	Kind           string `ini:"kind"`
	NJobs          int    `ini:"n_jobs"`
	Devices        []int  `ini:"devices" delim:","`
	TasksPerDevice int    `ini:"tasks_per_device"`
}

type Parameter struct {
	Path string
	Text string
}

// Default mirrors the reference Reuters experiment.
func Default() File {
	return File{
		Experiment: ExperimentSection{
			Population:       100,
			Generations:      10,
			LogLevel:         "INFO",
			UseDefaultValues: true,
			Breeder:          "resample",
		},
		Layout: LayoutSection{OutputActivation: "softmax"},
		Training: TrainingSection{
			Objective: "categorical_crossentropy",
			Optimizer: "Adam",
			Metric:    "categorical_accuracy",
			BatchSize: 32,
		},
		Stopping:    StoppingSection{Kind: training.StoppingEpoch, Epoch: 10},
		Environment: EnvironmentSection{Kind: string(model.DeviceCPU), NJobs: 1, TasksPerDevice: 1},
	}
}

// Load reads an INI file from a path or raw bytes. Keys absent from the
// file keep their Default values.
func Load(source any) (File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, source)
	if err != nil {
		return File{}, fmt.Errorf("failed to load config: %w", err)
	}

	file := Default()
	sections := []struct {
		name   string
		target any
	}{
		{"experiment", &file.Experiment},
		{"layout", &file.Layout},
		{"training", &file.Training},
		{"stopping", &file.Stopping},
		{"environment", &file.Environment},
	}
	for _, section := range sections {
		if err := cfg.Section(section.name).MapTo(section.target); err != nil {
			return File{}, fmt.Errorf("failed to map [%s] section: %w", section.name, err)
		}
	}
	for _, key := range cfg.Section("parameters").Keys() {
		file.Parameters = append(file.Parameters, Parameter{
			Path: strings.TrimSpace(key.Name()),
			Text: strings.TrimSpace(key.String()),
		})
	}
	return file, nil
}

// Plan is an assembled file, ready for a search engine.
type Plan struct {
	Spec    experiment.Spec
	Options search.Options
	Breeder search.Breeder
}

// Assemble resolves the file against reg. Every misconfiguration surfaces
// here, before any candidate is sampled.
func (f File) Assemble(reg *registry.Registry) (Plan, error) {
	layout, err := model.NewLayout(reg, f.Layout.InputSize, f.Layout.OutputSize, f.Layout.OutputActivation)
	if err != nil {
		return Plan{}, fmt.Errorf("[layout]: %w", err)
	}

	stopping, err := training.StoppingFromConfig(f.Stopping.Kind, f.Stopping.Epoch, f.Stopping.MinEpoch, f.Stopping.MaxEpoch, f.Stopping.NoProgressCount)
	if err != nil {
		return Plan{}, fmt.Errorf("[stopping]: %w", err)
	}

	optimizer := model.Optimizer{Name: f.Training.Optimizer}
	if f.Training.LearningRate > 0 {
		optimizer.Config = map[string]float64{"lr": f.Training.LearningRate}
	}
	train, err := training.NewSpec(reg,
		model.Objective{Name: f.Training.Objective},
		optimizer,
		model.Metric{Name: f.Training.Metric},
		stopping,
		f.Training.BatchSize,
	)
	if err != nil {
		return Plan{}, fmt.Errorf("[training]: %w", err)
	}

	params, err := f.parameterSpace(reg)
	if err != nil {
		return Plan{}, fmt.Errorf("[parameters]: %w", err)
	}

	env, err := f.environment()
	if err != nil {
		return Plan{}, fmt.Errorf("[environment]: %w", err)
	}

	spec, err := experiment.New(f.Experiment.Label, layout, train, experiment.DataSources{}, env, params)
	if err != nil {
		return Plan{}, err
	}

	opts := search.Options{
		PopulationSize: f.Experiment.Population,
		Generations:    f.Experiment.Generations,
		Resume:         f.Experiment.Resume,
		LogLevel:       f.Experiment.LogLevel,
		Seed:           f.Experiment.Seed,
		AbortOnError:   f.Experiment.AbortOnError,
		VocabularyCap:  f.Experiment.VocabularyCap,
	}
	if err := opts.Validate(); err != nil {
		return Plan{}, fmt.Errorf("[experiment]: %w", err)
	}
	breeder, err := search.BreederFromConfig(f.Experiment.Breeder, f.Experiment.Elite)
	if err != nil {
		return Plan{}, fmt.Errorf("[experiment]: %w", err)
	}
	return Plan{Spec: spec, Options: opts, Breeder: breeder}, nil
}

func (f File) parameterSpace(reg *registry.Registry) (*space.ParameterSpace, error) {
	params := space.New(reg, f.Experiment.UseDefaultValues)
	for _, p := range f.Parameters {
		spec, err := param.Parse(p.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Path, err)
		}
		if strings.HasPrefix(p.Path, "layout.") {
			err = params.LayoutParameter(p.Path, spec)
		} else {
			err = params.LayerParameter(p.Path, spec)
		}
		if err != nil {
			return nil, err
		}
	}
	return params, nil
}

func (f File) environment() (experiment.Environment, error) {
	switch strings.ToLower(f.Environment.Kind) {
	case "", string(model.DeviceCPU):
		return experiment.CPUEnvironment(f.Environment.NJobs)
	case string(model.DeviceGPU):
		return experiment.GPUEnvironment(f.Environment.Devices, f.Environment.TasksPerDevice)
	default:
		return experiment.Environment{}, fmt.Errorf("%w: unknown kind %q", experiment.ErrInvalidEnvironment, f.Environment.Kind)
	}
}
