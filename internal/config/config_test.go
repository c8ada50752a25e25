package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"archsearch/internal/model"
	"archsearch/internal/param"
	"archsearch/internal/registry"
	"archsearch/internal/search"
	"archsearch/internal/space"
	"archsearch/internal/training"
)

const reutersConfig = `
[experiment]
label = reuters_experiment
population = 100
generations = 3
log_level = DEBUG
seed = 42
use_default_values = true

[layout]
input_size = 1000
output_size = 46
output_activation = softmax

[training]
objective = categorical_crossentropy
optimizer = Adam
learning_rate = 0.001
metric = categorical_accuracy
batch_size = 32

[stopping]
kind = accuracy_decrease
min_epoch = 2
max_epoch = 10
noprogress_count = 5

[environment]
kind = cpu
n_jobs = 2

[parameters]
layout.rows = 1
layout.blocks = int(1, 2)
layout.layers = int(1, 3)
layout.layer_type = choice(Dense, Dropout, custom_layer_1)
Dense.output_dim = int(10, 100)
Dense.activation = choice(relu, custom_activation_1)
Dropout.p = float(0.1, 0.9)
`

func customRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterActivation("custom_activation_1", registry.Elementwise(func(x float64) float64 {
		return 1 + math.Tanh(x)
	})))
	require.NoError(t, reg.RegisterLayer("custom_layer_1", func(args registry.LayerArgs) (registry.Layer, error) {
		units, err := registry.IntArg(args.Params, "output_dim")
		if err != nil {
			return nil, err
		}
		act, err := registry.NameArg(args.Params, "activation")
		if err != nil {
			return nil, err
		}
		return registry.NewDenseLayer(int(units), act, args.Activations)
	}, map[string]param.Spec{
		"output_dim": param.Must(param.IntRange(10, 100)),
		"activation": param.FixedString("custom_activation_1"),
	}))
	return reg
}

func TestLoadAndAssembleFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reuters.ini")
	require.NoError(t, os.WriteFile(path, []byte(reutersConfig), 0o644))

	file, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "reuters_experiment", file.Experiment.Label)
	require.Len(t, file.Parameters, 7)
	require.Equal(t, Parameter{Path: "layout.rows", Text: "1"}, file.Parameters[0])

	plan, err := file.Assemble(customRegistry(t))
	require.NoError(t, err)
	require.Equal(t, "reuters_experiment", plan.Spec.Label)
	require.Equal(t, model.Layout{InputSize: 1000, OutputSize: 46, OutputActivation: "softmax"}, plan.Spec.Layout)
	require.Equal(t, training.StoppingAccuracyDecrease, plan.Spec.Training.Stopping.Kind)
	require.Equal(t, 0.001, plan.Spec.Training.Optimizer.Config["lr"])
	require.Equal(t, 2, plan.Spec.Environment.Workers())
	require.Equal(t, search.Options{PopulationSize: 100, Generations: 3, LogLevel: "DEBUG", Seed: 42}, plan.Options)
	require.Equal(t, "resample", plan.Breeder.Name())

	blocks, err := plan.Spec.Parameters.ParameterFor(space.Blocks)
	require.NoError(t, err)
	require.Equal(t, "int(1, 2)", blocks.String())
	custom, err := plan.Spec.Parameters.ParameterFor("custom_layer_1.output_dim")
	require.NoError(t, err)
	require.Equal(t, "int(10, 100)", custom.String())
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	file, err := Load([]byte("[experiment]\nlabel = tiny\n[layout]\ninput_size = 4\noutput_size = 2\n"))
	require.NoError(t, err)
	require.Equal(t, 100, file.Experiment.Population)
	require.True(t, file.Experiment.UseDefaultValues)
	require.Equal(t, 32, file.Training.BatchSize)

	plan, err := file.Assemble(registry.New())
	require.NoError(t, err)
	require.Equal(t, training.StoppingEpoch, plan.Spec.Training.Stopping.Kind)
	require.Equal(t, 10, plan.Spec.Training.Stopping.Epoch)
	require.Nil(t, plan.Spec.Training.Optimizer.Config)
}

func TestAssembleSurfacesMisconfiguration(t *testing.T) {
	base := "[experiment]\nlabel = x\n[layout]\ninput_size = 4\noutput_size = 2\n"
	cases := map[string]struct {
		extra string
		want  error
	}{
		"unknown output activation": {"output_activation = nope\n", registry.ErrUnknownActivation},
		"unregistered custom activation": {"[parameters]\nDense.activation = choice(relu, custom_activation_1)\n", registry.ErrUnknownActivation},
		"bad range":                      {"[parameters]\nDropout.p = float(0.9, 0.1)\n", param.ErrInvalidRange},
		"range the layer rejects":        {"[parameters]\nDropout.p = float(0.1, 1.0)\n", param.ErrInvalidRange},
		"bad path":                       {"[parameters]\nlayout.a.b = 1\n", space.ErrInvalidPath},
		"bad stopping":                   {"[stopping]\nkind = accuracy_decrease\nmin_epoch = 5\nmax_epoch = 2\nnoprogress_count = 1\n", training.ErrMisconfiguredStopping},
		"unknown optimizer":              {"[training]\noptimizer = Quantum\n", registry.ErrUnknownComponent},
		"bad batch size":                 {"[training]\nbatch_size = 0\n", training.ErrInvalidBatchSize},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			file, err := Load([]byte(base + tc.extra))
			require.NoError(t, err)
			_, err = file.Assemble(registry.New())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAssembleEnvironments(t *testing.T) {
	base := "[experiment]\nlabel = x\nbreeder = elite\nelite = 2\n[layout]\ninput_size = 4\noutput_size = 2\n"
	file, err := Load([]byte(base + "[environment]\nkind = gpu\ndevices = 0, 1\ntasks_per_device = 2\n"))
	require.NoError(t, err)
	plan, err := file.Assemble(registry.New())
	require.NoError(t, err)
	require.Equal(t, 4, plan.Spec.Environment.Workers())
	require.Equal(t, model.GPUDevice(1), plan.Spec.Environment.DeviceFor(1))
	require.Equal(t, search.EliteBreeder{Count: 2}, plan.Breeder)

	file, err = Load([]byte(base + "[environment]\nkind = tpu\n"))
	require.NoError(t, err)
	_, err = file.Assemble(registry.New())
	require.Error(t, err)
}
