package builder

import (
	"errors"
	"math"
	"strings"
	"testing"

	"archsearch/internal/model"
	"archsearch/internal/param"
	"archsearch/internal/registry"
)

func testBlueprint() model.Blueprint {
	return model.Blueprint{
		VersionedRecord: model.CurrentVersion(),
		ID:              "bp-1",
		Layout:          model.Layout{InputSize: 1000, OutputSize: 46, OutputActivation: "softmax"},
		Rows: []model.Row{{Blocks: []model.Block{{Layers: []model.LayerSpec{
			{Type: "Dense", Params: map[string]param.Value{"output_dim": param.IntValue(64), "activation": param.StringValue("relu")}},
			{Type: "Dropout", Params: map[string]param.Value{"p": param.FloatValue(0.3)}},
		}}}}},
		Training: model.TrainingDescription{
			Objective: model.Objective{Name: "categorical_crossentropy"},
			Optimizer: model.Optimizer{Name: "Adam"},
			Metric:    model.Metric{Name: "categorical_accuracy"},
			BatchSize: 32,
		},
	}
}

func TestBuildThreadsDimensions(t *testing.T) {
	m, err := New(registry.New()).Build(testBlueprint(), model.CPUDevice(), false)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(m.Layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(m.Layers))
	}
	if got := m.Layers[1].OutputDim(); got != 64 {
		t.Fatalf("dropout should keep dense width, got %d", got)
	}
	if m.Output.Units != 46 || m.Output.ActivationName != "softmax" {
		t.Fatalf("unexpected output projection: %+v", m.Output)
	}
	if m.Compiled {
		t.Fatal("model should not be compiled")
	}
	if !strings.Contains(m.Summary(), "Dense(64) -> Dropout(64) -> output(46,softmax)") {
		t.Fatalf("unexpected summary: %s", m.Summary())
	}
}

func TestBuildCompile(t *testing.T) {
	m, err := New(registry.New()).Build(testBlueprint(), model.GPUDevice(1), true)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !m.Compiled || m.Optimizer.Name != "Adam" || m.Device != model.GPUDevice(1) {
		t.Fatalf("unexpected compiled model: %+v", m)
	}

	bp := testBlueprint()
	bp.Training.Optimizer.Name = "Quantum"
	if _, err := New(registry.New()).Build(bp, model.CPUDevice(), true); !errors.Is(err, registry.ErrUnknownComponent) {
		t.Fatalf("expected ErrUnknownComponent, got: %v", err)
	}
}

func TestBuildRejectsUnregisteredCustomComponents(t *testing.T) {
	bp := testBlueprint()
	bp.Rows[0].Blocks[0].Layers = append(bp.Rows[0].Blocks[0].Layers, model.LayerSpec{
		Type:   "custom_layer_1",
		Params: map[string]param.Value{"output_dim": param.IntValue(10), "activation": param.StringValue("custom_activation_1")},
	})
	reg := registry.New()
	if _, err := New(reg).Build(bp, model.CPUDevice(), false); !errors.Is(err, registry.ErrUnknownComponent) {
		t.Fatalf("expected ErrUnknownComponent, got: %v", err)
	}

	if err := reg.RegisterLayer("custom_layer_1", func(args registry.LayerArgs) (registry.Layer, error) {
		units, err := registry.IntArg(args.Params, "output_dim")
		if err != nil {
			return nil, err
		}
		act, err := registry.NameArg(args.Params, "activation")
		if err != nil {
			return nil, err
		}
		dense, err := registry.NewDenseLayer(int(units), act, args.Activations)
		if err != nil {
			return nil, err
		}
		return dense, nil
	}, map[string]param.Spec{"output_dim": param.Must(param.IntRange(10, 100))}); err != nil {
		t.Fatalf("register layer: %v", err)
	}
	if _, err := New(reg).Build(bp, model.CPUDevice(), false); !errors.Is(err, registry.ErrUnknownActivation) {
		t.Fatalf("expected ErrUnknownActivation, got: %v", err)
	}

	if err := reg.RegisterActivation("custom_activation_1", registry.Elementwise(func(x float64) float64 { return 1 + math.Tanh(x) })); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	m, err := New(reg).Build(bp, model.CPUDevice(), false)
	if err != nil {
		t.Fatalf("build with custom components: %v", err)
	}
	if m.Layers[2].OutputDim() != 10 {
		t.Fatalf("unexpected custom layer width: %d", m.Layers[2].OutputDim())
	}
}

func TestBuildRejectsEmptyBlueprint(t *testing.T) {
	bp := testBlueprint()
	bp.Rows = nil
	if _, err := New(registry.New()).Build(bp, model.CPUDevice(), false); !errors.Is(err, ErrEmptyBlueprint) {
		t.Fatalf("expected ErrEmptyBlueprint, got: %v", err)
	}
}
