package builder

import (
	"errors"
	"fmt"
	"strings"

	"archsearch/internal/model"
	"archsearch/internal/registry"
)

var ErrEmptyBlueprint = errors.New("blueprint has no layers")

// Model is a blueprint instantiated against a registry on a device.
type Model struct {
	BlueprintID      string
	Device           model.Device
	InputSize        int
	Layers           []registry.Layer
	Output           *registry.Dense
	OutputActivation registry.ActivationFunc

	Compiled  bool
	Objective model.Objective
	Optimizer model.Optimizer
	Metric    model.Metric
}

func (m *Model) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "model %s on %s input=%d", m.BlueprintID, m.Device, m.InputSize)
	for _, layer := range m.Layers {
		fmt.Fprintf(&b, " -> %s(%d)", layer.Type(), layer.OutputDim())
	}
	if m.Output != nil {
		fmt.Fprintf(&b, " -> output(%d,%s)", m.Output.Units, m.Output.ActivationName)
	}
	if m.Compiled {
		fmt.Fprintf(&b, " compiled[%s/%s/%s]", m.Objective.Name, m.Optimizer.Name, m.Metric.Name)
	}
	return b.String()
}

type Builder struct {
	Registry *registry.Registry
}

func New(reg *registry.Registry) *Builder {
	return &Builder{Registry: reg}
}

// Build instantiates every layer of bp through its registered factory,
// then appends the layout's output projection. With compile set the
// training components are resolved as well.
func (b *Builder) Build(bp model.Blueprint, device model.Device, compile bool) (*Model, error) {
	if b.Registry == nil {
		return nil, errors.New("builder registry is required")
	}
	if bp.Layout.InputSize <= 0 || bp.Layout.OutputSize <= 0 {
		return nil, fmt.Errorf("%w: blueprint %s", model.ErrInvalidLayout, bp.ID)
	}
	specs := bp.Layers()
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyBlueprint, bp.ID)
	}

	m := &Model{
		BlueprintID: bp.ID,
		Device:      device,
		InputSize:   bp.Layout.InputSize,
		Layers:      make([]registry.Layer, 0, len(specs)),
	}
	dim := bp.Layout.InputSize
	for i, spec := range specs {
		entry, err := b.Registry.Layer(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("blueprint %s layer %d: %w", bp.ID, i, err)
		}
		layer, err := entry.Factory(registry.LayerArgs{
			InputDim:    dim,
			Params:      spec.Params,
			Activations: b.Registry,
		})
		if err != nil {
			return nil, fmt.Errorf("blueprint %s layer %d (%s): %w", bp.ID, i, spec.Type, err)
		}
		if layer.OutputDim() <= 0 {
			return nil, fmt.Errorf("blueprint %s layer %d (%s): output dim %d", bp.ID, i, spec.Type, layer.OutputDim())
		}
		dim = layer.OutputDim()
		m.Layers = append(m.Layers, layer)
	}

	output, err := registry.NewDenseLayer(bp.Layout.OutputSize, bp.Layout.OutputActivation, b.Registry)
	if err != nil {
		return nil, fmt.Errorf("blueprint %s output: %w", bp.ID, err)
	}
	m.Output = output
	m.OutputActivation = output.Activation

	if compile {
		if err := b.compile(m, bp.Training); err != nil {
			return nil, fmt.Errorf("blueprint %s compile: %w", bp.ID, err)
		}
	}
	return m, nil
}

func (b *Builder) compile(m *Model, desc model.TrainingDescription) error {
	if err := b.Registry.Objective(desc.Objective.Name); err != nil {
		return err
	}
	if err := b.Registry.Optimizer(desc.Optimizer.Name); err != nil {
		return err
	}
	if err := b.Registry.Metric(desc.Metric.Name); err != nil {
		return err
	}
	m.Objective = desc.Objective
	m.Optimizer = desc.Optimizer
	m.Metric = desc.Metric
	m.Compiled = true
	return nil
}
