package space

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"archsearch/internal/model"
	"archsearch/internal/param"
)

// SampleBlueprint draws one candidate architecture for layout. The space
// is only read.
func (s *ParameterSpace) SampleBlueprint(label string, generation int, layout model.Layout, training model.TrainingDescription, rng *rand.Rand) (model.Blueprint, error) {
	rows, err := s.sampleCount(Rows, rng)
	if err != nil {
		return model.Blueprint{}, err
	}

	bp := model.Blueprint{
		VersionedRecord: model.CurrentVersion(),
		ID:              uuid.NewString(),
		Label:           label,
		Generation:      generation,
		Layout:          layout,
		Training:        training,
		Rows:            make([]model.Row, 0, rows),
	}
	for r := 0; r < rows; r++ {
		blocks, err := s.sampleCount(Blocks, rng)
		if err != nil {
			return model.Blueprint{}, err
		}
		row := model.Row{Blocks: make([]model.Block, 0, blocks)}
		for b := 0; b < blocks; b++ {
			layers, err := s.sampleCount(Layers, rng)
			if err != nil {
				return model.Blueprint{}, err
			}
			block := model.Block{Layers: make([]model.LayerSpec, 0, layers)}
			for l := 0; l < layers; l++ {
				layer, err := s.SampleLayer(rng)
				if err != nil {
					return model.Blueprint{}, err
				}
				block.Layers = append(block.Layers, layer)
			}
			row.Blocks = append(row.Blocks, block)
		}
		bp.Rows = append(bp.Rows, row)
	}
	return bp, nil
}

// SampleLayer draws a layer type and every attribute it declares.
func (s *ParameterSpace) SampleLayer(rng *rand.Rand) (model.LayerSpec, error) {
	typeSpec, err := s.ParameterFor(LayerType)
	if err != nil {
		return model.LayerSpec{}, err
	}
	layerType, ok := typeSpec.Sample(rng).AsName()
	if !ok {
		return model.LayerSpec{}, fmt.Errorf("%w: %s must yield layer names, got %s", param.ErrInvalidRange, LayerType, typeSpec)
	}
	entry, err := s.registry.Layer(layerType)
	if err != nil {
		return model.LayerSpec{}, err
	}

	layer := model.LayerSpec{Type: layerType, Params: make(map[string]param.Value, len(entry.Params))}
	for _, attr := range entry.Attributes() {
		spec, err := s.ParameterFor(layerType + "." + attr)
		if err != nil {
			return model.LayerSpec{}, err
		}
		layer.Params[attr] = spec.Sample(rng)
	}
	return layer, nil
}

func (s *ParameterSpace) sampleCount(path string, rng *rand.Rand) (int, error) {
	spec, err := s.ParameterFor(path)
	if err != nil {
		return 0, err
	}
	n, ok := spec.Sample(rng).AsInt()
	if !ok || n < 1 {
		return 0, fmt.Errorf("%w: %s must sample a positive int, spec %s", param.ErrInvalidRange, path, spec)
	}
	return int(n), nil
}
