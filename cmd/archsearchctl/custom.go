package main

import (
	"math"
	"sort"

	"archsearch/internal/param"
	"archsearch/internal/registry"
)

// registerDemoComponents adds the custom activation and layer referenced
// by testdata/reuters.ini.
func registerDemoComponents(reg *registry.Registry) error {
	if err := reg.RegisterActivation("custom_activation_1", registry.Elementwise(func(x float64) float64 {
		return 1 + math.Tanh(x)
	})); err != nil {
		return err
	}
	return reg.RegisterLayer("custom_layer_1", newCustomLayer, map[string]param.Spec{
		"output_dim": param.Must(param.IntRange(10, 100)),
		"activation": param.FixedString("custom_activation_1"),
	})
}

// customLayer is a dense projection with a configurable activation.
type customLayer struct {
	*registry.Dense
}

func (customLayer) Type() string { return "custom_layer_1" }

func newCustomLayer(args registry.LayerArgs) (registry.Layer, error) {
	units, err := registry.IntArg(args.Params, "output_dim")
	if err != nil {
		return nil, err
	}
	activation, err := registry.NameArg(args.Params, "activation")
	if err != nil {
		return nil, err
	}
	dense, err := registry.NewDenseLayer(int(units), activation, args.Activations)
	if err != nil {
		return nil, err
	}
	return customLayer{Dense: dense}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
