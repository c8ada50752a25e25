package space

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"archsearch/internal/param"
	"archsearch/internal/registry"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidPath      = errors.New("invalid parameter path")
)

const layoutPrefix = "layout."

// Layout-level knobs.
const (
	Rows      = "layout.rows"
	Blocks    = "layout.blocks"
	Layers    = "layout.layers"
	LayerType = "layout.layer_type"
)

// ParameterSpace is the set of tunable dimensions a search samples from.
// Resolution is override, then default (when built with
// useDefaultValues), then ErrUnknownParameter.
type ParameterSpace struct {
	registry         *registry.Registry
	useDefaultValues bool
	defaults         map[string]param.Spec
	overrides        map[string]param.Spec
}

// New snapshots the defaults table from reg, so register custom
// components before calling it.
func New(reg *registry.Registry, useDefaultValues bool) *ParameterSpace {
	return &ParameterSpace{
		registry:         reg,
		useDefaultValues: useDefaultValues,
		defaults:         referenceDefaults(reg),
		overrides:        make(map[string]param.Spec),
	}
}

func referenceDefaults(reg *registry.Registry) map[string]param.Spec {
	defaults := map[string]param.Spec{
		Rows:   param.FixedInt(1),
		Blocks: param.FixedInt(1),
		Layers: param.FixedInt(1),
	}
	layerTypes := reg.LayerTypes()
	if len(layerTypes) > 0 {
		defaults[LayerType] = param.Must(param.Strings(layerTypes...))
	}
	for _, name := range layerTypes {
		entry, err := reg.Layer(name)
		if err != nil {
			continue
		}
		for attr, spec := range entry.Params {
			defaults[name+"."+attr] = spec
		}
	}
	return defaults
}

func (s *ParameterSpace) UseDefaultValues() bool { return s.useDefaultValues }

func (s *ParameterSpace) Registry() *registry.Registry { return s.registry }

// LayoutParameter overrides a layout knob. name may be given with or
// without the "layout." prefix.
func (s *ParameterSpace) LayoutParameter(name string, spec param.Spec) error {
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, layoutPrefix) {
		name = layoutPrefix + name
	}
	if name == layoutPrefix || strings.Contains(name[len(layoutPrefix):], ".") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return s.set(name, spec)
}

// LayerParameter overrides a "Type.attr" parameter. Last write wins.
func (s *ParameterSpace) LayerParameter(path string, spec param.Spec) error {
	layerType, attr, ok := SplitPath(path)
	if !ok || layerType == "layout" {
		return fmt.Errorf("%w: %q, want LayerType.attribute", ErrInvalidPath, path)
	}
	return s.set(layerType+"."+attr, spec)
}

func (s *ParameterSpace) set(path string, spec param.Spec) error {
	if spec.IsZero() {
		return fmt.Errorf("%w: %s has no spec", param.ErrInvalidRange, path)
	}
	s.overrides[path] = spec
	return nil
}

// ParameterFor resolves a path to its spec.
func (s *ParameterSpace) ParameterFor(path string) (param.Spec, error) {
	if spec, ok := s.overrides[path]; ok {
		return spec, nil
	}
	if s.useDefaultValues {
		if spec, ok := s.defaults[path]; ok {
			return spec, nil
		}
	}
	return param.Spec{}, fmt.Errorf("%w: %s", ErrUnknownParameter, path)
}

// Overridden reports whether path was set explicitly.
func (s *ParameterSpace) Overridden(path string) bool {
	_, ok := s.overrides[path]
	return ok
}

// Paths lists every resolvable path, sorted.
func (s *ParameterSpace) Paths() []string {
	seen := make(map[string]struct{}, len(s.overrides)+len(s.defaults))
	for path := range s.overrides {
		seen[path] = struct{}{}
	}
	if s.useDefaultValues {
		for path := range s.defaults {
			seen[path] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns the effective table for persistence.
func (s *ParameterSpace) Snapshot() map[string]param.Spec {
	out := make(map[string]param.Spec)
	for _, path := range s.Paths() {
		spec, err := s.ParameterFor(path)
		if err != nil {
			continue
		}
		out[path] = spec
	}
	return out
}

// Validate checks that every component a spec can yield is registered
// and that every sampled layer type has all declared attributes
// resolvable.
func (s *ParameterSpace) Validate() error {
	for _, path := range s.Paths() {
		spec, err := s.ParameterFor(path)
		if err != nil {
			return err
		}
		if err := s.validateReferences(path, spec); err != nil {
			return err
		}
	}

	layerTypes, err := s.ParameterFor(LayerType)
	if err != nil {
		return err
	}
	for _, name := range layerTypes.Names() {
		entry, err := s.registry.Layer(name)
		if err != nil {
			return fmt.Errorf("%s: %w", LayerType, err)
		}
		for _, attr := range entry.Attributes() {
			if _, err := s.ParameterFor(name + "." + attr); err != nil {
				return fmt.Errorf("layer %s: %w", name, err)
			}
		}
	}
	for _, knob := range []string{Rows, Blocks, Layers} {
		spec, err := s.ParameterFor(knob)
		if err != nil {
			return err
		}
		if err := requirePositiveInts(knob, spec); err != nil {
			return err
		}
	}
	return s.validateFactories(layerTypes.Names())
}

// validateFactories builds every reachable layer type once per extreme
// value of each attribute, so ranges a factory rejects fail here rather
// than on every sampled candidate.
func (s *ParameterSpace) validateFactories(layerTypes []string) error {
	for _, name := range layerTypes {
		entry, err := s.registry.Layer(name)
		if err != nil {
			return fmt.Errorf("%s: %w", LayerType, err)
		}
		attrs := entry.Attributes()
		extremes := make(map[string][]param.Value, len(attrs))
		base := make(map[string]param.Value, len(attrs))
		for _, attr := range attrs {
			spec, err := s.ParameterFor(name + "." + attr)
			if err != nil {
				return fmt.Errorf("layer %s: %w", name, err)
			}
			values := extremeValues(spec)
			if len(values) == 0 {
				return fmt.Errorf("%w: %s.%s has no values", param.ErrInvalidRange, name, attr)
			}
			extremes[attr] = values
			base[attr] = values[0]
		}
		for _, attr := range attrs {
			for _, v := range extremes[attr] {
				args := make(map[string]param.Value, len(base))
				for k, bv := range base {
					args[k] = bv
				}
				args[attr] = v
				if _, err := entry.Factory(registry.LayerArgs{InputDim: 1, Params: args, Activations: s.registry}); err != nil {
					return fmt.Errorf("%w: %s.%s=%s rejected by layer: %v", param.ErrInvalidRange, name, attr, v, err)
				}
			}
		}
	}
	return nil
}

func extremeValues(spec param.Spec) []param.Value {
	switch spec.Kind() {
	case param.SpecIntRange:
		lo, hi := spec.IntBounds()
		if lo == hi {
			return []param.Value{param.IntValue(lo)}
		}
		return []param.Value{param.IntValue(lo), param.IntValue(hi)}
	case param.SpecFloatRange:
		lo, hi := spec.FloatBounds()
		if lo == hi {
			return []param.Value{param.FloatValue(lo)}
		}
		return []param.Value{param.FloatValue(lo), param.FloatValue(hi)}
	case param.SpecCategorical:
		return spec.Choices()
	default:
		if v, ok := spec.FixedValue(); ok {
			return []param.Value{v}
		}
		return nil
	}
}

func (s *ParameterSpace) validateReferences(path string, spec param.Spec) error {
	_, attr, _ := SplitPath(path)
	for _, name := range spec.Names() {
		switch {
		case path == LayerType:
			if _, err := s.registry.Layer(name); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		case attr == "activation":
			if _, err := s.registry.Activation(name); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	if spec.Kind() == param.SpecRef {
		for _, name := range spec.Names() {
			if !s.registry.HasComponent(name) {
				return fmt.Errorf("%s: %w: %s", path, registry.ErrUnknownComponent, name)
			}
		}
	}
	return nil
}

func requirePositiveInts(path string, spec param.Spec) error {
	switch spec.Kind() {
	case param.SpecIntRange:
		lo, _ := spec.IntBounds()
		if lo < 1 {
			return fmt.Errorf("%w: %s must be >= 1, got %s", param.ErrInvalidRange, path, spec)
		}
	case param.SpecFixed, param.SpecCategorical:
		values := spec.Choices()
		if v, ok := spec.FixedValue(); ok {
			values = []param.Value{v}
		}
		for _, v := range values {
			n, ok := v.AsInt()
			if !ok || n < 1 {
				return fmt.Errorf("%w: %s must be a positive int, got %s", param.ErrInvalidRange, path, v)
			}
		}
	default:
		return fmt.Errorf("%w: %s must be an int spec, got %s", param.ErrInvalidRange, path, spec.Kind())
	}
	return nil
}

// SplitPath splits "Type.attr" at the first dot.
func SplitPath(path string) (string, string, bool) {
	i := strings.IndexByte(path, '.')
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
