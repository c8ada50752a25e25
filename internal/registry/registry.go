package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"archsearch/internal/param"
)

var (
	ErrComponentExists   = errors.New("component already registered")
	ErrUnknownComponent  = errors.New("unknown component")
	ErrUnknownActivation = errors.New("unknown activation")
)

// ActivationFunc maps a layer's pre-activation vector to its output.
type ActivationFunc func(in []float64) []float64

// Elementwise lifts a scalar function into an ActivationFunc.
func Elementwise(fn func(float64) float64) ActivationFunc {
	return func(in []float64) []float64 {
		out := make([]float64, len(in))
		for i, x := range in {
			out[i] = fn(x)
		}
		return out
	}
}

// Layer is an instantiated layer of a candidate model.
type Layer interface {
	Type() string
	OutputDim() int
}

// LayerArgs carries the sampled constructor arguments for one layer.
type LayerArgs struct {
	InputDim    int
	Params      map[string]param.Value
	Activations ActivationResolver
}

type LayerFactory func(args LayerArgs) (Layer, error)

type ActivationResolver interface {
	Activation(name string) (ActivationFunc, error)
}

// LayerEntry is a registered layer type with the specs declared for its
// constructor arguments.
type LayerEntry struct {
	Name    string
	Factory LayerFactory
	Params  map[string]param.Spec
	Custom  bool
}

// Attributes returns the declared constructor argument names, sorted.
func (e LayerEntry) Attributes() []string {
	names := make([]string, 0, len(e.Params))
	for name := range e.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Options struct {
	// RejectDuplicates turns re-registration of an existing name into
	// ErrComponentExists instead of overwriting it.
	RejectDuplicates bool
}

type registeredActivation struct {
	fn     ActivationFunc
	custom bool
}

// Registry resolves activations, layers and training components by name.
// Register everything before a search starts; lookups are safe for
// concurrent use.
type Registry struct {
	opts Options

	mu          sync.RWMutex
	activations map[string]registeredActivation
	layers      map[string]LayerEntry
	objectives  map[string]struct{}
	optimizers  map[string]struct{}
	metrics     map[string]struct{}
}

func New() *Registry {
	return NewWithOptions(Options{})
}

func NewWithOptions(opts Options) *Registry {
	r := &Registry{
		opts:        opts,
		activations: make(map[string]registeredActivation),
		layers:      make(map[string]LayerEntry),
		objectives:  make(map[string]struct{}),
		optimizers:  make(map[string]struct{}),
		metrics:     make(map[string]struct{}),
	}
	initializeBuiltIns(r)
	return r
}

// RegisterActivation adds a custom activation. Re-registering a name
// replaces the previous function unless RejectDuplicates is set.
func (r *Registry) RegisterActivation(name string, fn ActivationFunc) error {
	return r.registerActivation(name, fn, true)
}

func (r *Registry) registerActivation(name string, fn ActivationFunc, custom bool) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return errors.New("activation function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activations[name]; exists && r.opts.RejectDuplicates {
		return fmt.Errorf("%w: activation %s", ErrComponentExists, name)
	}
	r.activations[name] = registeredActivation{fn: fn, custom: custom}
	return nil
}

// RegisterLayer adds a custom layer type with specs for its constructor
// arguments. Same overwrite rule as RegisterActivation.
func (r *Registry) RegisterLayer(name string, factory LayerFactory, params map[string]param.Spec) error {
	return r.registerLayer(LayerEntry{Name: name, Factory: factory, Params: params, Custom: true})
}

func (r *Registry) registerLayer(entry LayerEntry) error {
	if entry.Name == "" {
		return errors.New("layer name is required")
	}
	if entry.Factory == nil {
		return errors.New("layer factory is required")
	}
	for attr, spec := range entry.Params {
		if attr == "" {
			return fmt.Errorf("layer %s: empty parameter name", entry.Name)
		}
		if spec.IsZero() {
			return fmt.Errorf("layer %s: parameter %s has no spec", entry.Name, attr)
		}
	}

	params := make(map[string]param.Spec, len(entry.Params))
	for attr, spec := range entry.Params {
		params[attr] = spec
	}
	entry.Params = params

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.layers[entry.Name]; exists && r.opts.RejectDuplicates {
		return fmt.Errorf("%w: layer %s", ErrComponentExists, entry.Name)
	}
	r.layers[entry.Name] = entry
	return nil
}

func (r *Registry) Activation(name string) (ActivationFunc, error) {
	r.mu.RLock()
	entry, ok := r.activations[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActivation, name)
	}
	return entry.fn, nil
}

func (r *Registry) HasActivation(name string) bool {
	_, err := r.Activation(name)
	return err == nil
}

func (r *Registry) Layer(name string) (LayerEntry, error) {
	r.mu.RLock()
	entry, ok := r.layers[name]
	r.mu.RUnlock()
	if !ok {
		return LayerEntry{}, fmt.Errorf("%w: layer %s", ErrUnknownComponent, name)
	}
	params := make(map[string]param.Spec, len(entry.Params))
	for attr, spec := range entry.Params {
		params[attr] = spec
	}
	entry.Params = params
	return entry, nil
}

func (r *Registry) Objective(name string) error {
	return r.lookupName(r.objectives, "objective", name)
}

func (r *Registry) Optimizer(name string) error {
	return r.lookupName(r.optimizers, "optimizer", name)
}

func (r *Registry) Metric(name string) error {
	return r.lookupName(r.metrics, "metric", name)
}

// HasComponent reports whether name is a registered layer or activation.
func (r *Registry) HasComponent(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.layers[name]; ok {
		return true
	}
	_, ok := r.activations[name]
	return ok
}

func (r *Registry) Activations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.activations))
	for name := range r.activations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) LayerTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.layers))
	for name := range r.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CustomLayers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0)
	for name, entry := range r.layers {
		if entry.Custom {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CustomActivations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0)
	for name, entry := range r.activations {
		if entry.custom {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookupName(table map[string]struct{}, kind, name string) error {
	r.mu.RLock()
	_, ok := table[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnknownComponent, kind, name)
	}
	return nil
}
