package registry

import (
	"fmt"
	"math"

	"archsearch/internal/param"
)

var (
	builtinObjectives = []string{"categorical_crossentropy", "binary_crossentropy", "sparse_categorical_crossentropy", "mse", "mae"}
	builtinOptimizers = []string{"SGD", "Adam", "RMSprop", "Adagrad", "Adadelta", "Adamax", "Nadam"}
	builtinMetrics    = []string{"categorical_accuracy", "accuracy", "binary_accuracy", "mse", "mae"}
)

func initializeBuiltIns(r *Registry) {
	identity := func(in []float64) []float64 { return append([]float64(nil), in...) }
	mustBuiltin(r.registerActivation("linear", identity, false))
	mustBuiltin(r.registerActivation("identity", identity, false))
	mustBuiltin(r.registerActivation("relu", Elementwise(func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	}), false))
	mustBuiltin(r.registerActivation("tanh", Elementwise(math.Tanh), false))
	mustBuiltin(r.registerActivation("sigmoid", Elementwise(func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	}), false))
	mustBuiltin(r.registerActivation("hard_sigmoid", Elementwise(func(x float64) float64 {
		return math.Max(0, math.Min(1, 0.2*x+0.5))
	}), false))
	mustBuiltin(r.registerActivation("softplus", Elementwise(func(x float64) float64 {
		return math.Log1p(math.Exp(x))
	}), false))
	mustBuiltin(r.registerActivation("elu", Elementwise(func(x float64) float64 {
		if x >= 0 {
			return x
		}
		return math.Exp(x) - 1
	}), false))
	mustBuiltin(r.registerActivation("softmax", softmax, false))

	mustBuiltin(r.registerLayer(LayerEntry{
		Name:    "Dense",
		Factory: newDense,
		Params: map[string]param.Spec{
			"output_dim": param.FixedInt(64),
			"activation": param.FixedString("relu"),
		},
	}))
	mustBuiltin(r.registerLayer(LayerEntry{
		Name:    "Dropout",
		Factory: newDropout,
		Params: map[string]param.Spec{
			"p": param.FixedFloat(0.5),
		},
	}))
	mustBuiltin(r.registerLayer(LayerEntry{
		Name:    "BatchNormalization",
		Factory: newBatchNormalization,
		Params: map[string]param.Spec{
			"epsilon": param.FixedFloat(0.001),
		},
	}))

	for _, name := range builtinObjectives {
		r.objectives[name] = struct{}{}
	}
	for _, name := range builtinOptimizers {
		r.optimizers[name] = struct{}{}
	}
	for _, name := range builtinMetrics {
		r.metrics[name] = struct{}{}
	}
}

func mustBuiltin(err error) {
	if err != nil {
		panic(err)
	}
}

func softmax(in []float64) []float64 {
	out := make([]float64, len(in))
	if len(in) == 0 {
		return out
	}
	maxV := in[0]
	for _, x := range in[1:] {
		if x > maxV {
			maxV = x
		}
	}
	sum := 0.0
	for i, x := range in {
		out[i] = math.Exp(x - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Dense is a fully connected layer.
type Dense struct {
	Units          int
	ActivationName string
	Activation     ActivationFunc
}

func (d *Dense) Type() string   { return "Dense" }
func (d *Dense) OutputDim() int { return d.Units }

// NewDenseLayer builds a dense layer directly, for output projections.
func NewDenseLayer(units int, activation string, resolver ActivationResolver) (*Dense, error) {
	if units <= 0 {
		return nil, fmt.Errorf("dense output_dim must be > 0, got %d", units)
	}
	fn, err := resolver.Activation(activation)
	if err != nil {
		return nil, err
	}
	return &Dense{Units: units, ActivationName: activation, Activation: fn}, nil
}

func newDense(args LayerArgs) (Layer, error) {
	units, err := IntArg(args.Params, "output_dim")
	if err != nil {
		return nil, err
	}
	activation, err := NameArg(args.Params, "activation")
	if err != nil {
		return nil, err
	}
	dense, err := NewDenseLayer(int(units), activation, args.Activations)
	if err != nil {
		return nil, err
	}
	return dense, nil
}

// Dropout zeroes a fraction P of its inputs during training.
type Dropout struct {
	P   float64
	Dim int
}

func (d *Dropout) Type() string   { return "Dropout" }
func (d *Dropout) OutputDim() int { return d.Dim }

func newDropout(args LayerArgs) (Layer, error) {
	p, err := FloatArg(args.Params, "p")
	if err != nil {
		return nil, err
	}
	if p < 0 || p >= 1 {
		return nil, fmt.Errorf("dropout p must be in [0,1), got %g", p)
	}
	return &Dropout{P: p, Dim: args.InputDim}, nil
}

type BatchNormalization struct {
	Epsilon float64
	Dim     int
}

func (b *BatchNormalization) Type() string   { return "BatchNormalization" }
func (b *BatchNormalization) OutputDim() int { return b.Dim }

func newBatchNormalization(args LayerArgs) (Layer, error) {
	eps, err := FloatArg(args.Params, "epsilon")
	if err != nil {
		return nil, err
	}
	if eps <= 0 {
		return nil, fmt.Errorf("batch normalization epsilon must be > 0, got %g", eps)
	}
	return &BatchNormalization{Epsilon: eps, Dim: args.InputDim}, nil
}

func IntArg(params map[string]param.Value, name string) (int64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing layer argument %s", name)
	}
	n, ok := v.AsInt()
	if !ok {
		return 0, fmt.Errorf("layer argument %s: want int, got %s", name, v.Kind)
	}
	return n, nil
}

func FloatArg(params map[string]param.Value, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing layer argument %s", name)
	}
	f, ok := v.AsFloat()
	if !ok {
		return 0, fmt.Errorf("layer argument %s: want float, got %s", name, v.Kind)
	}
	return f, nil
}

func NameArg(params map[string]param.Value, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing layer argument %s", name)
	}
	s, ok := v.AsName()
	if !ok {
		return "", fmt.Errorf("layer argument %s: want name, got %s", name, v.Kind)
	}
	return s, nil
}
