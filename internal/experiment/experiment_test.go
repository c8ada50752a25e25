package experiment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"archsearch/internal/model"
	"archsearch/internal/param"
	"archsearch/internal/registry"
	"archsearch/internal/space"
	"archsearch/internal/training"
)

func baseSpec(t *testing.T) (model.Layout, training.Spec, *space.ParameterSpace) {
	t.Helper()
	reg := registry.New()
	layout, err := model.NewLayout(reg, 1000, 46, "softmax")
	require.NoError(t, err)
	stopping, err := training.NewEpochStopping(10)
	require.NoError(t, err)
	train, err := training.NewSpec(reg, model.Objective{Name: "categorical_crossentropy"}, model.Optimizer{Name: "Adam"}, model.Metric{Name: "categorical_accuracy"}, stopping, 32)
	require.NoError(t, err)
	params := space.New(reg, true)
	require.NoError(t, params.LayoutParameter("blocks", param.Must(param.IntRange(1, 2))))
	return layout, train, params
}

func TestNewExperimentValidates(t *testing.T) {
	layout, train, params := baseSpec(t)
	env, err := CPUEnvironment(2)
	require.NoError(t, err)

	spec, err := New(" reuters_experiment ", layout, train, DataSources{}, env, params)
	require.NoError(t, err)
	require.Equal(t, "reuters_experiment", spec.Label)

	_, err = New("", layout, train, DataSources{}, env, params)
	require.Error(t, err)

	_, err = New("a/b", layout, train, DataSources{}, env, params)
	require.Error(t, err)

	_, err = New("x", layout, train, DataSources{}, Environment{}, params)
	require.ErrorIs(t, err, ErrInvalidEnvironment)

	_, err = New("x", model.Layout{InputSize: 10, OutputSize: 2, OutputActivation: "custom_softmax"}, train, DataSources{}, env, params)
	require.ErrorIs(t, err, registry.ErrUnknownActivation)

	broken := space.New(registry.New(), true)
	require.NoError(t, broken.LayerParameter("Dense.activation", param.FixedString("nope")))
	_, err = New("x", layout, train, DataSources{}, env, broken)
	require.ErrorIs(t, err, registry.ErrUnknownActivation)
}

func TestNewExperimentChecksPartialData(t *testing.T) {
	layout, train, params := baseSpec(t)
	env, err := CPUEnvironment(1)
	require.NoError(t, err)
	it, err := NewSliceIterator([][]float64{{1}}, [][]float64{{1}}, 1)
	require.NoError(t, err)

	_, err = New("x", layout, train, DataSources{Train: it}, env, params)
	require.Error(t, err)

	_, err = New("x", layout, train, DataSources{Train: it, Validation: it, Classes: 2}, env, params)
	require.NoError(t, err)
}

func TestEnvironments(t *testing.T) {
	cpu, err := CPUEnvironment(2)
	require.NoError(t, err)
	require.Equal(t, 2, cpu.Workers())
	require.Equal(t, model.CPUDevice(), cpu.DeviceFor(1))

	gpu, err := GPUEnvironment([]int{0, 3}, 2)
	require.NoError(t, err)
	require.Equal(t, 4, gpu.Workers())
	require.Equal(t, model.GPUDevice(0), gpu.DeviceFor(0))
	require.Equal(t, model.GPUDevice(3), gpu.DeviceFor(1))
	require.Equal(t, model.GPUDevice(0), gpu.DeviceFor(2))
	require.Equal(t, "gpu", gpu.Record().Kind)

	_, err = CPUEnvironment(0)
	require.ErrorIs(t, err, ErrInvalidEnvironment)
	_, err = GPUEnvironment(nil, 1)
	require.ErrorIs(t, err, ErrInvalidEnvironment)
	_, err = GPUEnvironment([]int{1, 1}, 1)
	require.ErrorIs(t, err, ErrInvalidEnvironment)
	_, err = GPUEnvironment([]int{0}, 0)
	require.ErrorIs(t, err, ErrInvalidEnvironment)
}

func TestSliceIteratorIsRestartable(t *testing.T) {
	inputs := [][]float64{{1}, {2}, {3}, {4}, {5}}
	labels := [][]float64{{0}, {1}, {0}, {1}, {0}}
	it, err := NewSliceIterator(inputs, labels, 2)
	require.NoError(t, err)

	for epoch := 0; epoch < 2; epoch++ {
		sizes := []int{}
		for {
			batch, ok := it.Next()
			if !ok {
				break
			}
			sizes = append(sizes, len(batch.Inputs))
		}
		require.Equal(t, []int{2, 2, 1}, sizes)
		it.Reset()
	}

	_, err = NewSliceIterator(inputs, labels[:1], 2)
	require.Error(t, err)
}

type onceIterator struct{ done bool }

func (o *onceIterator) Next() (Batch, bool) {
	if o.done {
		return Batch{}, false
	}
	o.done = true
	return Batch{Inputs: [][]float64{{1}}, Labels: [][]float64{{1}}}, true
}

func (o *onceIterator) Reset() { o.done = false }

func TestDataSourcesCloneIsIndependent(t *testing.T) {
	train, err := NewSliceIterator([][]float64{{1}, {2}, {3}}, [][]float64{{0}, {1}, {0}}, 1)
	require.NoError(t, err)
	validation, err := NewSliceIterator([][]float64{{4}}, [][]float64{{1}}, 1)
	require.NoError(t, err)
	data := DataSources{Train: train, Validation: validation, Classes: 2}

	_, ok := train.Next()
	require.True(t, ok)

	clone, err := data.Clone()
	require.NoError(t, err)
	require.NotSame(t, train, clone.Train)
	require.Equal(t, 2, clone.Classes)

	rows := 0
	for {
		if _, ok := clone.Train.Next(); !ok {
			break
		}
		rows++
	}
	require.Equal(t, 3, rows, "clone starts at the first batch")

	batch, ok := train.Next()
	require.True(t, ok)
	require.Equal(t, []float64{2}, batch.Inputs[0], "original keeps its position")

	_, err = DataSources{Train: &onceIterator{}, Validation: validation, Classes: 2}.Clone()
	require.ErrorIs(t, err, ErrSharedIterator)

	empty, err := DataSources{}.Clone()
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}
