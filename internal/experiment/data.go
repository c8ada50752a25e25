package experiment

import (
	"errors"
	"fmt"
)

type Batch struct {
	Inputs [][]float64
	Labels [][]float64
}

// BatchIterator yields a finite sequence of batches per epoch. Reset
// rewinds it for the next epoch.
type BatchIterator interface {
	Next() (Batch, bool)
	Reset()
}

// ErrSharedIterator is returned when parallel workers would have to share
// one stateful iterator.
var ErrSharedIterator = errors.New("iterator cannot be shared between workers")

// Cloner is implemented by iterators that can hand out an independent
// copy positioned at the start of an epoch. Copies may share the
// underlying read-only rows.
type Cloner interface {
	Clone() BatchIterator
}

type DataSources struct {
	Train      BatchIterator
	Validation BatchIterator
	Classes    int
}

func (d DataSources) Validate() error {
	if d.Train == nil {
		return errors.New("training iterator is required")
	}
	if d.Validation == nil {
		return errors.New("validation iterator is required")
	}
	if d.Classes < 1 {
		return fmt.Errorf("output class count must be >= 1, got %d", d.Classes)
	}
	return nil
}

// IsZero reports whether no iterators are attached.
func (d DataSources) IsZero() bool { return d.Train == nil && d.Validation == nil }

// Clone returns sources with independent iterators. Every attached
// iterator must implement Cloner.
func (d DataSources) Clone() (DataSources, error) {
	out := d
	var err error
	if out.Train, err = cloneIterator("training", d.Train); err != nil {
		return DataSources{}, err
	}
	if out.Validation, err = cloneIterator("validation", d.Validation); err != nil {
		return DataSources{}, err
	}
	return out, nil
}

func cloneIterator(name string, it BatchIterator) (BatchIterator, error) {
	if it == nil {
		return nil, nil
	}
	cloner, ok := it.(Cloner)
	if !ok {
		return nil, fmt.Errorf("%w: %s iterator %T does not implement Clone", ErrSharedIterator, name, it)
	}
	return cloner.Clone(), nil
}

// Provider loads data sources for a batch size and vocabulary cap.
type Provider interface {
	Load(batchSize, vocabularyCap int) (DataSources, error)
}

// SliceIterator serves in-memory rows in fixed-size batches.
type SliceIterator struct {
	inputs    [][]float64
	labels    [][]float64
	batchSize int
	pos       int
}

func NewSliceIterator(inputs, labels [][]float64, batchSize int) (*SliceIterator, error) {
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("inputs and labels differ in length: %d != %d", len(inputs), len(labels))
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", batchSize)
	}
	return &SliceIterator{inputs: inputs, labels: labels, batchSize: batchSize}, nil
}

func (it *SliceIterator) Next() (Batch, bool) {
	if it.pos >= len(it.inputs) {
		return Batch{}, false
	}
	end := it.pos + it.batchSize
	if end > len(it.inputs) {
		end = len(it.inputs)
	}
	batch := Batch{Inputs: it.inputs[it.pos:end], Labels: it.labels[it.pos:end]}
	it.pos = end
	return batch, true
}

func (it *SliceIterator) Reset() { it.pos = 0 }

// Clone shares the rows and starts at the first batch.
func (it *SliceIterator) Clone() BatchIterator {
	return &SliceIterator{inputs: it.inputs, labels: it.labels, batchSize: it.batchSize}
}

func (it *SliceIterator) Len() int { return len(it.inputs) }
