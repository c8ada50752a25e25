package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrMisconfiguredStopping = errors.New("misconfigured stopping condition")

type Decision int

const (
	Continue Decision = iota
	Stop
)

func (d Decision) String() string {
	if d == Stop {
		return "stop"
	}
	return "continue"
}

// Condition decides after every epoch whether a training run halts.
// Instances are stateful and belong to exactly one run.
type Condition interface {
	Name() string
	OnEpochEnd(accuracy float64) Decision
	Reset()
}

// bestScorer is implemented by conditions that accept the best epoch
// rather than the last one.
type bestScorer interface {
	BestAccuracy() float64
}

type EpochStopping struct {
	epoch   int
	elapsed int
}

func (*EpochStopping) Name() string { return StoppingEpoch }

func (c *EpochStopping) OnEpochEnd(_ float64) Decision {
	c.elapsed++
	if c.elapsed >= c.epoch {
		return Stop
	}
	return Continue
}

func (c *EpochStopping) Reset() { c.elapsed = 0 }

func (c *EpochStopping) Elapsed() int { return c.elapsed }

// AccuracyDecreaseStopping halts once accuracy stops improving for
// noProgress epochs after the first minEpoch epochs, or at maxEpoch.
type AccuracyDecreaseStopping struct {
	minEpoch   int
	maxEpoch   int
	noProgress int

	elapsed int
	best    float64
	stall   int
}

func (*AccuracyDecreaseStopping) Name() string { return StoppingAccuracyDecrease }

func (c *AccuracyDecreaseStopping) OnEpochEnd(accuracy float64) Decision {
	c.elapsed++
	if accuracy > c.best {
		c.best = accuracy
		c.stall = 0
	} else if c.elapsed > c.minEpoch {
		c.stall++
	}
	if c.elapsed >= c.maxEpoch {
		return Stop
	}
	if c.elapsed >= c.minEpoch && c.stall >= c.noProgress {
		return Stop
	}
	return Continue
}

func (c *AccuracyDecreaseStopping) Reset() {
	c.elapsed = 0
	c.best = math.Inf(-1)
	c.stall = 0
}

func (c *AccuracyDecreaseStopping) BestAccuracy() float64 { return c.best }

func (c *AccuracyDecreaseStopping) Elapsed() int { return c.elapsed }

func (c *AccuracyDecreaseStopping) Stalled() int { return c.stall }

const (
	StoppingEpoch            = "epoch"
	StoppingAccuracyDecrease = "accuracy_decrease"
)

// StoppingSpec is the immutable description a fresh Condition is built
// from for every candidate.
type StoppingSpec struct {
	Kind            string `json:"kind"`
	Epoch           int    `json:"epoch,omitempty"`
	MinEpoch        int    `json:"min_epoch,omitempty"`
	MaxEpoch        int    `json:"max_epoch,omitempty"`
	NoProgressCount int    `json:"noprogress_count,omitempty"`
}

func NewEpochStopping(epoch int) (StoppingSpec, error) {
	spec := StoppingSpec{Kind: StoppingEpoch, Epoch: epoch}
	return spec, spec.Validate()
}

func NewAccuracyDecreaseStopping(minEpoch, maxEpoch, noProgressCount int) (StoppingSpec, error) {
	spec := StoppingSpec{
		Kind:            StoppingAccuracyDecrease,
		MinEpoch:        minEpoch,
		MaxEpoch:        maxEpoch,
		NoProgressCount: noProgressCount,
	}
	return spec, spec.Validate()
}

func (s StoppingSpec) Validate() error {
	switch s.Kind {
	case StoppingEpoch:
		if s.Epoch < 1 {
			return fmt.Errorf("%w: epoch must be >= 1, got %d", ErrMisconfiguredStopping, s.Epoch)
		}
	case StoppingAccuracyDecrease:
		if s.MinEpoch < 1 {
			return fmt.Errorf("%w: min_epoch must be >= 1, got %d", ErrMisconfiguredStopping, s.MinEpoch)
		}
		if s.MinEpoch > s.MaxEpoch {
			return fmt.Errorf("%w: min_epoch=%d > max_epoch=%d", ErrMisconfiguredStopping, s.MinEpoch, s.MaxEpoch)
		}
		if s.NoProgressCount < 1 {
			return fmt.Errorf("%w: noprogress_count must be >= 1, got %d", ErrMisconfiguredStopping, s.NoProgressCount)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMisconfiguredStopping, s.Kind)
	}
	return nil
}

// New builds a fresh condition in its initial state. Validate the spec
// first; an invalid spec yields a condition that stops immediately.
func (s StoppingSpec) New() Condition {
	var cond Condition
	switch s.Kind {
	case StoppingAccuracyDecrease:
		cond = &AccuracyDecreaseStopping{
			minEpoch:   s.MinEpoch,
			maxEpoch:   s.MaxEpoch,
			noProgress: s.NoProgressCount,
		}
	default:
		epoch := s.Epoch
		if epoch < 1 {
			epoch = 1
		}
		cond = &EpochStopping{epoch: epoch}
	}
	cond.Reset()
	return cond
}

// MaxEpochs is the hard upper bound on epochs a condition built from s allows.
func (s StoppingSpec) MaxEpochs() int {
	if s.Kind == StoppingAccuracyDecrease {
		return s.MaxEpoch
	}
	return s.Epoch
}

func (s StoppingSpec) String() string {
	if s.Kind == StoppingAccuracyDecrease {
		return fmt.Sprintf("accuracy_decrease(min=%d, max=%d, noprogress=%d)", s.MinEpoch, s.MaxEpoch, s.NoProgressCount)
	}
	return fmt.Sprintf("epoch(%d)", s.Epoch)
}

func EncodeStoppingSpec(s StoppingSpec) (json.RawMessage, error) {
	return json.Marshal(s)
}

func DecodeStoppingSpec(data []byte) (StoppingSpec, error) {
	var spec StoppingSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return StoppingSpec{}, err
	}
	if err := spec.Validate(); err != nil {
		return StoppingSpec{}, err
	}
	return spec, nil
}

func StoppingFromConfig(kind string, epoch, minEpoch, maxEpoch, noProgressCount int) (StoppingSpec, error) {
	switch kind {
	case "", StoppingEpoch:
		return NewEpochStopping(epoch)
	case StoppingAccuracyDecrease, "accuracy":
		return NewAccuracyDecreaseStopping(minEpoch, maxEpoch, noProgressCount)
	default:
		return StoppingSpec{}, fmt.Errorf("%w: unknown kind %q", ErrMisconfiguredStopping, kind)
	}
}
