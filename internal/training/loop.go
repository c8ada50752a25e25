package training

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// EpochFunc trains one epoch and reports validation accuracy.
type EpochFunc func(ctx context.Context, epoch int) (float64, error)

type Outcome struct {
	Epochs  int
	History []float64
	Final   float64
	Best    float64
	// Score is the accepted result: the best accuracy for conditions that
	// track it, otherwise the final epoch's accuracy.
	Score float64
}

// Run drives fn epoch by epoch until cond signals Stop. cond is reset
// before the first epoch.
func Run(ctx context.Context, cond Condition, fn EpochFunc) (Outcome, error) {
	if cond == nil {
		return Outcome{}, errors.New("stopping condition is required")
	}
	if fn == nil {
		return Outcome{}, errors.New("epoch function is required")
	}
	cond.Reset()

	out := Outcome{Best: math.Inf(-1)}
	for epoch := 1; ; epoch++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		accuracy, err := fn(ctx, epoch)
		if err != nil {
			return out, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		if math.IsNaN(accuracy) {
			return out, fmt.Errorf("epoch %d: accuracy is NaN", epoch)
		}
		out.Epochs = epoch
		out.History = append(out.History, accuracy)
		out.Final = accuracy
		if accuracy > out.Best {
			out.Best = accuracy
		}
		if cond.OnEpochEnd(accuracy) == Stop {
			break
		}
	}

	out.Score = out.Final
	if scorer, ok := cond.(bestScorer); ok {
		out.Score = scorer.BestAccuracy()
	}
	return out, nil
}
