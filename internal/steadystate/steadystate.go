// Package steadystate implements the fixed-point initialization loop that
// warms up a subsystem's state before the timed simulation begins, grounded
// on the original's steadyStateInitialization: run steps with a zeroed
// right-hand side until consecutive solutions agree within a relative
// infinity-norm tolerance, or a wall-time budget is exhausted.
package steadystate

import (
	"context"
	"math"
	"time"

	"github.com/vk/gridflow/internal/ctxlog"
)

// Params configures the convergence loop.
type Params struct {
	// Epsilon is the relative infinity-norm convergence threshold.
	Epsilon float64
	// TimeLimit bounds the wall-clock time spent iterating; exceeding it
	// without converging is a warning, not an error.
	TimeLimit time.Duration
}

// Step performs one steady-state warm-up iteration and returns the new
// solution vector.
type Step func() ([]complex128, error)

// Run iterates step until consecutive solutions satisfy Epsilon or
// params.TimeLimit elapses. It never returns an error for non-convergence;
// callers that need to know whether it converged should check the returned
// bool.
func Run(ctx context.Context, params Params, step Step) (converged bool, err error) {
	logger := ctxlog.FromContext(ctx)
	deadline := time.Now().Add(params.TimeLimit)

	prev, err := step()
	if err != nil {
		return false, err
	}

	for time.Now().Before(deadline) {
		curr, err := step()
		if err != nil {
			return false, err
		}

		maxDiff, maxCurr := 0.0, 0.0
		for i := range curr {
			diff := cabs(curr[i] - prev[i])
			if diff > maxDiff {
				maxDiff = diff
			}
			if m := cabs(curr[i]); m > maxCurr {
				maxCurr = m
			}
		}

		if maxCurr == 0 {
			prev = curr
			continue
		}
		if maxDiff/maxCurr < params.Epsilon {
			logger.Debug("steadystate: converged", "max_diff", maxDiff, "max_curr", maxCurr)
			return true, nil
		}
		prev = curr
	}

	logger.Warn("steadystate: did not converge within time limit", "epsilon", params.Epsilon, "time_limit", params.TimeLimit)
	return false, nil
}

func cabs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}
