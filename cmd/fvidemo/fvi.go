package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brensch/fvi/vfa"
)

type fviConfig struct {
	Gamma      float64
	Iterations int
	// Tolerance stops the loop once no target moves by more than this.
	Tolerance float64
}

type iterationStats struct {
	Iteration int
	MaxDelta  float64
	Elapsed   time.Duration
}

type fviResult struct {
	Value      *vfa.ValueFunction[Position]
	Instances  []vfa.Instance[Position]
	Iterations int
}

// runFVI performs fitted value iteration over a fixed sample of states: each
// sweep backs up max_a r + γV(s') through the previous fit and trains a new
// value function on the resulting targets.
func runFVI(ctx context.Context, env Corridor, cfg fviConfig, trainer *vfa.Trainer[Position], samples []Position, onIter func(iterationStats)) (fviResult, error) {
	if len(samples) == 0 {
		return fviResult{}, fmt.Errorf("no sample states")
	}

	type transition struct {
		next     Position
		reward   float64
		terminal bool
	}
	moves := make([][]transition, len(samples))
	var nexts []Position
	for i, s := range samples {
		for _, a := range actions {
			n, r, term := env.Next(s, a)
			moves[i] = append(moves[i], transition{n, r, term})
			nexts = append(nexts, n)
		}
	}

	instances := make([]vfa.Instance[Position], len(samples))
	for i, s := range samples {
		instances[i] = vfa.Instance[Position]{State: s}
	}

	var value *vfa.ValueFunction[Position]
	start := time.Now()
	iter := 0
	for iter < cfg.Iterations {
		if err := ctx.Err(); err != nil {
			return fviResult{}, err
		}

		nextValues := make([]float64, len(nexts))
		if value != nil {
			var err error
			if nextValues, err = value.Values(ctx, nexts); err != nil {
				return fviResult{}, fmt.Errorf("iteration %d: evaluate successors: %w", iter, err)
			}
		}

		maxDelta := 0.0
		k := 0
		for i := range samples {
			best := math.Inf(-1)
			for _, t := range moves[i] {
				q := t.reward
				if !t.terminal {
					q += cfg.Gamma * nextValues[k]
				}
				k++
				best = math.Max(best, q)
			}
			maxDelta = math.Max(maxDelta, math.Abs(best-instances[i].Target))
			instances[i].Target = best
		}

		vf, err := trainer.Train(instances)
		if err != nil {
			return fviResult{}, fmt.Errorf("iteration %d: %w", iter, err)
		}
		value = vf
		iter++

		if onIter != nil {
			onIter(iterationStats{Iteration: iter, MaxDelta: maxDelta, Elapsed: time.Since(start)})
		}
		if maxDelta < cfg.Tolerance {
			break
		}
	}

	return fviResult{Value: value, Instances: instances, Iterations: iter}, nil
}
