package main

import "math"

// Corridor is a deterministic 1-D walk on [0, 1]. Each action moves the
// agent by Step to the left or right; stepping to or past 1 ends the episode
// with reward 1. The left wall clamps at 0.
type Corridor struct {
	Step float64
}

type Position struct {
	X float64
}

var actions = []float64{-1, 1}

// Next applies action a (an entry of actions) to s.
func (c Corridor) Next(s Position, a float64) (next Position, reward float64, terminal bool) {
	x := math.Max(0, s.X+a*c.Step)
	if x >= 1 {
		return Position{X: 1}, 1, true
	}
	return Position{X: x}, 0, false
}

// OptimalValue is the closed-form value of s under discount gamma.
func (c Corridor) OptimalValue(s Position, gamma float64) float64 {
	steps := math.Ceil((1-s.X)/c.Step - 1e-9)
	if steps < 1 {
		steps = 1
	}
	return math.Pow(gamma, steps-1)
}

func positionFeatures(s Position) []float64 { return []float64{s.X} }
