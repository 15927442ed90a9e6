package vfa

import (
	"context"
	"fmt"
	"runtime"

	"github.com/brensch/fvi/dataset"
	"golang.org/x/sync/errgroup"
)

// ValueFunction predicts state values with a fitted model. It holds no
// mutable state; Value and Values are safe for concurrent use when the
// model's Predict is.
type ValueFunction[S any] struct {
	features FeatureExtractor[S]
	model    Predictor
	schema   dataset.Schema
	workers  int
}

// NewValueFunction wraps an already fitted predictor, such as a network
// trained elsewhere, whose inputs follow schema.
func NewValueFunction[S any](fx FeatureExtractor[S], p Predictor, schema dataset.Schema) (*ValueFunction[S], error) {
	if nilExtractor(fx) || p == nil {
		return nil, fmt.Errorf("%w: value function needs a feature extractor and a predictor", ErrInvalidInput)
	}
	if schema.Attributes <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, dataset.ErrEmptySchema)
	}
	return &ValueFunction[S]{
		features: fx,
		model:    p,
		schema:   schema,
		workers:  runtime.GOMAXPROCS(0),
	}, nil
}

func (v *ValueFunction[S]) Schema() dataset.Schema { return v.schema }

// Model returns the fitted predictor.
func (v *ValueFunction[S]) Model() Predictor { return v.model }

// Value returns the predicted value of s.
func (v *ValueFunction[S]) Value(s S) (float64, error) {
	vec := v.features.Features(s)
	if err := v.schema.Check(vec); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	// Predict sees the same single-row shape the model was trained on.
	row, _ := dataset.New(v.schema, 1)
	if err := row.Add(vec, 0); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	out, err := predict(v.model, row.Row(0))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPredictionFailed, modelName(v.model), err)
	}
	return out, nil
}

func predict(p Predictor, features []float64) (out float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Predict: %v", r)
		}
	}()
	return p.Predict(features)
}

// Values evaluates states in parallel. The first failure cancels the
// remaining work and is returned with the index of the failing state.
func (v *ValueFunction[S]) Values(ctx context.Context, states []S) ([]float64, error) {
	out := make([]float64, len(states))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for i := range states {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			val, err := v.Value(states[i])
			if err != nil {
				return fmt.Errorf("state %d: %w", i, err)
			}
			out[i] = val
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
