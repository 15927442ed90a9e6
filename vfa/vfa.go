// Package vfa fits value-function approximators for fitted value iteration.
//
// A Trainer turns (state, target) instances into a dataset through a
// FeatureExtractor, fits a fresh Model on it and returns a ValueFunction
// that evaluates new states with the same extractor.
package vfa

import (
	"errors"
	"fmt"

	"github.com/brensch/fvi/dataset"
)

var (
	// ErrInvalidInput reports an empty training set, a feature vector that
	// does not match the schema, or an unusable configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTrainingFailed reports that the model's Fit returned an error. No
	// value function is produced.
	ErrTrainingFailed = errors.New("training failed")
	// ErrPredictionFailed reports that the model's Predict returned an error
	// for a single state.
	ErrPredictionFailed = errors.New("prediction failed")
)

// Instance is a training pair.
type Instance[S any] struct {
	State  S
	Target float64
}

// FeatureExtractor turns a state into a fixed-length feature vector. It must
// be deterministic.
type FeatureExtractor[S any] interface {
	Features(s S) []float64
}

// FeatureFunc adapts a function to FeatureExtractor.
type FeatureFunc[S any] func(S) []float64

func (f FeatureFunc[S]) Features(s S) []float64 { return f(s) }

// nilExtractor also catches a nil FeatureFunc stored in the interface.
func nilExtractor[S any](fx FeatureExtractor[S]) bool {
	if fx == nil {
		return true
	}
	f, ok := fx.(FeatureFunc[S])
	return ok && f == nil
}

// Predictor is a fitted model.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// Model is a learner that can be fitted once on a dataset. After Fit returns
// successfully the model must not change; Predict may then be called from
// several goroutines.
type Model interface {
	Predictor
	Fit(ds *dataset.Dataset) error
}

// ModelGenerator returns a fresh, untrained model on every call.
type ModelGenerator func() Model

// modelName labels a model in logs and reports.
func modelName(p Predictor) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
