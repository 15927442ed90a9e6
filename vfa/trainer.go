package vfa

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brensch/fvi/dataset"
	"github.com/brensch/fvi/knn"
)

// Trainer fits value functions from (state, target) instances.
type Trainer[S any] struct {
	generate ModelGenerator
	features FeatureExtractor[S]
	opts     options
}

// NewTrainer returns a trainer that fits a model obtained from gen on
// features produced by fx.
func NewTrainer[S any](gen ModelGenerator, fx FeatureExtractor[S], opts ...Option) *Trainer[S] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Trainer[S]{generate: gen, features: fx, opts: o}
}

// NewKNNTrainer returns a trainer for a k-nearest-neighbour regressor that
// searches a KD-tree and weights neighbours by similarity (1 - distance).
func NewKNNTrainer[S any](fx FeatureExtractor[S], k int, opts ...Option) (*Trainer[S], error) {
	cfg := knn.DefaultConfig(k)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	gen := func() Model { return knn.New(cfg) }
	return NewTrainer(gen, fx, opts...), nil
}

// Train builds a dataset from instances, fits a fresh model and returns the
// resulting value function. The schema is taken from the first instance;
// every other instance must produce a vector of the same width.
func (t *Trainer[S]) Train(instances []Instance[S]) (*ValueFunction[S], error) {
	report := TrainReport{Started: time.Now(), Instances: len(instances)}
	vf, err := t.train(instances, &report)
	report.Duration = time.Since(report.Started)
	report.Err = err
	t.notify(report)
	return vf, err
}

func (t *Trainer[S]) train(instances []Instance[S], report *TrainReport) (*ValueFunction[S], error) {
	if t.generate == nil || nilExtractor(t.features) {
		return nil, fmt.Errorf("%w: trainer needs a model generator and a feature extractor", ErrInvalidInput)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInvalidInput)
	}

	schema, err := dataset.SchemaOf(t.features.Features(instances[0].State))
	if err != nil {
		return nil, fmt.Errorf("%w: instance 0: %w", ErrInvalidInput, err)
	}
	report.Attributes = schema.Attributes

	ds, err := dataset.New(schema, len(instances))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for i, inst := range instances {
		if err := ds.Add(t.features.Features(inst.State), inst.Target); err != nil {
			return nil, fmt.Errorf("%w: instance %d: %w", ErrInvalidInput, i, err)
		}
	}

	model := t.generate()
	if model == nil {
		return nil, fmt.Errorf("%w: model generator returned nil", ErrInvalidInput)
	}
	report.Model = modelName(model)

	if err := fit(model, ds); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTrainingFailed, report.Model, err)
	}

	return &ValueFunction[S]{
		features: t.features,
		model:    model,
		schema:   schema,
		workers:  t.opts.workers,
	}, nil
}

// fit converts a panic inside the model into an error so a broken learner
// cannot leave the caller with a half-fitted model.
func fit(m Model, ds *dataset.Dataset) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in Fit: %v", r)
		}
	}()
	return m.Fit(ds)
}

func (t *Trainer[S]) notify(r TrainReport) {
	attrs := []any{
		slog.Int("instances", r.Instances),
		slog.Int("attributes", r.Attributes),
		slog.String("model", r.Model),
		slog.Duration("duration", r.Duration),
	}
	switch {
	case r.Err == nil:
		t.opts.logger.Info("value function trained", attrs...)
	case errors.Is(r.Err, ErrInvalidInput):
		t.opts.logger.Warn("training rejected", append(attrs, slog.Any("error", r.Err))...)
	default:
		t.opts.logger.Error("training failed", append(attrs, slog.Any("error", r.Err))...)
	}
	for _, obs := range t.opts.observers {
		obs.ObserveTrain(r)
	}
}
