package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/brensch/fvi/dataset"
	"github.com/brensch/fvi/knn"
	"github.com/brensch/fvi/linear"
	"github.com/brensch/fvi/vfa"
)

type trainConfig struct {
	Model     string // "knn" or "ridge"
	K         int
	Weighting string
	Index     string
	Normalize bool
	Lambda    float64
	// Holdout is the fraction of rows kept back for evaluation.
	Holdout float64
	Seed    uint64
}

type trainSummary struct {
	Model       string
	TrainRows   int
	HoldoutRows int
	Attributes  int
	TrainRMSE   float64
	HoldoutRMSE float64 // NaN when there is no holdout
}

func generator(cfg trainConfig) (vfa.ModelGenerator, error) {
	switch cfg.Model {
	case "knn":
		w, err := knn.ParseWeighting(cfg.Weighting)
		if err != nil {
			return nil, err
		}
		idx, err := knn.ParseIndexKind(cfg.Index)
		if err != nil {
			return nil, err
		}
		kc := knn.Config{K: cfg.K, Weighting: w, Index: idx, Normalize: cfg.Normalize}
		if err := kc.Validate(); err != nil {
			return nil, err
		}
		return func() vfa.Model { return knn.New(kc) }, nil
	case "ridge":
		if cfg.Lambda < 0 {
			return nil, fmt.Errorf("lambda must be non-negative, got %g", cfg.Lambda)
		}
		return func() vfa.Model { return linear.New(cfg.Lambda) }, nil
	}
	return nil, fmt.Errorf("unknown model %q", cfg.Model)
}

// rowFeatures treats a stored row as its own state.
func rowFeatures(row []float64) []float64 { return row }

func instancesOf(ds *dataset.Dataset) []vfa.Instance[[]float64] {
	out := make([]vfa.Instance[[]float64], ds.Len())
	for i := range out {
		out[i] = vfa.Instance[[]float64]{State: ds.Row(i), Target: ds.Target(i)}
	}
	return out
}

// splitHoldout shuffles ds with seed and returns (train, holdout).
func splitHoldout(ds *dataset.Dataset, frac float64, seed uint64) (*dataset.Dataset, *dataset.Dataset) {
	idx := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(ds.Len())
	shuffled := ds.Subset(idx)
	n := ds.Len() - int(math.Round(frac*float64(ds.Len())))
	if n < 1 {
		n = 1
	}
	return shuffled.Split(n)
}

func rmse(ctx context.Context, vf *vfa.ValueFunction[[]float64], ds *dataset.Dataset) (float64, error) {
	if ds.Len() == 0 {
		return math.NaN(), nil
	}
	in := instancesOf(ds)
	states := make([][]float64, len(in))
	for i := range in {
		states[i] = in[i].State
	}
	got, err := vf.Values(ctx, states)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, v := range got {
		d := v - in[i].Target
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(got))), nil
}

func trainAndEvaluate(ctx context.Context, ds *dataset.Dataset, cfg trainConfig, opts ...vfa.Option) (trainSummary, error) {
	if cfg.Holdout < 0 || cfg.Holdout >= 1 {
		return trainSummary{}, fmt.Errorf("holdout must be in [0, 1), got %g", cfg.Holdout)
	}
	gen, err := generator(cfg)
	if err != nil {
		return trainSummary{}, err
	}

	train, holdout := splitHoldout(ds, cfg.Holdout, cfg.Seed)
	trainer := vfa.NewTrainer(gen, vfa.FeatureFunc[[]float64](rowFeatures), opts...)
	vf, err := trainer.Train(instancesOf(train))
	if err != nil {
		return trainSummary{}, err
	}

	s := trainSummary{
		TrainRows:   train.Len(),
		HoldoutRows: holdout.Len(),
		Attributes:  vf.Schema().Attributes,
	}
	if named, ok := vf.Model().(interface{ Name() string }); ok {
		s.Model = named.Name()
	}
	if s.TrainRMSE, err = rmse(ctx, vf, train); err != nil {
		return trainSummary{}, fmt.Errorf("evaluate train rows: %w", err)
	}
	if s.HoldoutRMSE, err = rmse(ctx, vf, holdout); err != nil {
		return trainSummary{}, fmt.Errorf("evaluate holdout rows: %w", err)
	}
	return s, nil
}

// evaluatePretrained scores an already fitted predictor against every row of
// ds without training.
func evaluatePretrained(ctx context.Context, ds *dataset.Dataset, p vfa.Predictor) (trainSummary, error) {
	vf, err := vfa.NewValueFunction(vfa.FeatureFunc[[]float64](rowFeatures), p, ds.Schema())
	if err != nil {
		return trainSummary{}, err
	}
	s := trainSummary{
		HoldoutRows: ds.Len(),
		Attributes:  ds.Schema().Attributes,
		TrainRMSE:   math.NaN(),
	}
	if named, ok := p.(interface{ Name() string }); ok {
		s.Model = named.Name()
	}
	if s.HoldoutRMSE, err = rmse(ctx, vf, ds); err != nil {
		return trainSummary{}, fmt.Errorf("evaluate rows: %w", err)
	}
	return s, nil
}
