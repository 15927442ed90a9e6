// Package knn implements instance-based regression: the prediction for a
// query is a weighted average of the targets of its k nearest training rows.
package knn

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/fvi/dataset"
)

// Weighting selects how neighbour distances turn into voting weights. The
// distance d passed to a weighting is sqrt(Σ(qᵢ-xᵢ)²/m) over m attributes.
type Weighting int

const (
	// Uniform gives every neighbour weight 1.
	Uniform Weighting = iota
	// Inverse weights a neighbour by 1/(d+InverseEpsilon).
	Inverse
	// Similarity weights a neighbour by 1-d.
	Similarity
)

const InverseEpsilon = 0.001

func (w Weighting) String() string {
	switch w {
	case Uniform:
		return "uniform"
	case Inverse:
		return "inverse"
	case Similarity:
		return "similarity"
	}
	return fmt.Sprintf("weighting(%d)", int(w))
}

// ParseWeighting is the inverse of Weighting.String.
func ParseWeighting(s string) (Weighting, error) {
	switch s {
	case "uniform":
		return Uniform, nil
	case "inverse":
		return Inverse, nil
	case "similarity":
		return Similarity, nil
	}
	return 0, fmt.Errorf("unknown weighting %q", s)
}

func (w Weighting) weight(d float64) float64 {
	switch w {
	case Inverse:
		return 1 / (d + InverseEpsilon)
	case Similarity:
		return 1 - d
	}
	return 1
}

// IndexKind selects the neighbour search structure.
type IndexKind int

const (
	KDTree IndexKind = iota
	Linear
)

func (k IndexKind) String() string {
	if k == Linear {
		return "linear"
	}
	return "kdtree"
}

// ParseIndexKind is the inverse of IndexKind.String.
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "kdtree":
		return KDTree, nil
	case "linear":
		return Linear, nil
	}
	return 0, fmt.Errorf("unknown index %q", s)
}

var (
	ErrNotFitted = errors.New("knn: regressor is not fitted")
	ErrBadK      = errors.New("knn: k must be at least 1")
)

type Config struct {
	K         int
	Weighting Weighting
	Index     IndexKind
	// Normalize rescales every attribute to [0,1] using the training ranges
	// before distances are measured.
	Normalize bool
}

// DefaultConfig is a KD-tree backed regressor with similarity weighting over
// normalised attributes.
func DefaultConfig(k int) Config {
	return Config{
		K:         k,
		Weighting: Similarity,
		Index:     KDTree,
		Normalize: true,
	}
}

func (c Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("%w: got %d", ErrBadK, c.K)
	}
	switch c.Weighting {
	case Uniform, Inverse, Similarity:
	default:
		return fmt.Errorf("knn: unknown weighting %d", int(c.Weighting))
	}
	switch c.Index {
	case KDTree, Linear:
	default:
		return fmt.Errorf("knn: unknown index %d", int(c.Index))
	}
	return nil
}

// neighbor is a training row and its Euclidean distance to the query.
type neighbor struct {
	row  int
	dist float64
}

type index interface {
	nearest(q []float64, k int) []neighbor
}

// Regressor is a k-nearest-neighbour regressor. After Fit returns it is only
// read, so Predict may be called concurrently.
type Regressor struct {
	cfg Config

	schema  dataset.Schema
	norm    *normalizer
	idx     index
	targets []float64
}

func New(cfg Config) *Regressor {
	return &Regressor{cfg: cfg}
}

func (r *Regressor) Config() Config { return r.cfg }

func (r *Regressor) Name() string {
	return fmt.Sprintf("knn(k=%d,%s,%s)", r.cfg.K, r.cfg.Weighting, r.cfg.Index)
}

// Fit stores the dataset rows in the configured index.
func (r *Regressor) Fit(ds *dataset.Dataset) error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if ds == nil || ds.Len() == 0 {
		return errors.New("knn: empty training set")
	}

	schema := ds.Schema()
	var norm *normalizer
	if r.cfg.Normalize {
		norm = newNormalizer(ds)
	}

	points := make([][]float64, ds.Len())
	targets := make([]float64, ds.Len())
	for i := range points {
		points[i] = norm.apply(ds.Row(i))
		targets[i] = ds.Target(i)
	}

	var idx index
	switch r.cfg.Index {
	case Linear:
		idx = newLinearIndex(points)
	default:
		idx = newKDIndex(points)
	}

	r.schema = schema
	r.norm = norm
	r.idx = idx
	r.targets = targets
	return nil
}

// Predict returns the weighted average target of the k nearest rows.
func (r *Regressor) Predict(features []float64) (float64, error) {
	if r.idx == nil {
		return 0, ErrNotFitted
	}
	if err := r.schema.Check(features); err != nil {
		return 0, fmt.Errorf("knn: %w", err)
	}

	k := r.cfg.K
	if k > len(r.targets) {
		k = len(r.targets)
	}
	neighbors := r.idx.nearest(r.norm.apply(features), k)
	if len(neighbors) == 0 {
		return 0, errors.New("knn: no neighbours found")
	}

	// Weights see the root mean squared per-attribute difference, which
	// stays in [0,1] for normalised queries inside the training ranges.
	scale := 1 / math.Sqrt(float64(r.schema.Attributes))

	var sum, total, mean float64
	for _, n := range neighbors {
		y := r.targets[n.row]
		w := r.cfg.Weighting.weight(n.dist * scale)
		sum += w * y
		total += w
		mean += y
	}
	mean /= float64(len(neighbors))

	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return mean, nil
	}
	return sum / total, nil
}
