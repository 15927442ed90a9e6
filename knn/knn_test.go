package knn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/brensch/fvi/dataset"
)

func build(t *testing.T, rows [][]float64, targets []float64) *dataset.Dataset {
	t.Helper()
	schema, err := dataset.SchemaOf(rows[0])
	if err != nil {
		t.Fatalf("SchemaOf: %v", err)
	}
	ds, err := dataset.New(schema, len(rows))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i, r := range rows {
		if err := ds.Add(r, targets[i]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return ds
}

func fit(t *testing.T, cfg Config, ds *dataset.Dataset) *Regressor {
	t.Helper()
	r := New(cfg)
	if err := r.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return r
}

func predict(t *testing.T, r *Regressor, q []float64) float64 {
	t.Helper()
	v, err := r.Predict(q)
	if err != nil {
		t.Fatalf("Predict(%v): %v", q, err)
	}
	return v
}

func TestExactRecallK1(t *testing.T) {
	ds := build(t, [][]float64{{0, 0}, {1, 1}, {2, 2}}, []float64{1, 2, 3})

	for _, idx := range []IndexKind{KDTree, Linear} {
		cfg := DefaultConfig(1)
		cfg.Index = idx
		r := fit(t, cfg, ds)
		for i, want := range []float64{1, 2, 3} {
			if got := predict(t, r, ds.Row(i)); got != want {
				t.Errorf("%s: row %d: got %v, want %v", idx, i, got, want)
			}
		}
	}
}

func TestSingleRowAlwaysSelected(t *testing.T) {
	ds := build(t, [][]float64{{0}}, []float64{5})
	r := fit(t, DefaultConfig(1), ds)
	for _, q := range []float64{0, -3, 0.5, 100} {
		if got := predict(t, r, []float64{q}); got != 5 {
			t.Errorf("query %v: got %v, want 5", q, got)
		}
	}
}

func TestKLargerThanDatasetUsesAllRows(t *testing.T) {
	ds := build(t, [][]float64{{0}, {1}}, []float64{2, 4})
	cfg := DefaultConfig(10)
	cfg.Weighting = Uniform
	r := fit(t, cfg, ds)
	if got := predict(t, r, []float64{0.2}); got != 3 {
		t.Fatalf("got %v, want mean 3", got)
	}
}

func TestWeightingFormulas(t *testing.T) {
	// Un-normalised 1-D points at distance 0.25 and 0.5 from the query.
	ds := build(t, [][]float64{{0.25}, {1}}, []float64{10, 20})
	q := []float64{0.5}

	cases := []struct {
		w        Weighting
		w1, w2   float64
		describe string
	}{
		{Uniform, 1, 1, "uniform"},
		{Inverse, 1 / (0.25 + InverseEpsilon), 1 / (0.5 + InverseEpsilon), "inverse"},
		{Similarity, 0.75, 0.5, "similarity"},
	}
	for _, c := range cases {
		r := fit(t, Config{K: 2, Weighting: c.w, Index: Linear}, ds)
		want := (c.w1*10 + c.w2*20) / (c.w1 + c.w2)
		if got := predict(t, r, q); math.Abs(got-want) > 1e-12 {
			t.Errorf("%s: got %v, want %v", c.describe, got, want)
		}
	}
}

func TestSimilarityFallsBackToMean(t *testing.T) {
	// Both neighbours are at distance >= 1 so similarity weights are <= 0.
	ds := build(t, [][]float64{{0}, {1}}, []float64{2, 6})
	r := fit(t, Config{K: 2, Weighting: Similarity, Index: KDTree}, ds)
	if got := predict(t, r, []float64{3}); got != 4 {
		t.Fatalf("got %v, want unweighted mean 4", got)
	}
}

func TestTiesResolveByTrainingOrder(t *testing.T) {
	ds := build(t, [][]float64{{1}, {-1}, {1}}, []float64{7, 8, 9})
	for _, idx := range []IndexKind{KDTree, Linear} {
		r := fit(t, Config{K: 1, Weighting: Uniform, Index: idx}, ds)
		if got := predict(t, r, []float64{0}); got != 7 {
			t.Errorf("%s: got %v, want first tied row 7", idx, got)
		}
	}
}

func TestKDTreeMatchesLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows := make([][]float64, 300)
	targets := make([]float64, len(rows))
	for i := range rows {
		rows[i] = []float64{rng.Float64() * 10, rng.Float64(), math.Floor(rng.Float64() * 4)}
		targets[i] = rng.NormFloat64()
	}
	ds := build(t, rows, targets)

	for _, k := range []int{1, 3, 8} {
		kd := DefaultConfig(k)
		lin := kd
		lin.Index = Linear
		a := fit(t, kd, ds)
		b := fit(t, lin, ds)
		for i := 0; i < 100; i++ {
			q := []float64{rng.Float64()*12 - 1, rng.Float64(), math.Floor(rng.Float64() * 4)}
			if x, y := predict(t, a, q), predict(t, b, q); x != y {
				t.Fatalf("k=%d query %v: kdtree %v != linear %v", k, q, x, y)
			}
		}
	}
}

func TestNormalizeScalesAttributes(t *testing.T) {
	// Without normalisation the large second attribute dominates.
	ds := build(t, [][]float64{{0, 0}, {1, 1000}}, []float64{1, 2})
	q := []float64{0.9, 200}

	raw := fit(t, Config{K: 1, Weighting: Uniform, Index: Linear}, ds)
	if got := predict(t, raw, q); got != 1 {
		t.Fatalf("raw distance: got %v, want 1", got)
	}
	cfg := Config{K: 1, Weighting: Uniform, Index: Linear, Normalize: true}
	scaled := fit(t, cfg, ds)
	if got := predict(t, scaled, q); got != 2 {
		t.Fatalf("normalised distance: got %v, want 2", got)
	}
}

func TestErrors(t *testing.T) {
	r := New(DefaultConfig(1))
	if _, err := r.Predict([]float64{0}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}

	if err := New(DefaultConfig(0)).Fit(build(t, [][]float64{{0}}, []float64{0})); !errors.Is(err, ErrBadK) {
		t.Fatalf("expected ErrBadK, got %v", err)
	}

	empty, _ := dataset.New(dataset.NewSchema(1), 0)
	if err := r.Fit(empty); err == nil {
		t.Fatal("expected error fitting empty dataset")
	}

	r = fit(t, DefaultConfig(1), build(t, [][]float64{{0, 0}}, []float64{0}))
	if _, err := r.Predict([]float64{0}); !errors.Is(err, dataset.ErrWidthMismatch) {
		t.Fatalf("expected ErrWidthMismatch, got %v", err)
	}
}

func TestParseWeighting(t *testing.T) {
	for _, w := range []Weighting{Uniform, Inverse, Similarity} {
		got, err := ParseWeighting(w.String())
		if err != nil || got != w {
			t.Fatalf("ParseWeighting(%q) = %v, %v", w.String(), got, err)
		}
	}
	if _, err := ParseWeighting("cosine"); err == nil {
		t.Fatal("expected error for unknown weighting")
	}
}

func TestParseIndexKind(t *testing.T) {
	for _, k := range []IndexKind{KDTree, Linear} {
		got, err := ParseIndexKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseIndexKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseIndexKind("balltree"); err == nil {
		t.Fatal("expected error for unknown index")
	}
}

func TestWeightsUseMeanSquaredAttributeDistance(t *testing.T) {
	// Normalised rows; the query is 0.1 per attribute from the first row
	// and 0.9 from the second, so d is 0.1 and 0.9 over 2 or 3 attributes.
	for _, m := range []int{2, 3} {
		zero := make([]float64, m)
		one := make([]float64, m)
		q := make([]float64, m)
		for i := range one {
			one[i] = 1
			q[i] = 0.1
		}
		ds := build(t, [][]float64{zero, one}, []float64{0, 10})

		cases := []struct {
			w      Weighting
			w1, w2 float64
		}{
			{Similarity, 0.9, 0.1},
			{Inverse, 1 / (0.1 + InverseEpsilon), 1 / (0.9 + InverseEpsilon)},
		}
		for _, c := range cases {
			cfg := DefaultConfig(2)
			cfg.Weighting = c.w
			r := fit(t, cfg, ds)
			want := c.w2 * 10 / (c.w1 + c.w2)
			if got := predict(t, r, q); math.Abs(got-want) > 1e-9 {
				t.Errorf("m=%d %s: got %v, want %v", m, c.w, got, want)
			}
		}
	}
}

func TestPredictionWithinNeighbourTargets(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := make([][]float64, 200)
	targets := make([]float64, len(rows))
	for i := range rows {
		rows[i] = []float64{rng.Float64() * 5, rng.Float64() - 3, rng.Float64() * 100}
		targets[i] = rng.NormFloat64() * 10
	}
	ds := build(t, rows, targets)

	lo := append([]float64(nil), rows[0]...)
	hi := append([]float64(nil), rows[0]...)
	for _, r := range rows {
		for j, v := range r {
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}

	for _, w := range []Weighting{Similarity, Inverse} {
		for _, k := range []int{2, 5, 20} {
			cfg := DefaultConfig(k)
			cfg.Weighting = w
			r := fit(t, cfg, ds)
			for n := 0; n < 50; n++ {
				q := make([]float64, len(lo))
				for j := range q {
					q[j] = lo[j] + rng.Float64()*(hi[j]-lo[j])
				}
				minY, maxY := math.Inf(1), math.Inf(-1)
				for _, nb := range r.idx.nearest(r.norm.apply(q), k) {
					minY = math.Min(minY, r.targets[nb.row])
					maxY = math.Max(maxY, r.targets[nb.row])
				}
				got := predict(t, r, q)
				if got < minY-1e-9 || got > maxY+1e-9 {
					t.Fatalf("%s k=%d query %v: %v outside neighbour targets [%v, %v]", w, k, q, got, minY, maxY)
				}
			}
		}
	}
}
