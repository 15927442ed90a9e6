package linear

import (
	"errors"
	"math"
	"testing"

	"github.com/brensch/fvi/dataset"
)

func line(t *testing.T, xs [][]float64, f func([]float64) float64) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(dataset.NewSchema(len(xs[0])), len(xs))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, x := range xs {
		if err := ds.Add(x, f(x)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return ds
}

func TestRecoversLinearFunction(t *testing.T) {
	ds := line(t, [][]float64{{0, 1}, {1, 0}, {2, 3}, {3, 1}, {4, 4}},
		func(x []float64) float64 { return 2 + 3*x[0] - x[1] })

	r := New(0)
	if err := r.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	want := []float64{2, 3, -1}
	for i, w := range r.Weights() {
		if math.Abs(w-want[i]) > 1e-9 {
			t.Fatalf("weight %d: got %v, want %v", i, w, want[i])
		}
	}
	got, err := r.Predict([]float64{10, 5})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if math.Abs(got-27) > 1e-9 {
		t.Fatalf("got %v, want 27", got)
	}
}

func TestLambdaShrinksSlope(t *testing.T) {
	ds := line(t, [][]float64{{0}, {1}, {2}, {3}}, func(x []float64) float64 { return 4 * x[0] })

	plain, ridge := New(0), New(10)
	if err := plain.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if err := ridge.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !(math.Abs(ridge.Weights()[1]) < math.Abs(plain.Weights()[1])) {
		t.Fatalf("expected ridge slope %v to shrink below %v", ridge.Weights()[1], plain.Weights()[1])
	}
}

func TestSingularSystemFails(t *testing.T) {
	// A constant zero column makes XᵀX singular without regularisation.
	ds := line(t, [][]float64{{0}, {0}, {0}}, func([]float64) float64 { return 1 })
	if err := New(0).Fit(ds); err == nil {
		t.Fatal("expected singular system error")
	}
	if err := New(0.5).Fit(ds); err != nil {
		t.Fatalf("regularised fit should succeed: %v", err)
	}
}

func TestPredictErrors(t *testing.T) {
	if _, err := New(0).Predict([]float64{1}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
	ds := line(t, [][]float64{{0}, {1}}, func(x []float64) float64 { return x[0] })
	r := New(0)
	if err := r.Fit(ds); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := r.Predict([]float64{1, 2}); !errors.Is(err, dataset.ErrWidthMismatch) {
		t.Fatalf("expected ErrWidthMismatch, got %v", err)
	}
	if err := New(-1).Fit(ds); err == nil {
		t.Fatal("expected error for negative lambda")
	}
}
