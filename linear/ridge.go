// Package linear provides a ridge regressor over dataset rows.
package linear

import (
	"errors"
	"fmt"

	"github.com/brensch/fvi/dataset"
	"gonum.org/v1/gonum/mat"
)

var ErrNotFitted = errors.New("linear: regressor is not fitted")

// Regressor fits y ≈ w0 + w·x by solving (XᵀX + λI)w = Xᵀy. The intercept
// is not penalised.
type Regressor struct {
	Lambda float64

	schema  dataset.Schema
	weights []float64
}

func New(lambda float64) *Regressor {
	return &Regressor{Lambda: lambda}
}

func (r *Regressor) Name() string { return fmt.Sprintf("ridge(lambda=%g)", r.Lambda) }

func (r *Regressor) Fit(ds *dataset.Dataset) error {
	if r.Lambda < 0 {
		return fmt.Errorf("linear: negative lambda %g", r.Lambda)
	}
	if ds == nil || ds.Len() == 0 {
		return errors.New("linear: empty training set")
	}

	n, m := ds.Len(), ds.Schema().Attributes
	x := mat.NewDense(n, m+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j, v := range ds.Row(i) {
			x.Set(i, j+1, v)
		}
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 1; j <= m; j++ {
		xtx.Set(j, j, xtx.At(j, j)+r.Lambda)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), ds.Targets())

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return fmt.Errorf("linear: solve normal equations: %w", err)
	}

	r.schema = ds.Schema()
	r.weights = make([]float64, m+1)
	for i := range r.weights {
		r.weights[i] = w.AtVec(i)
	}
	return nil
}

// Weights returns a copy of the fitted coefficients, intercept first.
func (r *Regressor) Weights() []float64 {
	return append([]float64(nil), r.weights...)
}

func (r *Regressor) Predict(features []float64) (float64, error) {
	if r.weights == nil {
		return 0, ErrNotFitted
	}
	if err := r.schema.Check(features); err != nil {
		return 0, fmt.Errorf("linear: %w", err)
	}
	y := r.weights[0]
	for j, v := range features {
		y += r.weights[j+1] * v
	}
	return y, nil
}
