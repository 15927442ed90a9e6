// Package dataset holds the (feature vector, target) rows a value-function
// learner is fitted on.
package dataset

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrEmptySchema   = errors.New("schema has no attributes")
	ErrWidthMismatch = errors.New("feature vector width does not match schema")
	ErrNonFinite     = errors.New("non-finite value")
)

// Schema describes the attribute layout shared by every row of a dataset.
type Schema struct {
	Attributes int
	// Names is optional; when set it has one entry per attribute.
	Names []string
}

// NewSchema returns a schema of n unnamed attributes.
func NewSchema(n int) Schema {
	return Schema{Attributes: n}
}

// SchemaOf derives a schema from the width of a feature vector.
func SchemaOf(features []float64) (Schema, error) {
	if len(features) == 0 {
		return Schema{}, ErrEmptySchema
	}
	return NewSchema(len(features)), nil
}

// Name returns the attribute name for column i, falling back to "f<i>".
func (s Schema) Name(i int) string {
	if i < len(s.Names) && s.Names[i] != "" {
		return s.Names[i]
	}
	return fmt.Sprintf("f%d", i)
}

// Check reports whether features can be a row under this schema.
func (s Schema) Check(features []float64) error {
	if s.Attributes <= 0 {
		return ErrEmptySchema
	}
	if len(features) != s.Attributes {
		return fmt.Errorf("%w: got %d, want %d", ErrWidthMismatch, len(features), s.Attributes)
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w in attribute %s", ErrNonFinite, s.Name(i))
		}
	}
	return nil
}

// Dataset is an ordered set of rows. Features are stored row-major in a
// single backing slice.
type Dataset struct {
	schema  Schema
	data    []float64
	targets []float64
}

// New returns an empty dataset sized for capacity rows.
func New(schema Schema, capacity int) (*Dataset, error) {
	if schema.Attributes <= 0 {
		return nil, ErrEmptySchema
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Dataset{
		schema:  schema,
		data:    make([]float64, 0, capacity*schema.Attributes),
		targets: make([]float64, 0, capacity),
	}, nil
}

// Add appends a copy of features with its target.
func (d *Dataset) Add(features []float64, target float64) error {
	if err := d.schema.Check(features); err != nil {
		return err
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return fmt.Errorf("%w in target", ErrNonFinite)
	}
	d.data = append(d.data, features...)
	d.targets = append(d.targets, target)
	return nil
}

func (d *Dataset) Schema() Schema { return d.schema }
func (d *Dataset) Len() int       { return len(d.targets) }

// Row returns the features of row i. The slice aliases the dataset and must
// not be modified.
func (d *Dataset) Row(i int) []float64 {
	w := d.schema.Attributes
	return d.data[i*w : (i+1)*w : (i+1)*w]
}

func (d *Dataset) Target(i int) float64 { return d.targets[i] }

// Matrix copies the features into an n×m gonum matrix. It returns nil for an
// empty dataset.
func (d *Dataset) Matrix() *mat.Dense {
	if d.Len() == 0 {
		return nil
	}
	return mat.NewDense(d.Len(), d.schema.Attributes, append([]float64(nil), d.data...))
}

// Targets copies the targets into a gonum vector. It returns nil for an empty
// dataset.
func (d *Dataset) Targets() *mat.VecDense {
	if d.Len() == 0 {
		return nil
	}
	return mat.NewVecDense(d.Len(), append([]float64(nil), d.targets...))
}

// Split returns the first n rows and the remainder as two new datasets.
func (d *Dataset) Split(n int) (*Dataset, *Dataset) {
	if n < 0 {
		n = 0
	}
	if n > d.Len() {
		n = d.Len()
	}
	w := d.schema.Attributes
	head := &Dataset{
		schema:  d.schema,
		data:    append([]float64(nil), d.data[:n*w]...),
		targets: append([]float64(nil), d.targets[:n]...),
	}
	tail := &Dataset{
		schema:  d.schema,
		data:    append([]float64(nil), d.data[n*w:]...),
		targets: append([]float64(nil), d.targets[n:]...),
	}
	return head, tail
}

// Subset returns a new dataset holding rows idx in the given order.
func (d *Dataset) Subset(idx []int) *Dataset {
	w := d.schema.Attributes
	out := &Dataset{
		schema:  d.schema,
		data:    make([]float64, 0, len(idx)*w),
		targets: make([]float64, 0, len(idx)),
	}
	for _, i := range idx {
		out.data = append(out.data, d.Row(i)...)
		out.targets = append(out.targets, d.targets[i])
	}
	return out
}
