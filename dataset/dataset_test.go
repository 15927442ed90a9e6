package dataset

import (
	"errors"
	"math"
	"testing"
)

func TestAddCopiesFeatures(t *testing.T) {
	ds, err := New(NewSchema(2), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec := []float64{1, 2}
	if err := ds.Add(vec, 3); err != nil {
		t.Fatalf("Add: %v", err)
	}
	vec[0] = 99

	if got := ds.Row(0)[0]; got != 1 {
		t.Fatalf("row aliased caller slice: got %v", got)
	}
	if ds.Len() != 1 || ds.Target(0) != 3 {
		t.Fatalf("unexpected dataset contents: len=%d target=%v", ds.Len(), ds.Target(0))
	}
}

func TestAddRejectsWidthMismatch(t *testing.T) {
	ds, _ := New(NewSchema(2), 2)
	if err := ds.Add([]float64{1, 2}, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := ds.Add([]float64{1, 2, 3}, 0)
	if !errors.Is(err, ErrWidthMismatch) {
		t.Fatalf("expected ErrWidthMismatch, got %v", err)
	}
	if ds.Len() != 1 {
		t.Fatalf("rejected row was stored, len=%d", ds.Len())
	}
}

func TestAddRejectsNonFinite(t *testing.T) {
	ds, _ := New(NewSchema(1), 2)
	if err := ds.Add([]float64{math.NaN()}, 0); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite for NaN feature, got %v", err)
	}
	if err := ds.Add([]float64{0}, math.Inf(1)); !errors.Is(err, ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite for Inf target, got %v", err)
	}
}

func TestSchemaOfEmpty(t *testing.T) {
	if _, err := SchemaOf(nil); !errors.Is(err, ErrEmptySchema) {
		t.Fatalf("expected ErrEmptySchema, got %v", err)
	}
	if _, err := New(Schema{}, 4); !errors.Is(err, ErrEmptySchema) {
		t.Fatalf("expected ErrEmptySchema from New, got %v", err)
	}
}

func TestSchemaName(t *testing.T) {
	s := Schema{Attributes: 2, Names: []string{"x"}}
	if s.Name(0) != "x" || s.Name(1) != "f1" {
		t.Fatalf("unexpected names: %q %q", s.Name(0), s.Name(1))
	}
}

func TestMatrixAndTargets(t *testing.T) {
	ds, _ := New(NewSchema(2), 2)
	_ = ds.Add([]float64{1, 2}, 10)
	_ = ds.Add([]float64{3, 4}, 20)

	m := ds.Matrix()
	r, c := m.Dims()
	if r != 2 || c != 2 {
		t.Fatalf("expected 2x2, got %dx%d", r, c)
	}
	if m.At(1, 0) != 3 {
		t.Fatalf("expected m[1,0]=3, got %v", m.At(1, 0))
	}
	m.Set(1, 0, 42)
	if ds.Row(1)[0] != 3 {
		t.Fatal("Matrix must not alias dataset storage")
	}

	y := ds.Targets()
	if y.Len() != 2 || y.AtVec(1) != 20 {
		t.Fatalf("unexpected targets vector")
	}

	empty, _ := New(NewSchema(2), 0)
	if empty.Matrix() != nil || empty.Targets() != nil {
		t.Fatal("expected nil views for empty dataset")
	}
}

func TestSplitAndSubset(t *testing.T) {
	ds, _ := New(NewSchema(1), 4)
	for i := 0; i < 4; i++ {
		_ = ds.Add([]float64{float64(i)}, float64(i*10))
	}

	sub := ds.Subset([]int{3, 1})
	if sub.Len() != 2 || sub.Row(0)[0] != 3 || sub.Target(1) != 10 {
		t.Fatalf("unexpected subset: %v %v", sub.Row(0), sub.Target(1))
	}

	head, tail := ds.Split(3)
	if head.Len() != 3 || tail.Len() != 1 {
		t.Fatalf("expected 3/1 split, got %d/%d", head.Len(), tail.Len())
	}
	if tail.Row(0)[0] != 3 {
		t.Fatalf("unexpected tail row %v", tail.Row(0))
	}

	all, none := ds.Split(10)
	if all.Len() != 4 || none.Len() != 0 {
		t.Fatalf("expected clamp to 4/0, got %d/%d", all.Len(), none.Len())
	}
}
