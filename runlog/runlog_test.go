package runlog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/brensch/fvi/vfa"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := tempStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := s.Record("unit", vfa.TrainReport{
		Started:    started,
		Duration:   250 * time.Millisecond,
		Instances:  10,
		Attributes: 3,
		Model:      "knn(k=1,similarity,kdtree)",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("expected run id")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Label != "unit" || got.Instances != 10 || got.Attributes != 3 || got.Error != "" {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected timing %v %v", got.StartedAt, got.Duration)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := tempStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := s.Record("", vfa.TrainReport{Started: base.Add(time.Duration(i) * time.Hour), Instances: i}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	runs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 || runs[0].Instances != 2 || runs[1].Instances != 1 {
		t.Fatalf("unexpected order %+v", runs)
	}
}

func TestObserverRecordsFailures(t *testing.T) {
	s := tempStore(t)
	tr := vfa.NewTrainer[[]float64](
		func() vfa.Model { return nil },
		vfa.FeatureFunc[[]float64](func(v []float64) []float64 { return v }),
		vfa.WithObserver(s.Observer("failing", nil)),
	)
	_, err := tr.Train([]vfa.Instance[[]float64]{{State: []float64{1}, Target: 1}})
	if !errors.Is(err, vfa.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	runs, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Label != "failing" || runs[0].Error == "" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}
