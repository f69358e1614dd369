package hnsw

import (
	"math"
	"testing"

	"github.com/monishSR/hnswlite/internal/herr"
	"github.com/monishSR/hnswlite/internal/kernel"
)

func newTestIndex(t *testing.T, maxElements int) *Index {
	t.Helper()
	idx, err := New(Config{
		Dim:            4,
		Kernel:         kernel.Euclidean,
		MaxElements:    maxElements,
		M:              4,
		EfConstruction: 32,
		EfSearch:       16,
		RandomSeed:     1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return idx
}

func TestAddAndLenInvariant(t *testing.T) {
	idx := newTestIndex(t, 10)
	for i := uint64(0); i < 5; i++ {
		v := []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3}
		if err := idx.Add(i, v); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	if idx.Len() != 5 {
		t.Errorf("Len() = %d, want 5", idx.Len())
	}
}

func TestGetAfterAddMatchesWithinTolerance(t *testing.T) {
	idx := newTestIndex(t, 10)
	v := []float32{1.5, 2.5, 3.5, 4.5}
	if err := idx.Add(7, v); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, ok, err := idx.Get(7)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	for i := range v {
		if math.Abs(float64(got[i]-v[i])) > 1e-5 {
			t.Errorf("component %d = %f, want %f", i, got[i], v[i])
		}
	}
}

func TestSelfQueryReturnsZeroDistance(t *testing.T) {
	idx := newTestIndex(t, 20)
	for i := uint64(0); i < 10; i++ {
		v := []float32{float32(i), float32(i * 2), float32(i * 3), float32(i * 4)}
		if err := idx.Add(i, v); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	query := []float32{5, 10, 15, 20}
	results, err := idx.Query(query, 1, nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Label != 5 {
		t.Errorf("expected label 5 nearest to itself, got %d", results[0].Label)
	}
	if results[0].Distance > 1e-4 {
		t.Errorf("expected ~zero self-distance, got %f", results[0].Distance)
	}
}

func TestSingleVectorSelfQuery(t *testing.T) {
	idx := newTestIndex(t, 4)
	v := []float32{1, 2, 3, 4}
	if err := idx.Add(1, v); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	results, err := idx.Query(v, 1, nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0].Label != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestDeleteHidesFromGetAndQuery(t *testing.T) {
	idx := newTestIndex(t, 10)
	for i := uint64(0); i < 5; i++ {
		v := []float32{float32(i), float32(i), float32(i), float32(i)}
		idx.Add(i, v)
	}
	if err := idx.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := idx.Get(2); ok {
		t.Error("expected Get to report deleted label as absent")
	}
	results, err := idx.Query([]float32{2, 2, 2, 2}, 5, nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, r := range results {
		if r.Label == 2 {
			t.Error("deleted label 2 appeared in query results")
		}
	}
}

func TestAllowedFilterRestrictsResults(t *testing.T) {
	idx := newTestIndex(t, 10)
	for i := uint64(0); i < 6; i++ {
		v := []float32{float32(i), float32(i), float32(i), float32(i)}
		idx.Add(i, v)
	}
	results, err := idx.Query([]float32{3, 3, 3, 3}, 3, []uint64{0, 1}, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, r := range results {
		if r.Label != 0 && r.Label != 1 {
			t.Errorf("unexpected label %d outside allowed set", r.Label)
		}
	}
}

func TestDisallowedFilterExcludesResults(t *testing.T) {
	idx := newTestIndex(t, 10)
	for i := uint64(0); i < 6; i++ {
		v := []float32{float32(i), float32(i), float32(i), float32(i)}
		idx.Add(i, v)
	}
	results, err := idx.Query([]float32{3, 3, 3, 3}, 6, nil, []uint64{3})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	for _, r := range results {
		if r.Label == 3 {
			t.Error("disallowed label 3 appeared in results")
		}
	}
}

func TestCapacityExceededThenResizeSucceeds(t *testing.T) {
	idx := newTestIndex(t, 2)
	if err := idx.Add(1, []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("Add(1) failed: %v", err)
	}
	if err := idx.Add(2, []float32{2, 2, 2, 2}); err != nil {
		t.Fatalf("Add(2) failed: %v", err)
	}
	err := idx.Add(3, []float32{3, 3, 3, 3})
	if !herr.Is(err, herr.CapacityExceeded) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}
	if err := idx.Resize(10); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if err := idx.Add(3, []float32{3, 3, 3, 3}); err != nil {
		t.Fatalf("Add after resize failed: %v", err)
	}
}

func TestSetAndGetEf(t *testing.T) {
	idx := newTestIndex(t, 4)
	idx.SetEf(77)
	if idx.GetEf() != 77 {
		t.Errorf("GetEf() = %d, want 77", idx.GetEf())
	}
}

func TestDimensionMismatchOnAdd(t *testing.T) {
	idx := newTestIndex(t, 4)
	err := idx.Add(1, []float32{1, 2})
	if !herr.Is(err, herr.DimensionMismatch) {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}
}

func TestGetAllIDsSeparatesLiveAndDeleted(t *testing.T) {
	idx := newTestIndex(t, 10)
	idx.Add(1, []float32{1, 1, 1, 1})
	idx.Add(2, []float32{2, 2, 2, 2})
	idx.Add(3, []float32{3, 3, 3, 3})
	idx.Delete(2)

	live, deleted := idx.GetAllIDs()
	if len(live) != 2 {
		t.Errorf("expected 2 live ids, got %d", len(live))
	}
	if len(deleted) != 1 || deleted[0] != 2 {
		t.Errorf("expected deleted=[2], got %v", deleted)
	}
}

func TestEntryPointReplacedAfterDeletingIt(t *testing.T) {
	idx := newTestIndex(t, 10)
	idx.Add(1, []float32{1, 1, 1, 1})
	idx.Add(2, []float32{2, 2, 2, 2})
	idx.Add(3, []float32{3, 3, 3, 3})

	entrySlot := idx.entry.slot
	entryLabel, _ := idx.store.LabelOf(entrySlot)
	if err := idx.Delete(entryLabel); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	results, err := idx.Query([]float32{2, 2, 2, 2}, 1, nil, nil)
	if err != nil {
		t.Fatalf("Query after entry-point deletion failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected a result after entry point replacement, got none")
	}
}

func TestQueryOnEmptyIndexReturnsNoResults(t *testing.T) {
	idx := newTestIndex(t, 10)
	results, err := idx.Query([]float32{1, 1, 1, 1}, 3, nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results on empty index, got %d", len(results))
	}
}
