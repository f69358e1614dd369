package hnswindex

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/monishSR/hnswlite/internal/kernel"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Dim = 4
	c.MaxElements = 20
	c.M = 4
	c.EfConstruction = 32
	c.EfSearch = 16
	c.Kernel = kernel.Euclidean
	return c
}

func TestInitAddGetQuery(t *testing.T) {
	idx, err := Init(testConfig())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if idx.ID().String() == "" {
		t.Error("expected a non-empty identity")
	}

	for i := uint64(0); i < 5; i++ {
		v := []float32{float32(i), float32(i), float32(i), float32(i)}
		if err := idx.Add(i, v); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	if idx.Len() != 5 {
		t.Errorf("Len() = %d, want 5", idx.Len())
	}

	got, ok, err := idx.Get(3)
	if err != nil || !ok {
		t.Fatalf("Get(3) failed: ok=%v err=%v", ok, err)
	}
	if got[0] != 3 {
		t.Errorf("Get(3) = %v, want starting with 3", got)
	}

	results, err := idx.Query([]float32{3, 3, 3, 3}, 1, nil, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || results[0].Label != 3 {
		t.Errorf("unexpected query result: %+v", results)
	}
}

func TestDeleteMovesLabelToDeletedIDs(t *testing.T) {
	idx, _ := Init(testConfig())
	for i := uint64(0); i < 5; i++ {
		idx.Add(i, []float32{float32(i), float32(i), float32(i), float32(i)})
	}
	if err := idx.Delete(2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	live, deleted := idx.GetAllIDs()
	if len(live) != 4 || len(deleted) != 1 || deleted[0] != 2 {
		t.Errorf("unexpected id sets: live=%v deleted=%v", live, deleted)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	idx, _ := Init(testConfig())
	for i := uint64(0); i < 6; i++ {
		idx.Add(i, []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3})
	}

	dir := filepath.Join(t.TempDir(), "snap")
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wantID := idx.ID()
	loaded, err := Load(dir, &wantID, testConfig())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID() != idx.ID() {
		t.Errorf("loaded ID mismatch: got %s want %s", loaded.ID(), idx.ID())
	}
	if loaded.Len() != idx.Len() {
		t.Errorf("Len mismatch after load: got %d want %d", loaded.Len(), idx.Len())
	}

	if _, err := Load(dir, nil, testConfig()); err != nil {
		t.Errorf("Load with nil id should succeed: %v", err)
	}
	otherID := uuid.New()
	if _, err := Load(dir, &otherID, testConfig()); err == nil {
		t.Error("expected Load to reject a mismatched id")
	}
}

func TestSetAndGetEf(t *testing.T) {
	idx, _ := Init(testConfig())
	idx.SetEf(42)
	if idx.GetEf() != 42 {
		t.Errorf("GetEf() = %d, want 42", idx.GetEf())
	}
}

func TestOpenFdThenCloseFdPreservesReads(t *testing.T) {
	idx, _ := Init(testConfig())
	for i := uint64(0); i < 5; i++ {
		idx.Add(i, []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3})
	}

	dir := filepath.Join(t.TempDir(), "snap")
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := idx.OpenFd(dir); err != nil {
		t.Fatalf("OpenFd failed: %v", err)
	}
	got, ok, err := idx.Get(3)
	if err != nil || !ok {
		t.Fatalf("Get(3) while file-backed failed: ok=%v err=%v", ok, err)
	}
	want := []float32{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d = %f, want %f", i, got[i], want[i])
		}
	}

	if err := idx.CloseFd(); err != nil {
		t.Fatalf("CloseFd failed: %v", err)
	}
	got2, ok, err := idx.Get(3)
	if err != nil || !ok {
		t.Fatalf("Get(3) after CloseFd failed: ok=%v err=%v", ok, err)
	}
	for i := range want {
		if got2[i] != want[i] {
			t.Errorf("component %d after CloseFd = %f, want %f", i, got2[i], want[i])
		}
	}
}

func TestResizeAfterCapacityExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxElements = 1
	idx, _ := Init(cfg)
	if err := idx.Add(1, []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("Add(1) failed: %v", err)
	}
	if err := idx.Add(2, []float32{2, 2, 2, 2}); err == nil {
		t.Fatal("expected CapacityExceeded error")
	}
	if err := idx.Resize(5); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if err := idx.Add(2, []float32{2, 2, 2, 2}); err != nil {
		t.Fatalf("Add after resize failed: %v", err)
	}
}
