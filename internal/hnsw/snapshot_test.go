package hnsw

import "testing"

func TestSnapshotRoundTrip(t *testing.T) {
	idx := newTestIndex(t, 20)
	for i := uint64(0); i < 8; i++ {
		v := []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3}
		if err := idx.Add(i, v); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}
	if err := idx.Delete(3); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	snap, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := FromSnapshot(snap, 99)
	if err != nil {
		t.Fatalf("FromSnapshot failed: %v", err)
	}

	if restored.Len() != idx.Len() {
		t.Errorf("Len mismatch: got %d, want %d", restored.Len(), idx.Len())
	}
	if _, ok, _ := restored.Get(3); ok {
		t.Error("expected deleted label 3 to remain absent after restore")
	}
	got, ok, err := restored.Get(5)
	if err != nil || !ok {
		t.Fatalf("Get(5) failed: ok=%v err=%v", ok, err)
	}
	want := []float32{5, 6, 7, 8}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("restored vector mismatch at %d: got %f want %f", i, got[i], want[i])
		}
	}

	results, err := restored.Query([]float32{5, 6, 7, 8}, 1, nil, nil)
	if err != nil {
		t.Fatalf("Query on restored index failed: %v", err)
	}
	if len(results) != 1 || results[0].Label != 5 {
		t.Errorf("unexpected query result on restored index: %+v", results)
	}
}
