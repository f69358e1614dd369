package store

import (
	"testing"

	"github.com/monishSR/hnswlite/internal/herr"
)

func TestAllocateAndReadVector(t *testing.T) {
	s, err := New(4, 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	slot, err := s.AllocateSlot(42, false)
	if err != nil {
		t.Fatalf("AllocateSlot failed: %v", err)
	}
	v := []float32{1, 2, 3, 4}
	if err := s.WriteVector(slot, v); err != nil {
		t.Fatalf("WriteVector failed: %v", err)
	}

	got, err := s.ReadVector(slot)
	if err != nil {
		t.Fatalf("ReadVector failed: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("vector mismatch at %d: want %f got %f", i, v[i], got[i])
		}
	}
}

func TestAllocateDuplicateLabel(t *testing.T) {
	s, _ := New(4, 10)
	if _, err := s.AllocateSlot(1, false); err != nil {
		t.Fatalf("first allocate failed: %v", err)
	}
	_, err := s.AllocateSlot(1, false)
	if !herr.Is(err, herr.DuplicateLabel) {
		t.Fatalf("expected DuplicateLabel, got %v", err)
	}
}

func TestCapacityExceededWithoutReuse(t *testing.T) {
	s, _ := New(4, 2)
	if _, err := s.AllocateSlot(1, false); err != nil {
		t.Fatalf("allocate 1 failed: %v", err)
	}
	if _, err := s.AllocateSlot(2, false); err != nil {
		t.Fatalf("allocate 2 failed: %v", err)
	}
	_, err := s.AllocateSlot(3, false)
	if !herr.Is(err, herr.CapacityExceeded) {
		t.Fatalf("expected CapacityExceeded, got %v", err)
	}
}

func TestFreeAndReuseOldestFirst(t *testing.T) {
	s, _ := New(4, 2)
	slot1, _ := s.AllocateSlot(1, false)
	slot2, _ := s.AllocateSlot(2, false)

	if _, err := s.FreeSlot(1); err != nil {
		t.Fatalf("FreeSlot(1) failed: %v", err)
	}
	if _, err := s.FreeSlot(2); err != nil {
		t.Fatalf("FreeSlot(2) failed: %v", err)
	}

	reused, err := s.AllocateSlot(3, true)
	if err != nil {
		t.Fatalf("reuse allocate failed: %v", err)
	}
	if reused != slot1 {
		t.Errorf("expected oldest deleted slot %d to be reused, got %d", slot1, reused)
	}
	_ = slot2
}

func TestFreeUnknownLabel(t *testing.T) {
	s, _ := New(4, 2)
	_, err := s.FreeSlot(99)
	if !herr.Is(err, herr.UnknownLabel) {
		t.Fatalf("expected UnknownLabel, got %v", err)
	}
}

func TestFreeRemovesFromLiveLookup(t *testing.T) {
	s, _ := New(4, 2)
	s.AllocateSlot(1, false)
	s.FreeSlot(1)
	if _, ok := s.LookupSlot(1); ok {
		t.Error("expected label 1 to be absent from live lookup after delete")
	}
	if !s.IsDeleted(0) {
		t.Error("expected slot 0 to be marked deleted")
	}
}

func TestLenAndLenWithDeleted(t *testing.T) {
	s, _ := New(4, 3)
	s.AllocateSlot(1, false)
	s.AllocateSlot(2, false)
	s.FreeSlot(1)

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := s.LenWithDeleted(); got != 2 {
		t.Errorf("LenWithDeleted() = %d, want 2", got)
	}
}

func TestResizePreservesData(t *testing.T) {
	s, _ := New(2, 2)
	slot, _ := s.AllocateSlot(1, false)
	s.WriteVector(slot, []float32{9, 9})

	if err := s.Resize(10); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if s.Capacity() != 10 {
		t.Errorf("Capacity() = %d, want 10", s.Capacity())
	}
	got, err := s.ReadVector(slot)
	if err != nil {
		t.Fatalf("ReadVector after resize failed: %v", err)
	}
	if got[0] != 9 || got[1] != 9 {
		t.Errorf("data not preserved after resize: %v", got)
	}

	if _, err := s.AllocateSlot(2, false); err != nil {
		t.Fatalf("allocate after resize failed: %v", err)
	}
}

func TestResizeShrinkIsNoop(t *testing.T) {
	s, _ := New(2, 10)
	if err := s.Resize(5); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if s.Capacity() != 10 {
		t.Errorf("expected capacity to remain 10, got %d", s.Capacity())
	}
}

func TestIterateLiveAndDeleted(t *testing.T) {
	s, _ := New(2, 4)
	s.AllocateSlot(1, false)
	s.AllocateSlot(2, false)
	s.AllocateSlot(3, false)
	s.FreeSlot(2)

	live := map[uint64]bool{}
	s.IterateLive(func(label uint64, _ uint32) { live[label] = true })
	if len(live) != 2 || !live[1] || !live[3] {
		t.Errorf("unexpected live set: %v", live)
	}

	deleted := map[uint64]bool{}
	s.IterateDeleted(func(label uint64, _ uint32) { deleted[label] = true })
	if len(deleted) != 1 || !deleted[2] {
		t.Errorf("unexpected deleted set: %v", deleted)
	}
}

func TestWriteVectorDimensionMismatch(t *testing.T) {
	s, _ := New(4, 2)
	slot, _ := s.AllocateSlot(1, false)
	err := s.WriteVector(slot, []float32{1, 2})
	if !herr.Is(err, herr.DimensionMismatch) {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}
}

func TestClearResetsStore(t *testing.T) {
	s, _ := New(2, 4)
	s.AllocateSlot(1, false)
	s.AllocateSlot(2, false)
	s.FreeSlot(1)

	s.Clear()
	if s.Len() != 0 || s.LenWithDeleted() != 0 {
		t.Errorf("expected empty store after Clear, got Len=%d LenWithDeleted=%d", s.Len(), s.LenWithDeleted())
	}
	if _, err := s.AllocateSlot(1, false); err != nil {
		t.Fatalf("allocate after clear failed: %v", err)
	}
}
