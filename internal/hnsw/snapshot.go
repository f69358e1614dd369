package hnsw

import (
	"github.com/monishSR/hnswlite/internal/graph"
	"github.com/monishSR/hnswlite/internal/herr"
	"github.com/monishSR/hnswlite/internal/kernel"
	"github.com/monishSR/hnswlite/internal/store"
)

// Snapshot is the in-memory data-transfer form of an Index, produced by
// Index.Snapshot and consumed by FromSnapshot. It exists so that
// internal/persist can serialize/deserialize an Index without reaching
// into its unexported fields.
type Snapshot struct {
	Dim            int
	Kernel         kernel.Name
	M              int
	EfConstruction int
	EfSearch       int
	RandomSeed     int64
	AllowReplace   bool

	Capacity int

	Vectors     []float32 // capacity*Dim, slot-major
	SlotToLabel map[uint32]uint64
	Deleted     map[uint32]struct{}
	DeletedFIFO []uint32
	NextSlot    uint32

	Levels []int32
	Layer0 []uint32
	Upper  [][][]uint32

	EntrySlot  uint32
	EntryLevel int
	EntryValid bool
}

// Snapshot captures idx's full state for persistence.
func (idx *Index) Snapshot() (Snapshot, error) {
	vectors, resident := idx.store.RawVectors()
	if !resident {
		return Snapshot{}, herr.New(herr.Internal, "cannot snapshot a file-backed index; call SwitchToResident first")
	}
	deleted, deletedFIFO := idx.store.DeletedSlots()

	return Snapshot{
		Dim:            idx.store.Dim(),
		Kernel:         idx.kernelName,
		M:              idx.m,
		EfConstruction: idx.efConstruction,
		EfSearch:       idx.efSearch,
		AllowReplace:   idx.allowReplace,
		Capacity:       idx.store.Capacity(),

		Vectors:     append([]float32(nil), vectors...),
		SlotToLabel: idx.store.SlotLabelPairs(),
		Deleted:     deleted,
		DeletedFIFO: append([]uint32(nil), deletedFIFO...),
		NextSlot:    idx.store.NextSlot(),

		Levels: append([]int32(nil), idx.graph.RawLevels()...),
		Layer0: append([]uint32(nil), idx.graph.RawLayer0()...),
		Upper:  copyUpper(idx.graph, idx.store.Capacity()),

		EntrySlot:  idx.entry.slot,
		EntryLevel: idx.entry.level,
		EntryValid: idx.entry.valid,
	}, nil
}

func copyUpper(g *graph.Graph, capacity int) [][][]uint32 {
	out := make([][][]uint32, capacity)
	for slot := 0; slot < capacity; slot++ {
		out[slot] = g.UpperNeighbors(uint32(slot))
	}
	return out
}

// FromSnapshot rebuilds an Index from a previously captured Snapshot.
// randomSeed reseeds the level-sampling PRNG; it need not match the
// seed used when the snapshot was taken for the index to function
// correctly, since every existing slot's level was already assigned.
func FromSnapshot(snap Snapshot, randomSeed int64) (*Index, error) {
	idx, err := New(Config{
		Dim:                 snap.Dim,
		Kernel:              snap.Kernel,
		MaxElements:         snap.Capacity,
		M:                   snap.M,
		EfConstruction:      snap.EfConstruction,
		EfSearch:            snap.EfSearch,
		RandomSeed:          randomSeed,
		AllowReplaceDeleted: snap.AllowReplace,
	})
	if err != nil {
		return nil, err
	}

	idx.store.Restore(snap.Vectors, snap.SlotToLabel, snap.Deleted, snap.DeletedFIFO, snap.NextSlot)
	idx.graph.Restore(snap.Levels, snap.Layer0, snap.Upper)
	idx.entry = entryPoint{slot: snap.EntrySlot, level: snap.EntryLevel, valid: snap.EntryValid}

	if err := validateSnapshotIntegrity(idx, snap); err != nil {
		return nil, err
	}
	return idx, nil
}

// validateSnapshotIntegrity checks the invariants spec §6 requires a
// loaded index to satisfy before it is handed back to a caller.
func validateSnapshotIntegrity(idx *Index, snap Snapshot) error {
	if snap.EntryValid {
		if int(snap.EntrySlot) >= snap.Capacity {
			return herr.Newf(herr.IntegrityFailure, "entry point slot %d exceeds capacity %d", snap.EntrySlot, snap.Capacity)
		}
		if idx.store.IsDeleted(snap.EntrySlot) {
			return herr.Newf(herr.IntegrityFailure, "entry point slot %d is marked deleted", snap.EntrySlot)
		}
		if idx.graph.LevelOf(snap.EntrySlot) != snap.EntryLevel {
			return herr.Newf(herr.IntegrityFailure, "entry point level %d does not match graph level %d", snap.EntryLevel, idx.graph.LevelOf(snap.EntrySlot))
		}
	}

	for slot, label := range snap.SlotToLabel {
		if _, isDeleted := snap.Deleted[slot]; isDeleted {
			continue
		}
		resolved, ok := idx.store.LookupSlot(label)
		if !ok || resolved != slot {
			return herr.Newf(herr.IntegrityFailure, "label %d does not resolve back to slot %d", label, slot)
		}
	}

	for slot := 0; slot < snap.Capacity; slot++ {
		level := idx.graph.LevelOf(uint32(slot))
		for l := 0; l <= level && l >= 0; l++ {
			for _, n := range idx.graph.Neighbors(uint32(slot), l) {
				if int(n) >= snap.Capacity {
					return herr.Newf(herr.IntegrityFailure, "slot %d level %d references out-of-range neighbor %d", slot, l, n)
				}
			}
		}
	}

	return nil
}
