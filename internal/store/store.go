// Package store is the Vector Store component: flat, slot-major vector
// storage plus the label/slot maps and deletion bookkeeping that back
// it. Vectors live contiguously so that slot s's bytes start at
// s*dim*4; this keeps random access O(1) and distance computation
// cache-friendly.
package store

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/monishSR/hnswlite/internal/herr"
)

// defaultCacheSize bounds the file-backed LRU cache when no explicit
// size is configured.
const defaultCacheSize = 2048

// Store owns the dense vector array, the label<->slot maps, and the
// soft-deletion bitmap/queue. It does not know about graph edges.
type Store struct {
	dim      int
	capacity int

	vectors  []float32 // resident mode: capacity*dim floats, slot-major
	resident bool

	labelToSlot map[uint64]uint32
	slotToLabel map[uint32]uint64 // kept for deleted slots too, for GetAllIDs

	deleted      map[uint32]struct{}
	deletedQueue []uint32 // oldest-first FIFO of reusable slots

	nextSlot uint32 // next never-used slot index

	// File-backed residency (see OpenFd/CloseFd in the public wrapper).
	reader    VectorReader
	cache     *lru.Cache[uint32, []float32]
	cacheSize int
}

// VectorReader reads a single slot's vector from a persisted backing
// store. It is supplied by internal/persist when a Store is switched to
// file-backed mode.
type VectorReader interface {
	ReadSlot(slot uint32) ([]float32, error)
}

// New creates an empty, fully resident Store with the given dimension
// and initial capacity.
func New(dim, capacity int) (*Store, error) {
	if dim <= 0 {
		return nil, herr.New(herr.ConfigInvalid, "dimensionality must be positive")
	}
	if capacity < 0 {
		return nil, herr.New(herr.ConfigInvalid, "capacity must be non-negative")
	}
	return &Store{
		dim:         dim,
		capacity:    capacity,
		vectors:     make([]float32, capacity*dim),
		resident:    true,
		labelToSlot: make(map[uint64]uint32),
		slotToLabel: make(map[uint32]uint64),
		deleted:     make(map[uint32]struct{}),
		cacheSize:   defaultCacheSize,
	}, nil
}

// Dim returns the fixed vector dimensionality.
func (s *Store) Dim() int { return s.dim }

// Capacity returns the current slot capacity.
func (s *Store) Capacity() int { return s.capacity }

// Len returns the number of live (non-deleted) slots.
func (s *Store) Len() int { return len(s.labelToSlot) }

// LenWithDeleted returns live + soft-deleted slot count.
func (s *Store) LenWithDeleted() int { return len(s.labelToSlot) + len(s.deleted) }

// LookupSlot returns the slot for a live label.
func (s *Store) LookupSlot(label uint64) (uint32, bool) {
	slot, ok := s.labelToSlot[label]
	return slot, ok
}

// LabelOf returns the label assigned to a slot (live or deleted).
func (s *Store) LabelOf(slot uint32) (uint64, bool) {
	label, ok := s.slotToLabel[slot]
	return label, ok
}

// IsDeleted reports whether slot is currently soft-deleted.
func (s *Store) IsDeleted(slot uint32) bool {
	_, ok := s.deleted[slot]
	return ok
}

// AllocateSlot assigns a slot to a new label. If allowReplaceDeleted is
// true and the store is full of live+deleted entries, the oldest
// deleted slot is recycled; otherwise a fresh slot is used if capacity
// allows. Returns herr.DuplicateLabel / herr.CapacityExceeded as
// appropriate.
func (s *Store) AllocateSlot(label uint64, allowReplaceDeleted bool) (uint32, error) {
	if _, exists := s.labelToSlot[label]; exists {
		return 0, herr.Newf(herr.DuplicateLabel, "label %d already exists", label)
	}

	if s.LenWithDeleted() < s.capacity {
		slot := s.nextSlot
		s.nextSlot++
		s.labelToSlot[label] = slot
		s.slotToLabel[slot] = label
		return slot, nil
	}

	if allowReplaceDeleted && len(s.deletedQueue) > 0 {
		slot := s.popOldestDeleted()
		s.labelToSlot[label] = slot
		s.slotToLabel[slot] = label
		return slot, nil
	}

	return 0, herr.New(herr.CapacityExceeded, "no free slots and no deleted slot to reuse")
}

// popOldestDeleted removes and returns the oldest entry from the
// deletion queue, skipping any slot that was already recycled out of
// band (defensive; should not normally happen).
func (s *Store) popOldestDeleted() uint32 {
	for len(s.deletedQueue) > 0 {
		slot := s.deletedQueue[0]
		s.deletedQueue = s.deletedQueue[1:]
		if _, stillDeleted := s.deleted[slot]; stillDeleted {
			delete(s.deleted, slot)
			return slot
		}
	}
	return 0
}

// WriteVector writes v into slot's storage, validating dimension.
func (s *Store) WriteVector(slot uint32, v []float32) error {
	if len(v) != s.dim {
		return herr.Newf(herr.DimensionMismatch, "expected dimension %d, got %d", s.dim, len(v))
	}
	if int(slot) >= s.capacity {
		return herr.Newf(herr.Internal, "slot %d out of capacity %d", slot, s.capacity)
	}
	if !s.resident {
		return herr.New(herr.Internal, "cannot write vector while store is file-backed (call CloseFd first)")
	}
	copy(s.vectors[int(slot)*s.dim:(int(slot)+1)*s.dim], v)
	return nil
}

// ReadVector returns a copy of the vector stored at slot.
func (s *Store) ReadVector(slot uint32) ([]float32, error) {
	if int(slot) >= s.capacity {
		return nil, herr.Newf(herr.Internal, "slot %d out of capacity %d", slot, s.capacity)
	}
	if s.resident {
		out := make([]float32, s.dim)
		copy(out, s.vectors[int(slot)*s.dim:(int(slot)+1)*s.dim])
		return out, nil
	}
	return s.readFileBacked(slot)
}

func (s *Store) readFileBacked(slot uint32) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(slot); ok {
			out := make([]float32, len(v))
			copy(out, v)
			return out, nil
		}
	}
	if s.reader == nil {
		return nil, herr.New(herr.Internal, "store is file-backed but has no reader; call OpenFd")
	}
	v, err := s.reader.ReadSlot(slot)
	if err != nil {
		return nil, herr.Wrap(herr.Io, fmt.Sprintf("reading slot %d from file-backed storage", slot), err)
	}
	if s.cache != nil {
		cached := make([]float32, len(v))
		copy(cached, v)
		s.cache.Add(slot, cached)
	}
	return v, nil
}

// FreeSlot soft-deletes a live slot's label. The vector and its label
// history remain retrievable via LabelOf/IsDeleted; only the label's
// reverse lookup is removed.
func (s *Store) FreeSlot(label uint64) (uint32, error) {
	slot, ok := s.labelToSlot[label]
	if !ok {
		return 0, herr.Newf(herr.UnknownLabel, "label %d not found", label)
	}
	delete(s.labelToSlot, label)
	s.deleted[slot] = struct{}{}
	s.deletedQueue = append(s.deletedQueue, slot)
	return slot, nil
}

// IterateLive calls fn for every live (label, slot) pair.
func (s *Store) IterateLive(fn func(label uint64, slot uint32)) {
	for label, slot := range s.labelToSlot {
		fn(label, slot)
	}
}

// IterateDeleted calls fn for every soft-deleted (label, slot) pair.
func (s *Store) IterateDeleted(fn func(label uint64, slot uint32)) {
	for slot := range s.deleted {
		label := s.slotToLabel[slot]
		fn(label, slot)
	}
}

// Resize grows the store to newCapacity, preserving all existing data.
// It is a no-op if newCapacity <= the current capacity.
func (s *Store) Resize(newCapacity int) error {
	if newCapacity <= s.capacity {
		return nil
	}
	if s.resident {
		grown := make([]float32, newCapacity*s.dim)
		copy(grown, s.vectors)
		s.vectors = grown
	}
	s.capacity = newCapacity
	return nil
}

// SwitchToFileBacked releases the resident vector slice and serves
// future reads through reader, optionally caching recently read slots.
func (s *Store) SwitchToFileBacked(reader VectorReader) error {
	if s.cacheSize > 0 {
		c, err := lru.New[uint32, []float32](s.cacheSize)
		if err != nil {
			return herr.Wrap(herr.Internal, "creating slot cache", err)
		}
		s.cache = c
	}
	s.reader = reader
	s.resident = false
	s.vectors = nil
	return nil
}

// SwitchToResident reloads every live and deleted slot's vector into
// memory via reader and drops the file-backed cache.
func (s *Store) SwitchToResident(reader VectorReader) error {
	vectors := make([]float32, s.capacity*s.dim)
	load := func(slot uint32) error {
		v, err := reader.ReadSlot(slot)
		if err != nil {
			return herr.Wrap(herr.Io, fmt.Sprintf("loading slot %d back into memory", slot), err)
		}
		copy(vectors[int(slot)*s.dim:(int(slot)+1)*s.dim], v)
		return nil
	}
	var firstErr error
	s.IterateLive(func(_ uint64, slot uint32) {
		if firstErr == nil {
			firstErr = load(slot)
		}
	})
	if firstErr == nil {
		s.IterateDeleted(func(_ uint64, slot uint32) {
			if firstErr == nil {
				firstErr = load(slot)
			}
		})
	}
	if firstErr != nil {
		return firstErr
	}
	s.vectors = vectors
	s.resident = true
	s.cache = nil
	s.reader = nil
	return nil
}

// IsResident reports whether vectors currently live fully in memory.
func (s *Store) IsResident() bool { return s.resident }

// SetCacheSize configures the file-backed LRU cache capacity; it takes
// effect the next time SwitchToFileBacked is called.
func (s *Store) SetCacheSize(n int) {
	if n > 0 {
		s.cacheSize = n
	}
}

// RawVectors returns the resident vector array (slot-major, capacity*dim
// floats). It is used only by internal/persist when serializing a
// fully resident store; callers must not retain or mutate the slice.
func (s *Store) RawVectors() ([]float32, bool) {
	if !s.resident {
		return nil, false
	}
	return s.vectors, true
}

// SlotLabelPairs returns every (slot, label) pair, live and deleted,
// for serialization.
func (s *Store) SlotLabelPairs() map[uint32]uint64 {
	out := make(map[uint32]uint64, len(s.slotToLabel))
	for slot, label := range s.slotToLabel {
		out[slot] = label
	}
	return out
}

// DeletedSlots returns the set of currently soft-deleted slots, and the
// oldest-first reuse queue, for serialization.
func (s *Store) DeletedSlots() (map[uint32]struct{}, []uint32) {
	return s.deleted, s.deletedQueue
}

// NextSlot returns the next never-used slot index.
func (s *Store) NextSlot() uint32 { return s.nextSlot }

// Restore rebuilds a Store's bookkeeping from previously serialized
// state. It is only valid to call on a freshly constructed Store.
func (s *Store) Restore(vectors []float32, slotToLabel map[uint32]uint64, deleted map[uint32]struct{}, deletedQueue []uint32, nextSlot uint32) {
	s.vectors = vectors
	s.slotToLabel = make(map[uint32]uint64, len(slotToLabel))
	s.labelToSlot = make(map[uint64]uint32, len(slotToLabel))
	for slot, label := range slotToLabel {
		s.slotToLabel[slot] = label
	}
	s.deleted = make(map[uint32]struct{}, len(deleted))
	for slot := range deleted {
		s.deleted[slot] = struct{}{}
	}
	for slot, label := range s.slotToLabel {
		if _, isDeleted := s.deleted[slot]; !isDeleted {
			s.labelToSlot[label] = slot
		}
	}
	s.deletedQueue = append([]uint32(nil), deletedQueue...)
	s.nextSlot = nextSlot
	s.resident = true
}

// Clear empties the store back to zero live/deleted entries without
// changing capacity.
func (s *Store) Clear() {
	if s.resident {
		for i := range s.vectors {
			s.vectors[i] = 0
		}
	}
	s.labelToSlot = make(map[uint64]uint32)
	s.slotToLabel = make(map[uint32]uint64)
	s.deleted = make(map[uint32]struct{})
	s.deletedQueue = nil
	s.nextSlot = 0
}
