// Package graph is the Graph Store component: per-level adjacency
// lists over slot indices. Layer 0 is dense with fixed fan-out 2M;
// every layer above it is sparse, with fan-out M, and only present for
// slots whose assigned level reaches that high.
package graph

import "github.com/monishSR/hnswlite/internal/herr"

// Graph holds per-(slot, level) neighbor lists. It has no notion of
// vectors or distances — pruning policy lives in internal/hnsw, which
// is the only caller that needs a distance kernel.
type Graph struct {
	capacity int
	m        int // upper-layer fan-out; layer 0 uses 2*m

	levels []int32 // per-slot assigned level, -1 if unassigned

	layer0 []uint32 // capacity * (2m+1): [slot*(2m+1)] = count, then neighbors

	// upper[slot] holds one neighbor slice per level above 0, indexed
	// 0-based (upper[slot][0] is level 1's neighbors, and so on), up to
	// levels[slot].
	upper [][][]uint32
}

// New creates a Graph for the given capacity and upper-layer fan-out m.
func New(capacity, m int) (*Graph, error) {
	if m <= 0 {
		return nil, herr.New(herr.ConfigInvalid, "M must be positive")
	}
	if capacity < 0 {
		return nil, herr.New(herr.ConfigInvalid, "capacity must be non-negative")
	}
	g := &Graph{
		capacity: capacity,
		m:        m,
		levels:   make([]int32, capacity),
		layer0:   make([]uint32, capacity*(2*m+1)),
		upper:    make([][][]uint32, capacity),
	}
	for i := range g.levels {
		g.levels[i] = -1
	}
	return g, nil
}

// M returns the upper-layer fan-out parameter.
func (g *Graph) M() int { return g.m }

// Capacity returns the current slot capacity.
func (g *Graph) Capacity() int { return g.capacity }

// FanOut returns the neighbor cap for level: 2M at layer 0, M above it.
func (g *Graph) FanOut(level int) int {
	if level == 0 {
		return 2 * g.m
	}
	return g.m
}

// LevelOf returns slot's assigned level, or -1 if never assigned.
func (g *Graph) LevelOf(slot uint32) int {
	if int(slot) >= len(g.levels) {
		return -1
	}
	return int(g.levels[slot])
}

// AssignLevel sets slot's level and allocates its upper-layer slice
// storage. It must be called exactly once per slot, before any
// SetNeighbors call at a level above 0.
func (g *Graph) AssignLevel(slot uint32, level int) {
	g.levels[slot] = int32(level)
	if level > 0 {
		g.upper[slot] = make([][]uint32, level)
	}
}

// Neighbors returns the neighbor slots of slot at level; these may
// include soft-deleted slots, since deletion does not remove edges. The
// returned slice must not be mutated by the caller.
func (g *Graph) Neighbors(slot uint32, level int) []uint32 {
	if level == 0 {
		base := int(slot) * (2*g.m + 1)
		count := int(g.layer0[base])
		return g.layer0[base+1 : base+1+count]
	}
	if int(slot) >= len(g.upper) || g.upper[slot] == nil {
		return nil
	}
	idx := level - 1
	if idx < 0 || idx >= len(g.upper[slot]) {
		return nil
	}
	return g.upper[slot][idx]
}

// SetNeighbors replaces slot's neighbor list at level, truncating to
// the level's fan-out cap if list is longer (callers should already
// have pruned via the select-neighbors heuristic; this is a safety net).
func (g *Graph) SetNeighbors(slot uint32, level int, list []uint32) {
	fanOut := g.FanOut(level)
	if len(list) > fanOut {
		list = list[:fanOut]
	}
	if level == 0 {
		base := int(slot) * (2*g.m + 1)
		g.layer0[base] = uint32(len(list))
		copy(g.layer0[base+1:base+1+len(list)], list)
		return
	}
	idx := level - 1
	if g.upper[slot] == nil || idx >= len(g.upper[slot]) {
		grown := make([][]uint32, idx+1)
		copy(grown, g.upper[slot])
		g.upper[slot] = grown
	}
	stored := make([]uint32, len(list))
	copy(stored, list)
	g.upper[slot][idx] = stored
}

// Resize grows all slot-indexed arrays to newCapacity, preserving
// existing adjacency. No-op if newCapacity <= current capacity.
func (g *Graph) Resize(newCapacity int) {
	if newCapacity <= g.capacity {
		return
	}
	grownLevels := make([]int32, newCapacity)
	for i := range grownLevels {
		grownLevels[i] = -1
	}
	copy(grownLevels, g.levels)
	g.levels = grownLevels

	grownLayer0 := make([]uint32, newCapacity*(2*g.m+1))
	copy(grownLayer0, g.layer0)
	g.layer0 = grownLayer0

	grownUpper := make([][][]uint32, newCapacity)
	copy(grownUpper, g.upper)
	g.upper = grownUpper

	g.capacity = newCapacity
}

// RawLevels returns the per-slot assigned-level array for serialization.
func (g *Graph) RawLevels() []int32 { return g.levels }

// RawLayer0 returns the dense layer-0 adjacency array for serialization.
func (g *Graph) RawLayer0() []uint32 { return g.layer0 }

// UpperNeighbors returns slot's raw per-level upper adjacency slices
// for serialization, or nil if slot has no upper layers.
func (g *Graph) UpperNeighbors(slot uint32) [][]uint32 {
	if int(slot) >= len(g.upper) {
		return nil
	}
	return g.upper[slot]
}

// Restore rebuilds a Graph's adjacency state from previously serialized
// arrays. It is only valid to call on a freshly constructed Graph of
// matching capacity and m.
func (g *Graph) Restore(levels []int32, layer0 []uint32, upper [][][]uint32) {
	g.levels = levels
	g.layer0 = layer0
	g.upper = upper
}

// ClearSlot resets a slot's adjacency at every level, used when a
// deleted slot is about to be recycled for a new label.
func (g *Graph) ClearSlot(slot uint32) {
	base := int(slot) * (2*g.m + 1)
	g.layer0[base] = 0
	g.upper[slot] = nil
	g.levels[slot] = -1
}
