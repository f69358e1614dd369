// Package hnsw implements the HNSW Algorithms and Allocator/Resizer
// components: level sampling, greedy descent, search_layer beam
// search, heuristic neighbor selection with reciprocal pruning, and
// filtered k-NN query.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"

	"github.com/monishSR/hnswlite/internal/graph"
	"github.com/monishSR/hnswlite/internal/herr"
	"github.com/monishSR/hnswlite/internal/kernel"
	"github.com/monishSR/hnswlite/internal/store"
)

// maxLevelCap bounds the exponential level distribution so a single
// unlucky draw cannot allocate an absurd number of upper layers.
const maxLevelCap = 32

// Config configures a new Index. It is consumed once at construction;
// dimensionality and the distance kernel cannot change afterward.
type Config struct {
	Dim                 int
	Kernel              kernel.Name
	MaxElements         int
	M                   int
	EfConstruction      int
	EfSearch            int
	RandomSeed          int64
	AllowReplaceDeleted bool
}

// entryPoint identifies the node every search begins from.
type entryPoint struct {
	slot  uint32
	level int
	valid bool
}

// Index owns the vector store, graph store, and search/insert state
// machine. It performs no internal synchronization — see package
// pkg/hnswindex for the lock-guarded public façade.
type Index struct {
	store *store.Store
	graph *graph.Graph

	kernelName kernel.Name
	dist       kernel.Kernel

	m              int
	efConstruction int
	efSearch       int
	mL             float64
	allowReplace   bool

	rng   *rand.Rand
	entry entryPoint
}

// New constructs an empty Index from cfg.
func New(cfg Config) (*Index, error) {
	if cfg.Dim <= 0 {
		return nil, herr.New(herr.ConfigInvalid, "dimensionality must be positive")
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	if cfg.MaxElements < 0 {
		return nil, herr.New(herr.ConfigInvalid, "max_elements must be non-negative")
	}

	distFn, err := kernel.Resolve(cfg.Kernel)
	if err != nil {
		return nil, herr.Wrap(herr.ConfigInvalid, "resolving distance kernel", err)
	}

	s, err := store.New(cfg.Dim, cfg.MaxElements)
	if err != nil {
		return nil, err
	}
	g, err := graph.New(cfg.MaxElements, cfg.M)
	if err != nil {
		return nil, err
	}

	return &Index{
		store:          s,
		graph:          g,
		kernelName:     cfg.Kernel,
		dist:           distFn,
		m:              cfg.M,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		mL:             1.0 / math.Log(float64(cfg.M)),
		allowReplace:   cfg.AllowReplaceDeleted,
		rng:            rand.New(rand.NewSource(cfg.RandomSeed)),
	}, nil
}

// Dim returns the fixed vector dimensionality.
func (idx *Index) Dim() int { return idx.store.Dim() }

// Len returns the number of live vectors.
func (idx *Index) Len() int { return idx.store.Len() }

// LenWithDeleted returns live + soft-deleted vectors.
func (idx *Index) LenWithDeleted() int { return idx.store.LenWithDeleted() }

// Capacity returns the current slot capacity.
func (idx *Index) Capacity() int { return idx.store.Capacity() }

// IsEmpty reports whether the index has no live vectors.
func (idx *Index) IsEmpty() bool { return idx.Len() == 0 }

// SetEf adjusts the default query beam width.
func (idx *Index) SetEf(ef int) { idx.efSearch = ef }

// GetEf returns the current default query beam width.
func (idx *Index) GetEf() int { return idx.efSearch }

// sampleLevel draws a level from floor(-ln(U) * mL), U in (0,1).
func (idx *Index) sampleLevel() int {
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * idx.mL))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

// distToSlot computes the distance between query q and the vector
// stored in slot.
func (idx *Index) distToSlot(q []float32, slot uint32) (float32, error) {
	v, err := idx.store.ReadVector(slot)
	if err != nil {
		return 0, err
	}
	return idx.dist(q, v), nil
}

// searchLayer is the beam search described in spec §4.4: explore the
// graph at level starting from entryPoints, keeping the best ef
// eligible candidates. eligible may be nil, meaning every visited node
// is eligible (used during construction, where there is no filter).
func (idx *Index) searchLayer(q []float32, entryPoints []cand, ef int, level int, eligible func(slot uint32) bool) ([]cand, error) {
	if ef <= 0 {
		return nil, nil
	}

	visited := make(map[uint32]bool, ef*4)
	c := newMinHeap()
	w := newMaxHeap()

	for _, ep := range entryPoints {
		if visited[ep.slot] {
			continue
		}
		visited[ep.slot] = true
		c.push(ep)
		if eligible == nil || eligible(ep.slot) {
			w.addBounded(ep, ef)
		}
	}

	for c.Len() > 0 {
		current := c.pop()
		if w.Len() > 0 && current.dist > w.worst().dist {
			break
		}

		if idx.graph.LevelOf(current.slot) < level {
			continue
		}
		for _, n := range idx.graph.Neighbors(current.slot, level) {
			if visited[n] {
				continue
			}
			visited[n] = true

			d, err := idx.distToSlot(q, n)
			if err != nil {
				continue // stale neighbor pointing at a freed/never-written slot
			}
			nc := cand{slot: n, dist: d}

			if w.Len() < ef || d < w.worst().dist {
				c.push(nc)
				if eligible == nil || eligible(n) {
					w.addBounded(nc, ef)
				}
			}
		}
	}

	return w.drainSorted(), nil
}

// push/pop helpers keep call sites in searchLayer readable.
func (h *minHeap) push(c cand) { heap.Push(h, c) }
func (h *minHeap) pop() cand   { return heap.Pop(h).(cand) }

// selectNeighborsHeuristic implements the "select neighbors" heuristic
// from spec §4.2: iterate candidates in ascending distance to the
// pivot vector and keep a candidate only if it is closer to the pivot
// than to every already-selected neighbor.
func (idx *Index) selectNeighborsHeuristic(pivot []float32, candidates []cand, capN int) ([]cand, error) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	selected := make([]cand, 0, capN)
	for _, c := range candidates {
		if len(selected) >= capN {
			break
		}
		v, err := idx.store.ReadVector(c.slot)
		if err != nil {
			continue
		}
		keep := true
		for _, s := range selected {
			sv, err := idx.store.ReadVector(s.slot)
			if err != nil {
				continue
			}
			if idx.dist(v, sv) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		}
	}
	_ = pivot
	return selected, nil
}

// Add inserts label/v into the store and links it into the graph.
// Capacity exhaustion without slot reuse fails with herr.CapacityExceeded
// rather than growing automatically; callers must Resize explicitly
// (see spec §4.3/§4.4 and DESIGN.md's Open Question #5).
func (idx *Index) Add(label uint64, v []float32) error {
	if len(v) != idx.store.Dim() {
		return herr.Newf(herr.DimensionMismatch, "expected dimension %d, got %d", idx.store.Dim(), len(v))
	}

	slot, err := idx.store.AllocateSlot(label, idx.allowReplace)
	if err != nil {
		return err
	}
	idx.graph.ClearSlot(slot) // no-op for a fresh slot; clears stale edges on reuse

	if err := idx.store.WriteVector(slot, v); err != nil {
		return err
	}

	level := idx.sampleLevel()
	idx.graph.AssignLevel(slot, level)

	if !idx.entry.valid {
		idx.entry = entryPoint{slot: slot, level: level, valid: true}
		return nil
	}

	cur := idx.entry.slot
	for l := idx.entry.level; l > level; l-- {
		best, err := idx.searchLayer(v, []cand{{slot: cur, dist: mustDist(idx, v, cur)}}, 1, l, nil)
		if err != nil {
			return err
		}
		if len(best) > 0 {
			cur = best[0].slot
		}
	}

	for l := min(level, idx.entry.level); l >= 0; l-- {
		candidates, err := idx.searchLayer(v, []cand{{slot: cur, dist: mustDist(idx, v, cur)}}, idx.efConstruction, l, nil)
		if err != nil {
			return err
		}
		fanOut := idx.graph.FanOut(l)
		selected, err := idx.selectNeighborsHeuristic(v, candidates, fanOut)
		if err != nil {
			return err
		}

		neighborSlots := make([]uint32, len(selected))
		for i, s := range selected {
			neighborSlots[i] = s.slot
		}
		idx.graph.SetNeighbors(slot, l, neighborSlots)

		for _, n := range selected {
			idx.addReciprocalEdge(n.slot, slot, l)
		}

		if len(candidates) > 0 {
			cur = candidates[0].slot
		}
	}

	if level > idx.entry.level {
		idx.entry = entryPoint{slot: slot, level: level, valid: true}
	}

	return nil
}

// addReciprocalEdge links other -> newSlot at level, pruning other's
// neighbor list via the heuristic if it would exceed the layer's cap.
func (idx *Index) addReciprocalEdge(other uint32, newSlot uint32, level int) {
	existing := idx.graph.Neighbors(other, level)
	fanOut := idx.graph.FanOut(level)

	merged := make([]uint32, 0, len(existing)+1)
	merged = append(merged, existing...)
	merged = append(merged, newSlot)

	if len(merged) <= fanOut {
		idx.graph.SetNeighbors(other, level, merged)
		return
	}

	otherVec, err := idx.store.ReadVector(other)
	if err != nil {
		return
	}
	candidates := make([]cand, 0, len(merged))
	for _, n := range merged {
		d, err := idx.distToSlot(otherVec, n)
		if err != nil {
			continue
		}
		candidates = append(candidates, cand{slot: n, dist: d})
	}
	pruned, err := idx.selectNeighborsHeuristic(otherVec, candidates, fanOut)
	if err != nil {
		return
	}
	slots := make([]uint32, len(pruned))
	for i, p := range pruned {
		slots[i] = p.slot
	}
	idx.graph.SetNeighbors(other, level, slots)
}

// mustDist computes a distance, treating a read failure as +Inf so a
// stale entry point never wins a comparison.
func mustDist(idx *Index, q []float32, slot uint32) float32 {
	d, err := idx.distToSlot(q, slot)
	if err != nil {
		return float32(math.Inf(1))
	}
	return d
}

// Delete soft-deletes label: its slot stops resolving via Get/Query but
// remains a traversable graph vertex.
func (idx *Index) Delete(label uint64) error {
	slot, err := idx.store.FreeSlot(label)
	if err != nil {
		return err
	}

	if idx.entry.valid && idx.entry.slot == slot {
		idx.pickNewEntryPoint(slot)
	}
	return nil
}

// pickNewEntryPoint replaces the entry point after excluding was
// deleted, preferring the highest-level remaining live slot.
func (idx *Index) pickNewEntryPoint(excluding uint32) {
	best := entryPoint{}
	idx.store.IterateLive(func(_ uint64, slot uint32) {
		if slot == excluding {
			return
		}
		lvl := idx.graph.LevelOf(slot)
		if !best.valid || lvl > best.level {
			best = entryPoint{slot: slot, level: lvl, valid: true}
		}
	})
	idx.entry = best
}

// Get returns the vector for label, or ok=false if label is unknown or
// has been deleted (per DESIGN.md's Open Question #1).
func (idx *Index) Get(label uint64) (vec []float32, ok bool, err error) {
	slot, found := idx.store.LookupSlot(label)
	if !found {
		return nil, false, nil
	}
	v, err := idx.store.ReadVector(slot)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// QueryResult is one entry of a Query response.
type QueryResult struct {
	Label    uint64
	Distance float32
}

// Query returns the k nearest eligible neighbors to v. allowed/
// disallowed implement the inclusion/exclusion filter of spec §4.4;
// either or both may be empty. Soft-deleted slots are always
// ineligible but remain traversable.
func (idx *Index) Query(v []float32, k int, allowed, disallowed []uint64) ([]QueryResult, error) {
	if len(v) != idx.store.Dim() {
		return nil, herr.Newf(herr.DimensionMismatch, "expected dimension %d, got %d", idx.store.Dim(), len(v))
	}
	if k <= 0 {
		return nil, herr.New(herr.ConfigInvalid, "k must be positive")
	}
	if !idx.entry.valid || idx.Len() == 0 {
		return []QueryResult{}, nil
	}

	allowedSet := toLabelSet(allowed)
	disallowedSet := toLabelSet(disallowed)
	eligible := func(slot uint32) bool {
		if idx.store.IsDeleted(slot) {
			return false
		}
		label, ok := idx.store.LabelOf(slot)
		if !ok {
			return false
		}
		if len(allowedSet) > 0 {
			if _, in := allowedSet[label]; !in {
				return false
			}
		}
		if len(disallowedSet) > 0 {
			if _, in := disallowedSet[label]; in {
				return false
			}
		}
		return true
	}

	cur := idx.entry.slot
	for l := idx.entry.level; l > 0; l-- {
		best, err := idx.searchLayer(v, []cand{{slot: cur, dist: mustDist(idx, v, cur)}}, 1, l, nil)
		if err != nil {
			return nil, err
		}
		if len(best) > 0 {
			cur = best[0].slot
		}
	}

	ef := idx.efSearch
	if k > ef {
		ef = k
	}
	candidates, err := idx.searchLayer(v, []cand{{slot: cur, dist: mustDist(idx, v, cur)}}, ef, 0, eligible)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		li, _ := idx.store.LabelOf(candidates[i].slot)
		lj, _ := idx.store.LabelOf(candidates[j].slot)
		return li < lj
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]QueryResult, k)
	for i := 0; i < k; i++ {
		label, _ := idx.store.LabelOf(candidates[i].slot)
		results[i] = QueryResult{Label: label, Distance: candidates[i].dist}
	}
	return results, nil
}

func toLabelSet(labels []uint64) map[uint64]struct{} {
	if len(labels) == 0 {
		return nil
	}
	set := make(map[uint64]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return set
}

// GetAllIDs returns every live label and every soft-deleted label.
func (idx *Index) GetAllIDs() (live []uint64, deleted []uint64) {
	idx.store.IterateLive(func(label uint64, _ uint32) { live = append(live, label) })
	idx.store.IterateDeleted(func(label uint64, _ uint32) { deleted = append(deleted, label) })
	return live, deleted
}

// Resize grows the store and graph to newCapacity. No-op if
// newCapacity <= the current capacity.
func (idx *Index) Resize(newCapacity int) error {
	if err := idx.store.Resize(newCapacity); err != nil {
		return err
	}
	idx.graph.Resize(newCapacity)
	return nil
}

// VectorReader is the interface a file-backed vector source must
// satisfy for OpenFd. It mirrors internal/store.VectorReader so
// callers outside this module never need to import the store package
// directly.
type VectorReader = store.VectorReader

// OpenFd switches vector storage to file-backed mode, serving reads
// through reader (with an LRU cache in front) instead of a resident
// in-memory slice. Use this to keep a large index's working set small.
func (idx *Index) OpenFd(reader VectorReader) error {
	return idx.store.SwitchToFileBacked(reader)
}

// CloseFd reloads every vector back into memory via reader and returns
// the store to resident mode.
func (idx *Index) CloseFd(reader VectorReader) error {
	return idx.store.SwitchToResident(reader)
}

// IsResident reports whether vectors currently live fully in memory.
func (idx *Index) IsResident() bool { return idx.store.IsResident() }

// SetCacheSize configures the file-backed LRU cache capacity; it takes
// effect the next time OpenFd is called.
func (idx *Index) SetCacheSize(n int) { idx.store.SetCacheSize(n) }
