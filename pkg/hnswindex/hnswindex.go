// Package hnswindex is the public, lock-guarded façade over the HNSW
// engine: it owns the RWMutex, the index's identity, and logging, and
// translates the ambient engine into something an application embeds
// directly.
package hnswindex

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/monishSR/hnswlite/internal/hnsw"
	"github.com/monishSR/hnswlite/internal/kernel"
	"github.com/monishSR/hnswlite/internal/persist"
)

// Config configures a new Index. Dim and Kernel cannot change after
// construction; the rest have sane defaults when left zero.
type Config struct {
	Dim                 int
	Kernel              kernel.Name
	MaxElements         int
	M                   int
	EfConstruction      int
	EfSearch            int
	RandomSeed          int64
	AllowReplaceDeleted bool
	CacheSize           int
	Logger              *log.Logger
}

// DefaultConfig returns a Config with the engine's standard HNSW
// parameters, logging to stderr.
func DefaultConfig() Config {
	return Config{
		Dim:            128,
		Kernel:         kernel.Euclidean,
		MaxElements:    10000,
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
		Logger:         log.New(os.Stderr, "hnswindex: ", log.LstdFlags),
	}
}

// Index is the embeddable, concurrency-safe entry point: callers get
// read/write separation for free, while internal/hnsw.Index itself does
// no locking.
type Index struct {
	mu     sync.RWMutex
	id     uuid.UUID
	logger *log.Logger
	engine *hnsw.Index

	fdDir    string
	fdReader *persist.FileReader
}

// Init creates a new, empty Index.
func Init(config Config) (*Index, error) {
	engine, err := hnsw.New(hnsw.Config{
		Dim:                 config.Dim,
		Kernel:              config.Kernel,
		MaxElements:         config.MaxElements,
		M:                   config.M,
		EfConstruction:      config.EfConstruction,
		EfSearch:            config.EfSearch,
		RandomSeed:          config.RandomSeed,
		AllowReplaceDeleted: config.AllowReplaceDeleted,
	})
	if err != nil {
		return nil, err
	}
	engine.SetCacheSize(config.CacheSize)
	return &Index{
		id:     uuid.New(),
		logger: resolveLogger(config.Logger),
		engine: engine,
	}, nil
}

// Load reopens a previously Saved index from dir. If id is non-nil, a
// persisted index whose identity doesn't match it is rejected with an
// IntegrityFailure instead of being loaded.
func Load(dir string, id *uuid.UUID, config Config) (*Index, error) {
	engine, gotID, err := persist.Load(dir, id, config.RandomSeed)
	if err != nil {
		return nil, err
	}
	engine.SetCacheSize(config.CacheSize)
	idx := &Index{
		id:     gotID,
		logger: resolveLogger(config.Logger),
		engine: engine,
	}
	idx.logger.Printf("loaded index %s from %s (%d live, %d deleted)", gotID, dir, engine.Len(), engine.LenWithDeleted()-engine.Len())
	return idx, nil
}

func resolveLogger(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(io.Discard, "", 0)
}

// Save persists the index to dir, overwriting any existing contents.
// Requires an exclusive write lock.
func (idx *Index) Save(dir string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	snap, err := idx.engine.Snapshot()
	if err != nil {
		return err
	}
	if err := persist.Save(dir, idx.id, snap); err != nil {
		return err
	}
	idx.logger.Printf("saved index %s to %s (%d vectors)", idx.id, dir, idx.engine.Len())
	return nil
}

// ID returns the index's persistent identity.
func (idx *Index) ID() uuid.UUID { return idx.id }

// Add inserts label/vector. Requires an exclusive write lock.
func (idx *Index) Add(label uint64, vector []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.engine.Add(label, vector); err != nil {
		return fmt.Errorf("hnswindex: add %d: %w", label, err)
	}
	return nil
}

// Delete soft-deletes label. Requires an exclusive write lock.
func (idx *Index) Delete(label uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.engine.Delete(label); err != nil {
		return fmt.Errorf("hnswindex: delete %d: %w", label, err)
	}
	return nil
}

// Get retrieves label's vector. Uses a shared read lock.
func (idx *Index) Get(label uint64) ([]float32, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.engine.Get(label)
}

// QueryResult mirrors internal/hnsw.QueryResult for public consumption.
type QueryResult = hnsw.QueryResult

// Query returns the k nearest eligible neighbors to vector. Uses a
// shared read lock, so concurrent queries never block each other.
func (idx *Index) Query(vector []float32, k int, allowed, disallowed []uint64) ([]QueryResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.engine.Query(vector, k, allowed, disallowed)
}

// GetAllIDs returns every live and soft-deleted label.
func (idx *Index) GetAllIDs() (live, deleted []uint64) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.engine.GetAllIDs()
}

// Len returns the number of live vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.engine.Len()
}

// LenWithDeleted returns live + soft-deleted vectors.
func (idx *Index) LenWithDeleted() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.engine.LenWithDeleted()
}

// Capacity returns the current slot capacity.
func (idx *Index) Capacity() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.engine.Capacity()
}

// Dimensionality returns the fixed vector dimensionality.
func (idx *Index) Dimensionality() int {
	return idx.engine.Dim()
}

// IsEmpty reports whether the index has no live vectors.
func (idx *Index) IsEmpty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.engine.IsEmpty()
}

// Resize grows capacity to newCapacity. Requires an exclusive write lock.
func (idx *Index) Resize(newCapacity int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.engine.Resize(newCapacity)
}

// SetEf adjusts the default query beam width.
func (idx *Index) SetEf(ef int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.engine.SetEf(ef)
}

// GetEf returns the current default query beam width.
func (idx *Index) GetEf() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.engine.GetEf()
}

// OpenFd switches vector storage to file-backed mode, serving reads
// from dir's persisted vectors.bin through a bounded LRU cache instead
// of keeping every vector resident in memory. dir must already contain
// a save produced by Save. Requires an exclusive write lock.
func (idx *Index) OpenFd(dir string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	reader, err := persist.NewFileReader(dir, idx.engine.Dim())
	if err != nil {
		return err
	}
	if err := idx.engine.OpenFd(reader); err != nil {
		reader.Close()
		return err
	}
	idx.fdDir = dir
	idx.fdReader = reader
	return nil
}

// CloseFd reloads every vector back into memory and releases the file
// handle opened by OpenFd. It is a no-op if the index is not currently
// file-backed. Requires an exclusive write lock.
func (idx *Index) CloseFd() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.fdReader == nil {
		return nil
	}
	if err := idx.engine.CloseFd(idx.fdReader); err != nil {
		return err
	}
	err := idx.fdReader.Close()
	idx.fdReader = nil
	idx.fdDir = ""
	return err
}
