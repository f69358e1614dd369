package persist

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/monishSR/hnswlite/internal/herr"
)

// FileReader serves single-slot vector reads directly off a persisted
// vectors.bin via random access, letting internal/store's file-backed
// mode (SwitchToFileBacked) keep only a bounded LRU cache resident
// instead of the whole vector array.
type FileReader struct {
	file *os.File
	dim  int
}

// NewFileReader opens dir's vectors.bin for random-access reads of
// dim-wide float32 slots.
func NewFileReader(dir string, dim int) (*FileReader, error) {
	f, err := os.Open(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, herr.Wrap(herr.Io, "opening vectors file for random access", err)
	}
	return &FileReader{file: f, dim: dim}, nil
}

// ReadSlot implements internal/hnsw.VectorReader.
func (r *FileReader) ReadSlot(slot uint32) ([]float32, error) {
	const bytesPerFloat = 4
	buf := make([]byte, r.dim*bytesPerFloat)
	offset := int64(slot) * int64(r.dim) * bytesPerFloat
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return nil, herr.Wrap(herr.Io, "reading vector slot", err)
	}

	out := make([]float32, r.dim)
	for i := range out {
		bits := binary.LittleEndian.Uint32(buf[i*bytesPerFloat : (i+1)*bytesPerFloat])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// Close releases the underlying file handle.
func (r *FileReader) Close() error {
	return r.file.Close()
}
