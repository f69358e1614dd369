// Package persist implements the Persistence component: saving an HNSW
// Snapshot to a directory of fixed-layout binary files, and loading it
// back with integrity validation. The file set and per-field layout
// follow spec §5: header.bin, data_level0.bin, length.bin,
// link_lists.bin, vectors.bin, labels.bin.
package persist

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/monishSR/hnswlite/internal/herr"
	"github.com/monishSR/hnswlite/internal/hnsw"
	"github.com/monishSR/hnswlite/internal/kernel"
)

// magic identifies a hnswlite persistence directory.
const magic uint32 = 0x484e5357 // "HNSW"

// formatVersion lets future loaders detect and reject incompatible
// layouts.
const formatVersion uint32 = 1

const (
	headerFile    = "header.bin"
	layer0File    = "data_level0.bin"
	lengthFile    = "length.bin"
	linkListFile  = "link_lists.bin"
	vectorsFile   = "vectors.bin"
	labelsFile    = "labels.bin"
)

// Save writes snap and id to files under dir, creating dir if needed.
func Save(dir string, id uuid.UUID, snap hnsw.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return herr.Wrap(herr.Io, "creating persistence directory", err)
	}

	if err := writeHeader(dir, id, snap); err != nil {
		return err
	}
	if err := writeLayer0(dir, snap); err != nil {
		return err
	}
	if err := writeLengthsAndLinkLists(dir, snap); err != nil {
		return err
	}
	if err := writeVectors(dir, snap); err != nil {
		return err
	}
	if err := writeLabels(dir, snap); err != nil {
		return err
	}
	return nil
}

func createFile(dir, name string) (*os.File, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, herr.Wrap(herr.Io, fmt.Sprintf("creating %s", name), err)
	}
	return f, nil
}

func writeHeader(dir string, id uuid.UUID, snap hnsw.Snapshot) error {
	f, err := createFile(dir, headerFile)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fields := []any{
		magic,
		formatVersion,
		idBytes(id),
		uint32(snap.Dim),
		kernelCode(snap.Kernel),
		uint32(snap.M),
		uint32(snap.EfConstruction),
		uint32(snap.EfSearch),
		snap.RandomSeed,
		boolByte(snap.AllowReplace),
		uint32(snap.Capacity),
		snap.EntrySlot,
		int32(snap.EntryLevel),
		boolByte(snap.EntryValid),
		snap.NextSlot,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return herr.Wrap(herr.Io, "writing header", err)
		}
	}
	return flushAndClose(w, f)
}

func writeLayer0(dir string, snap hnsw.Snapshot) error {
	f, err := createFile(dir, layer0File)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, snap.Layer0); err != nil {
		return herr.Wrap(herr.Io, "writing layer0 adjacency", err)
	}
	return flushAndClose(w, f)
}

// slotRecordLen returns the number of bytes blocks serializes to in
// link_lists.bin: one leading block-count uint32, then per block a
// neighbor-count uint32 plus the neighbor uint32s themselves.
func slotRecordLen(blocks [][]uint32) uint32 {
	n := uint32(4)
	for _, neighbors := range blocks {
		n += 4 + uint32(len(neighbors))*4
	}
	return n
}

// writeLengthsAndLinkLists serializes each slot's upper-layer adjacency
// blocks to link_lists.bin, and records the byte length of each slot's
// record (0 if the slot has no upper layers) to length.bin so a loader
// can recover slot boundaries without depending on the level array.
func writeLengthsAndLinkLists(dir string, snap hnsw.Snapshot) error {
	llf, err := createFile(dir, linkListFile)
	if err != nil {
		return err
	}
	defer llf.Close()
	llw := bufio.NewWriter(llf)

	lengths := make([]uint32, len(snap.Upper))
	for slot := 0; slot < len(snap.Upper); slot++ {
		blocks := snap.Upper[slot]
		if len(blocks) == 0 {
			lengths[slot] = 0
			continue
		}
		lengths[slot] = slotRecordLen(blocks)
		if err := binary.Write(llw, binary.LittleEndian, uint32(len(blocks))); err != nil {
			return herr.Wrap(herr.Io, "writing upper block count", err)
		}
		for _, neighbors := range blocks {
			if err := binary.Write(llw, binary.LittleEndian, uint32(len(neighbors))); err != nil {
				return herr.Wrap(herr.Io, "writing upper neighbor count", err)
			}
			if err := binary.Write(llw, binary.LittleEndian, neighbors); err != nil {
				return herr.Wrap(herr.Io, "writing upper neighbors", err)
			}
		}
	}
	if err := flushAndClose(llw, llf); err != nil {
		return err
	}

	lf, err := createFile(dir, lengthFile)
	if err != nil {
		return err
	}
	defer lf.Close()
	lw := bufio.NewWriter(lf)
	if err := binary.Write(lw, binary.LittleEndian, lengths); err != nil {
		return herr.Wrap(herr.Io, "writing upper block byte lengths", err)
	}
	return flushAndClose(lw, lf)
}

func writeVectors(dir string, snap hnsw.Snapshot) error {
	f, err := createFile(dir, vectorsFile)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, snap.Vectors); err != nil {
		return herr.Wrap(herr.Io, "writing vectors", err)
	}
	return flushAndClose(w, f)
}

// writeLabels serializes the slot->label map plus the deletion bitmap
// and the oldest-first reuse queue.
func writeLabels(dir string, snap hnsw.Snapshot) error {
	f, err := createFile(dir, labelsFile)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.SlotToLabel))); err != nil {
		return herr.Wrap(herr.Io, "writing label count", err)
	}
	for slot, label := range snap.SlotToLabel {
		if err := binary.Write(w, binary.LittleEndian, slot); err != nil {
			return herr.Wrap(herr.Io, "writing slot", err)
		}
		if err := binary.Write(w, binary.LittleEndian, label); err != nil {
			return herr.Wrap(herr.Io, "writing label", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.Deleted))); err != nil {
		return herr.Wrap(herr.Io, "writing deleted count", err)
	}
	for slot := range snap.Deleted {
		if err := binary.Write(w, binary.LittleEndian, slot); err != nil {
			return herr.Wrap(herr.Io, "writing deleted slot", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(snap.DeletedFIFO))); err != nil {
		return herr.Wrap(herr.Io, "writing deleted fifo length", err)
	}
	if err := binary.Write(w, binary.LittleEndian, snap.DeletedFIFO); err != nil {
		return herr.Wrap(herr.Io, "writing deleted fifo", err)
	}

	return flushAndClose(w, f)
}

func flushAndClose(w *bufio.Writer, f *os.File) error {
	if err := w.Flush(); err != nil {
		return herr.Wrap(herr.Io, "flushing "+f.Name(), err)
	}
	return nil
}

func idBytes(id uuid.UUID) [16]byte {
	var b [16]byte
	copy(b[:], id[:])
	return b
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func kernelCode(name kernel.Name) uint32 {
	switch name {
	case kernel.Euclidean:
		return 0
	case kernel.InnerProduct:
		return 1
	case kernel.Cosine:
		return 2
	default:
		return 0
	}
}

func codeToKernel(code uint32) (kernel.Name, error) {
	switch code {
	case 0:
		return kernel.Euclidean, nil
	case 1:
		return kernel.InnerProduct, nil
	case 2:
		return kernel.Cosine, nil
	default:
		return "", herr.Newf(herr.IntegrityFailure, "unknown persisted kernel code %d", code)
	}
}
