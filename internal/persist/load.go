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
)

// Load reads a persistence directory written by Save, validates its
// integrity, and returns the rebuilt Index plus its identity. If id is
// non-nil, a persisted identity that doesn't match it is rejected as an
// IntegrityFailure rather than silently loaded.
func Load(dir string, id *uuid.UUID, randomSeed int64) (*hnsw.Index, uuid.UUID, error) {
	gotID, snap, err := loadSnapshot(dir)
	if err != nil {
		return nil, gotID, err
	}
	if id != nil && *id != gotID {
		return nil, gotID, herr.Newf(herr.IntegrityFailure, "persisted id %s does not match requested id %s", gotID, *id)
	}
	idx, err := hnsw.FromSnapshot(snap, randomSeed)
	if err != nil {
		return nil, gotID, err
	}
	return idx, gotID, nil
}

func openFile(dir, name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, herr.Wrap(herr.Io, fmt.Sprintf("opening %s", name), err)
	}
	return f, nil
}

func loadSnapshot(dir string) (uuid.UUID, hnsw.Snapshot, error) {
	var snap hnsw.Snapshot

	id, err := readHeader(dir, &snap)
	if err != nil {
		return uuid.Nil, snap, err
	}
	if err := readLayer0(dir, &snap); err != nil {
		return id, snap, err
	}
	if err := readLabels(dir, &snap); err != nil {
		return id, snap, err
	}
	if err := readLengthsAndLinkLists(dir, &snap); err != nil {
		return id, snap, err
	}
	if err := readVectors(dir, &snap); err != nil {
		return id, snap, err
	}
	return id, snap, nil
}

func readHeader(dir string, snap *hnsw.Snapshot) (uuid.UUID, error) {
	f, err := openFile(dir, headerFile)
	if err != nil {
		return uuid.Nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var gotMagic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &gotMagic); err != nil {
		return uuid.Nil, herr.Wrap(herr.Io, "reading magic", err)
	}
	if gotMagic != magic {
		return uuid.Nil, herr.Newf(herr.IntegrityFailure, "bad magic %x, expected %x", gotMagic, magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return uuid.Nil, herr.Wrap(herr.Io, "reading format version", err)
	}
	if version != formatVersion {
		return uuid.Nil, herr.Newf(herr.IntegrityFailure, "unsupported format version %d", version)
	}

	var idRaw [16]byte
	if err := binary.Read(r, binary.LittleEndian, &idRaw); err != nil {
		return uuid.Nil, herr.Wrap(herr.Io, "reading index id", err)
	}
	id, err := uuid.FromBytes(idRaw[:])
	if err != nil {
		return uuid.Nil, herr.Wrap(herr.IntegrityFailure, "parsing index id", err)
	}

	var dim, kernelC, m, efc, efs, capacity uint32
	var seed int64
	var allowReplaceByte, entryValidByte byte
	var entrySlot, nextSlot uint32
	var entryLevel int32

	for _, f := range []any{&dim, &kernelC, &m, &efc, &efs, &seed, &allowReplaceByte, &capacity, &entrySlot, &entryLevel, &entryValidByte, &nextSlot} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return uuid.Nil, herr.Wrap(herr.Io, "reading header field", err)
		}
	}

	kernelName, err := codeToKernel(kernelC)
	if err != nil {
		return uuid.Nil, err
	}

	snap.Dim = int(dim)
	snap.Kernel = kernelName
	snap.M = int(m)
	snap.EfConstruction = int(efc)
	snap.EfSearch = int(efs)
	snap.RandomSeed = seed
	snap.AllowReplace = allowReplaceByte != 0
	snap.Capacity = int(capacity)
	snap.EntrySlot = entrySlot
	snap.EntryLevel = int(entryLevel)
	snap.EntryValid = entryValidByte != 0
	snap.NextSlot = nextSlot

	return id, nil
}

func readLayer0(dir string, snap *hnsw.Snapshot) error {
	f, err := openFile(dir, layer0File)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	width := 2*snap.M + 1
	snap.Layer0 = make([]uint32, snap.Capacity*width)
	if err := binary.Read(r, binary.LittleEndian, snap.Layer0); err != nil {
		return herr.Wrap(herr.Io, "reading layer0 adjacency", err)
	}
	for slot := 0; slot < snap.Capacity; slot++ {
		count := snap.Layer0[slot*width]
		if int(count) > 2*snap.M {
			return herr.Newf(herr.IntegrityFailure, "slot %d layer0 neighbor count %d exceeds fan-out cap %d", slot, count, 2*snap.M)
		}
	}
	return nil
}

// readLengthsAndLinkLists reads the per-slot record byte lengths from
// length.bin and the upper-layer adjacency blocks they describe from
// link_lists.bin, checking that the lengths sum to exactly the size of
// link_lists.bin. snap.SlotToLabel must already be populated: a slot's
// level is derived as its block count if the slot is occupied (live or
// soft-deleted), or -1 if the slot was never allocated.
func readLengthsAndLinkLists(dir string, snap *hnsw.Snapshot) error {
	lf, err := openFile(dir, lengthFile)
	if err != nil {
		return err
	}
	defer lf.Close()
	lr := bufio.NewReader(lf)
	lengths := make([]uint32, snap.Capacity)
	if err := binary.Read(lr, binary.LittleEndian, lengths); err != nil {
		return herr.Wrap(herr.Io, "reading upper block byte lengths", err)
	}

	var lengthSum int64
	for _, n := range lengths {
		lengthSum += int64(n)
	}

	llf, err := openFile(dir, linkListFile)
	if err != nil {
		return err
	}
	defer llf.Close()
	llInfo, err := llf.Stat()
	if err != nil {
		return herr.Wrap(herr.Io, "statting link_lists.bin", err)
	}
	if lengthSum != llInfo.Size() {
		return herr.Newf(herr.IntegrityFailure, "upper block lengths sum to %d bytes but link_lists.bin is %d bytes", lengthSum, llInfo.Size())
	}
	llr := bufio.NewReader(llf)

	snap.Levels = make([]int32, snap.Capacity)
	snap.Upper = make([][][]uint32, snap.Capacity)
	for slot := 0; slot < snap.Capacity; slot++ {
		if _, occupied := snap.SlotToLabel[uint32(slot)]; !occupied {
			snap.Levels[slot] = -1
		}
		if lengths[slot] == 0 {
			continue
		}

		var blockCount uint32
		if err := binary.Read(llr, binary.LittleEndian, &blockCount); err != nil {
			return herr.Wrap(herr.Io, fmt.Sprintf("reading upper block count for slot %d", slot), err)
		}
		blocks := make([][]uint32, blockCount)
		for b := uint32(0); b < blockCount; b++ {
			var neighborCount uint32
			if err := binary.Read(llr, binary.LittleEndian, &neighborCount); err != nil {
				return herr.Wrap(herr.Io, fmt.Sprintf("reading upper neighbor count for slot %d", slot), err)
			}
			if int(neighborCount) > snap.M {
				return herr.Newf(herr.IntegrityFailure, "slot %d upper level %d neighbor count %d exceeds fan-out cap %d", slot, b+1, neighborCount, snap.M)
			}
			neighbors := make([]uint32, neighborCount)
			if err := binary.Read(llr, binary.LittleEndian, neighbors); err != nil {
				return herr.Wrap(herr.Io, fmt.Sprintf("reading upper neighbors for slot %d", slot), err)
			}
			blocks[b] = neighbors
		}
		snap.Upper[slot] = blocks
		if _, occupied := snap.SlotToLabel[uint32(slot)]; occupied {
			snap.Levels[slot] = int32(blockCount)
		}
	}
	return nil
}

func readVectors(dir string, snap *hnsw.Snapshot) error {
	f, err := openFile(dir, vectorsFile)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	snap.Vectors = make([]float32, snap.Capacity*snap.Dim)
	if err := binary.Read(r, binary.LittleEndian, snap.Vectors); err != nil {
		return herr.Wrap(herr.Io, "reading vectors", err)
	}
	return nil
}

func readLabels(dir string, snap *hnsw.Snapshot) error {
	f, err := openFile(dir, labelsFile)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var labelCount uint32
	if err := binary.Read(r, binary.LittleEndian, &labelCount); err != nil {
		return herr.Wrap(herr.Io, "reading label count", err)
	}
	snap.SlotToLabel = make(map[uint32]uint64, labelCount)
	for i := uint32(0); i < labelCount; i++ {
		var slot uint32
		var label uint64
		if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
			return herr.Wrap(herr.Io, "reading slot", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &label); err != nil {
			return herr.Wrap(herr.Io, "reading label", err)
		}
		if int(slot) >= snap.Capacity {
			return herr.Newf(herr.IntegrityFailure, "label %d maps to out-of-range slot %d", label, slot)
		}
		if _, dup := snap.SlotToLabel[slot]; dup {
			return herr.Newf(herr.IntegrityFailure, "duplicate slot %d in label map", slot)
		}
		snap.SlotToLabel[slot] = label
	}

	var deletedCount uint32
	if err := binary.Read(r, binary.LittleEndian, &deletedCount); err != nil {
		return herr.Wrap(herr.Io, "reading deleted count", err)
	}
	snap.Deleted = make(map[uint32]struct{}, deletedCount)
	for i := uint32(0); i < deletedCount; i++ {
		var slot uint32
		if err := binary.Read(r, binary.LittleEndian, &slot); err != nil {
			return herr.Wrap(herr.Io, "reading deleted slot", err)
		}
		snap.Deleted[slot] = struct{}{}
	}

	var fifoLen uint32
	if err := binary.Read(r, binary.LittleEndian, &fifoLen); err != nil {
		return herr.Wrap(herr.Io, "reading deleted fifo length", err)
	}
	snap.DeletedFIFO = make([]uint32, fifoLen)
	if err := binary.Read(r, binary.LittleEndian, snap.DeletedFIFO); err != nil {
		return herr.Wrap(herr.Io, "reading deleted fifo", err)
	}

	return nil
}
