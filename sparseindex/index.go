// Package sparseindex implements the sparse (key, offset) index that lets
// package store bound a point lookup's primary-file scan. It knows nothing
// about record encoding beyond the fact that every record's first 8 bytes
// are its little-endian int64 primary key — true of every entity package
// record defines — so it never imports package record.
package sparseindex

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// ErrCorruptIndex is returned by Load when the on-disk header declares more
// entries than the file actually contains.
var ErrCorruptIndex = errors.New("sparseindex: corrupt index file")

// headerWidth is sparsity_factor(4) + entry_count(4).
const headerWidth = 8

// EntryWidth is the on-disk size of one (key, offset) pair.
const EntryWidth = 16

// Entry is one sampled (key, byte offset) pair.
type Entry struct {
	Key    int64
	Offset uint64
}

// Index is the in-memory sparse index, directly mirroring its on-disk
// binary layout: a 4-byte sparsity factor and 4-byte entry count header,
// followed by that many packed 16-byte entries.
type Index struct {
	SparsityFactor uint32
	Entries        []Entry
}

// Build scans primaryPath sequentially and captures one entry per every
// N-th record (0-based ordinal), where N is sparsityFactor. Tombstones
// participate exactly like live records: they occupy slots and advance the
// ordinal, so entries[i].Offset always equals i*sparsityFactor*recordWidth.
func Build(primaryPath string, recordWidth int, sparsityFactor uint32) (*Index, error) {
	if sparsityFactor == 0 {
		return nil, errors.New("sparseindex: sparsity factor must be > 0")
	}

	f, err := os.Open(primaryPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Index{SparsityFactor: sparsityFactor}, nil
		}
		return nil, errors.Wrapf(err, "sparseindex: open primary %q", primaryPath)
	}
	defer f.Close()

	idx := &Index{SparsityFactor: sparsityFactor}
	buf := make([]byte, recordWidth)

	var ordinal, offset uint64
	for {
		_, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "sparseindex: read primary %q", primaryPath)
		}

		if ordinal%uint64(sparsityFactor) == 0 {
			key := int64(binary.LittleEndian.Uint64(buf[0:8]))
			idx.Entries = append(idx.Entries, Entry{Key: key, Offset: offset})
		}

		ordinal++
		offset += uint64(recordWidth)
	}

	return idx, nil
}

// Save persists the index in the binary format documented on Index.
func (idx *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "sparseindex: create %q", path)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, idx.SparsityFactor); err != nil {
		return errors.Wrapf(err, "sparseindex: write header of %q", path)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(idx.Entries))); err != nil {
		return errors.Wrapf(err, "sparseindex: write header of %q", path)
	}

	for _, e := range idx.Entries {
		if err := binary.Write(f, binary.LittleEndian, e.Key); err != nil {
			return errors.Wrapf(err, "sparseindex: write entry to %q", path)
		}
		if err := binary.Write(f, binary.LittleEndian, e.Offset); err != nil {
			return errors.Wrapf(err, "sparseindex: write entry to %q", path)
		}
	}

	return nil
}

// Load restores an index from path, failing with ErrCorruptIndex if the
// file is shorter than its declared entry count implies.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "sparseindex: open %q", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "sparseindex: stat %q", path)
	}
	if info.Size() < headerWidth {
		return nil, errors.Wrapf(ErrCorruptIndex, "%q: shorter than header", path)
	}

	var sparsityFactor, entryCount uint32
	if err := binary.Read(f, binary.LittleEndian, &sparsityFactor); err != nil {
		return nil, errors.Wrapf(err, "sparseindex: read header of %q", path)
	}
	if err := binary.Read(f, binary.LittleEndian, &entryCount); err != nil {
		return nil, errors.Wrapf(err, "sparseindex: read header of %q", path)
	}

	wantSize := int64(headerWidth) + int64(entryCount)*int64(EntryWidth)
	if info.Size() < wantSize {
		return nil, errors.Wrapf(ErrCorruptIndex, "%q: declares %d entries, file holds %d bytes", path, entryCount, info.Size())
	}

	idx := &Index{SparsityFactor: sparsityFactor, Entries: make([]Entry, 0, entryCount)}
	for i := uint32(0); i < entryCount; i++ {
		var e Entry
		if err := binary.Read(f, binary.LittleEndian, &e.Key); err != nil {
			return nil, errors.Wrapf(err, "sparseindex: read entry %d of %q", i, path)
		}
		if err := binary.Read(f, binary.LittleEndian, &e.Offset); err != nil {
			return nil, errors.Wrapf(err, "sparseindex: read entry %d of %q", i, path)
		}
		idx.Entries = append(idx.Entries, e)
	}

	return idx, nil
}

// Locate returns the position of the greatest entry whose key is <= key,
// and the byte offset at which a window scan for key should begin. The
// third return value is false when no such entry exists — an empty index,
// or a key smaller than every sampled key — in which case the caller
// should skip the primary scan and fall straight through to overflow,
// per the store's read-path contract.
func (idx *Index) Locate(key int64) (entryIndex int, offset uint64, ok bool) {
	low, high := 0, len(idx.Entries)
	for low < high {
		mid := (low + high) / 2
		switch {
		case idx.Entries[mid].Key == key:
			return mid, idx.Entries[mid].Offset, true
		case idx.Entries[mid].Key < key:
			low = mid + 1
		default:
			high = mid
		}
	}

	if low > 0 {
		return low - 1, idx.Entries[low-1].Offset, true
	}
	return 0, 0, false
}
