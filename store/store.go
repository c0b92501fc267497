// Package store implements the primary-plus-overflow two-file storage
// engine: fixed-width records kept sorted in a primary heap file, absorbed
// updates in an append-only overflow file, a sparse index bounding point
// lookups, and the reorganizer that merges the two back together.
//
// Store[T] is generic over the entity kind (record.Product, record.Order)
// per the "abstract over {width, key, codec}" design the spec suggests
// instead of duplicating the engine per entity.
package store

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/errors"
	logging "github.com/ipfs/go-log/v2"

	"github.com/marianasilva/registro-go/record"
	"github.com/marianasilva/registro-go/sparseindex"
)

var log = logging.Logger("store")

// reorganizeThreshold is the overflow/primary byte-size ratio that, once
// strictly exceeded, triggers a reorganization after an insert.
const reorganizeThreshold = 0.1

// bloomFalsePositiveRate bounds the overflow short-circuit filter's false
// positive rate; a false positive only costs an unnecessary linear scan,
// never a wrong answer, so a modest rate is fine.
const bloomFalsePositiveRate = 0.01

// Codec encodes and decodes one fixed-width record kind.
type Codec[T record.Record] interface {
	Width() int
	Encode(T) []byte
	Decode([]byte) T
}

// Store is the primary-plus-overflow engine for one entity kind.
type Store[T record.Record] struct {
	mu sync.Mutex

	primaryPath  string
	overflowPath string
	indexPath    string

	codec    Codec[T]
	sparsity uint32

	index *sparseindex.Index

	// overflowFilter short-circuits scanOverflow on a true negative. It is
	// built lazily from the overflow file's current live contents the
	// first time it's needed after New/LoadIndex/BulkLoadOrdered, so it
	// always reflects whatever the overflow file holds at that point —
	// including records written in a prior session — rather than only
	// keys inserted since the Store was constructed.
	overflowFilter *bloom.BloomFilter
}

// New builds a Store wired to the given files. No I/O happens until an
// operation is called; the caller builds or loads the index explicitly.
func New[T record.Record](primaryPath, overflowPath, indexPath string, codec Codec[T], sparsityFactor uint32) *Store[T] {
	return &Store[T]{
		primaryPath:  primaryPath,
		overflowPath: overflowPath,
		indexPath:    indexPath,
		codec:        codec,
		sparsity:     sparsityFactor,
	}
}

// BulkLoadOrdered sorts records by key ascending and writes them back to
// back into the primary file, truncating any prior contents. It has no
// index side effect; call BuildIndex afterwards if one is needed.
func (s *Store[T]) BulkLoadOrdered(records []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })

	f, err := os.Create(s.primaryPath)
	if err != nil {
		return errors.Wrapf(err, "store: create primary %q", s.primaryPath)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, r := range records {
		if _, err := w.Write(s.codec.Encode(r)); err != nil {
			return errors.Wrapf(err, "store: write primary %q", s.primaryPath)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "store: flush primary %q", s.primaryPath)
	}

	// The primary file was just rewritten from scratch; overflow is
	// untouched, but drop any cached filter so it's rebuilt from whatever
	// overflow currently holds rather than trusting a filter built for an
	// earlier generation of this Store.
	s.overflowFilter = nil

	log.Infof("bulk loaded %d records into %s", len(records), s.primaryPath)
	return nil
}

// DumpPrefix returns up to limit records read sequentially from the start
// of the primary file.
func (s *Store[T]) DumpPrefix(limit int) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.primaryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "store: open primary %q", s.primaryPath)
	}
	defer f.Close()

	width := s.codec.Width()
	buf := make([]byte, width)
	out := make([]T, 0, limit)

	for i := 0; i < limit; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errors.Wrapf(err, "store: read primary %q", s.primaryPath)
		}
		out = append(out, s.codec.Decode(buf))
	}

	return out, nil
}

// BuildIndex scans the primary file and replaces the in-memory index.
func (s *Store[T]) BuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildIndexLocked()
}

func (s *Store[T]) buildIndexLocked() error {
	idx, err := sparseindex.Build(s.primaryPath, s.codec.Width(), s.sparsity)
	if err != nil {
		return err
	}
	s.index = idx
	return nil
}

// SaveIndex persists the current in-memory index to its on-disk path.
func (s *Store[T]) SaveIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return errors.New("store: no index built; call BuildIndex or LoadIndex first")
	}
	return s.index.Save(s.indexPath)
}

// LoadIndex restores the in-memory index from its on-disk path.
func (s *Store[T]) LoadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := sparseindex.Load(s.indexPath)
	if err != nil {
		return err
	}
	s.index = idx

	// A reattach: whatever this Store previously knew about the overflow
	// file's contents (if anything) no longer applies. Drop the filter so
	// the next overflow touch rebuilds it from the file's actual contents.
	s.overflowFilter = nil
	return nil
}

// LookupByKey implements the read path: sparse-index lookup bounding a
// primary window scan, falling back to a linear overflow scan on a miss.
func (s *Store[T]) LookupByKey(key int64) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if record.IsTombstone(key) {
		return zero, false, nil
	}

	if s.index != nil {
		if entryIdx, start, ok := s.index.Locate(key); ok {
			rec, found, err := s.scanPrimaryWindow(entryIdx, start, key)
			if err != nil {
				return zero, false, err
			}
			if found {
				return rec, true, nil
			}
		}
	}

	return s.scanOverflow(key)
}

func (s *Store[T]) scanPrimaryWindow(entryIdx int, start uint64, key int64) (T, bool, error) {
	var zero T

	f, ferr := os.Open(s.primaryPath)
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return zero, false, nil
		}
		return zero, false, errors.Wrapf(ferr, "store: open primary %q", s.primaryPath)
	}
	defer f.Close()

	end, ferr := s.windowEnd(f, entryIdx)
	if ferr != nil {
		return zero, false, ferr
	}

	if _, ferr := f.Seek(int64(start), io.SeekStart); ferr != nil {
		return zero, false, errors.Wrapf(ferr, "store: seek primary %q", s.primaryPath)
	}

	width := s.codec.Width()
	buf := make([]byte, width)

	for pos := int64(start); pos < end; pos += int64(width) {
		if _, ferr := io.ReadFull(f, buf); ferr != nil {
			if ferr == io.EOF || ferr == io.ErrUnexpectedEOF {
				break
			}
			return zero, false, errors.Wrapf(ferr, "store: read primary %q", s.primaryPath)
		}

		r := s.codec.Decode(buf)
		k := r.Key()
		if k == key && !record.IsTombstone(k) {
			return r, true, nil
		}
		if k > key && !record.IsTombstone(k) {
			break
		}
	}

	return zero, false, nil
}

func (s *Store[T]) windowEnd(f *os.File, entryIdx int) (int64, error) {
	if entryIdx+1 < len(s.index.Entries) {
		return int64(s.index.Entries[entryIdx+1].Offset), nil
	}
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "store: stat primary %q", s.primaryPath)
	}
	return info.Size(), nil
}

func (s *Store[T]) scanOverflow(key int64) (T, bool, error) {
	var zero T

	if err := s.ensureOverflowFilterLocked(); err != nil {
		return zero, false, err
	}
	if !s.overflowFilter.Test(keyBytes(key)) {
		return zero, false, nil
	}

	f, err := os.Open(s.overflowPath)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, false, nil
		}
		return zero, false, errors.Wrapf(err, "store: open overflow %q", s.overflowPath)
	}
	defer f.Close()

	width := s.codec.Width()
	buf := make([]byte, width)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return zero, false, errors.Wrapf(err, "store: read overflow %q", s.overflowPath)
		}

		r := s.codec.Decode(buf)
		if r.Key() == key && !record.IsTombstone(r.Key()) {
			return r, true, nil
		}
	}

	return zero, false, nil
}

// ensureOverflowFilterLocked builds s.overflowFilter from the overflow
// file's current live contents if it isn't already populated. Called with
// s.mu held. This is what keeps the filter a pure read-path optimization:
// every live overflow key is added to it, either by this scan of the actual
// file or by Insert, so a negative answer is always correct and only a
// false positive (which falls through to the linear scan) remains possible.
func (s *Store[T]) ensureOverflowFilterLocked() error {
	if s.overflowFilter != nil {
		return nil
	}

	live, err := s.readLive(s.overflowPath)
	if err != nil {
		return err
	}

	n := uint(len(live))
	if n == 0 {
		n = 1024
	}
	filter := bloom.NewWithEstimates(n, bloomFalsePositiveRate)
	for _, r := range live {
		filter.Add(keyBytes(r.Key()))
	}
	s.overflowFilter = filter
	return nil
}

// Insert appends rec to the overflow file, then reorganizes if the
// overflow/primary size ratio exceeds the threshold.
func (s *Store[T]) Insert(rec T) error {
	if record.IsTombstone(rec.Key()) {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Build the filter from the overflow file's contents as they stand
	// before this append, so the explicit Add below is the only thing
	// that needs to account for the new record.
	if err := s.ensureOverflowFilterLocked(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.overflowPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "store: open overflow %q", s.overflowPath)
	}
	if _, err := f.Write(s.codec.Encode(rec)); err != nil {
		f.Close()
		return errors.Wrapf(err, "store: append overflow %q", s.overflowPath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "store: close overflow %q", s.overflowPath)
	}

	s.overflowFilter.Add(keyBytes(rec.Key()))

	overflowSize, err := fileSize(s.overflowPath)
	if err != nil {
		return err
	}
	primarySize, err := fileSize(s.primaryPath)
	if err != nil {
		return err
	}

	if float64(overflowSize) > reorganizeThreshold*float64(primarySize) {
		return s.reorganizeLocked()
	}
	return nil
}

// Delete tombstones key in whichever file holds it — primary first, then
// overflow — and reports whether a live record was found.
func (s *Store[T]) Delete(key int64) (bool, error) {
	if record.IsTombstone(key) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.tombstoneInFile(s.primaryPath, key)
	if err != nil || found {
		return found, err
	}
	return s.tombstoneInFile(s.overflowPath, key)
}

func (s *Store[T]) tombstoneInFile(path string, key int64) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "store: open %q", path)
	}
	defer f.Close()

	width := s.codec.Width()
	buf := make([]byte, width)
	var offset int64

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return false, nil
			}
			return false, errors.Wrapf(err, "store: read %q", path)
		}

		if s.codec.Decode(buf).Key() == key {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				return false, errors.Wrapf(err, "store: seek %q", path)
			}
			if _, err := f.Write(keyBytes(record.TombstoneKey)); err != nil {
				return false, errors.Wrapf(err, "store: tombstone %q", path)
			}
			return true, nil
		}

		offset += int64(width)
	}
}

// Reorganize merges primary and overflow, drops tombstones, re-sorts,
// rewrites the primary, truncates overflow, and rebuilds the index.
func (s *Store[T]) Reorganize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reorganizeLocked()
}

func (s *Store[T]) reorganizeLocked() error {
	primaryLive, err := s.readLive(s.primaryPath)
	if err != nil {
		return err
	}
	overflowLive, err := s.readLive(s.overflowPath)
	if err != nil {
		return err
	}

	// Dedupe by key, keeping the later occurrence: overflow entries are
	// more recent than whatever is already in the primary, so they win.
	merged := make(map[int64]T, len(primaryLive)+len(overflowLive))
	for _, r := range primaryLive {
		merged[r.Key()] = r
	}
	for _, r := range overflowLive {
		merged[r.Key()] = r
	}

	out := make([]T, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })

	pf, err := os.Create(s.primaryPath)
	if err != nil {
		return errors.Wrapf(err, "store: create primary %q", s.primaryPath)
	}
	w := bufio.NewWriter(pf)
	for _, r := range out {
		if _, err := w.Write(s.codec.Encode(r)); err != nil {
			pf.Close()
			return errors.Wrapf(err, "store: write primary %q", s.primaryPath)
		}
	}
	if err := w.Flush(); err != nil {
		pf.Close()
		return errors.Wrapf(err, "store: flush primary %q", s.primaryPath)
	}
	if err := pf.Close(); err != nil {
		return errors.Wrapf(err, "store: close primary %q", s.primaryPath)
	}

	if err := os.Truncate(s.overflowPath, 0); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "store: truncate overflow %q", s.overflowPath)
	}

	if err := s.buildIndexLocked(); err != nil {
		return err
	}
	if err := s.index.Save(s.indexPath); err != nil {
		return err
	}

	s.overflowFilter = bloom.NewWithEstimates(1024, bloomFalsePositiveRate)

	log.Infof("reorganized %s: %d live records, overflow truncated", s.primaryPath, len(out))
	return nil
}

// readLive reads every record from path and discards tombstones. A missing
// file is treated as empty, matching a fresh store with no overflow yet.
func (s *Store[T]) readLive(path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "store: open %q", path)
	}
	defer f.Close()

	width := s.codec.Width()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "store: stat %q", path)
	}
	if info.Size()%int64(width) != 0 {
		return nil, errors.Wrapf(ErrCorruptRecord, "%q", path)
	}

	buf := make([]byte, width)
	var out []T
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errors.Wrapf(err, "store: read %q", path)
		}
		r := s.codec.Decode(buf)
		if !record.IsTombstone(r.Key()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "store: stat %q", path)
	}
	return info.Size(), nil
}

func keyBytes(key int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(key))
	return b
}
