package store

import "github.com/cockroachdb/errors"

// ErrInvalidInput is returned by Insert when asked to store a record whose
// key is the tombstone sentinel (record.TombstoneKey) — it would be
// indistinguishable from a deleted record once written.
var ErrInvalidInput = errors.New("store: record key collides with tombstone sentinel")

// ErrCorruptRecord is returned when a primary or overflow file's length is
// not an exact multiple of the record width.
var ErrCorruptRecord = errors.New("store: file length is not a multiple of the record width")

// NotFound results (lookup misses, delete misses) are never represented as
// errors — they surface as a false/zero-value return, per the store's
// read-path contract.
