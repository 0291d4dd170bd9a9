// Package memutil provides size-tracked allocation helpers used by the
// rest of the module. Go's own allocator makes most of the C original's
// alloc/free dance moot at the byte level; what survives the port is the
// accounting discipline — an Accountant tracks the net bytes allocated
// through it. Package coil routes its section-payload allocations through
// one; other buffers in the module are not tracked.
package memutil

import "sync/atomic"

// Accountant tracks net bytes allocated through it. Safe for concurrent use.
type Accountant struct {
	bytes int64
}

// Allocate records size bytes allocated and returns a zeroed slice of that
// length. size <= 0 returns a nil slice and records nothing.
func (a *Accountant) Allocate(size int) []byte {
	if size <= 0 {
		return nil
	}
	atomic.AddInt64(&a.bytes, int64(size))
	return make([]byte, size)
}

// AllocateZeroed is Allocate(count*size), reported separately so callers
// that think in element counts don't have to multiply themselves.
func (a *Accountant) AllocateZeroed(count, size int) []byte {
	if count <= 0 || size <= 0 {
		return nil
	}
	return a.Allocate(count * size)
}

// Reallocate records the size delta between old and new and returns a copy
// of buf with the new length. old is the size the caller believes buf to
// be; it is not verified against len(buf) — callers that pass a stale old
// size still get correct accounting for everything after this call.
func (a *Accountant) Reallocate(buf []byte, old, newSize int) []byte {
	if newSize <= 0 {
		a.Free(buf, old)
		return nil
	}
	atomic.AddInt64(&a.bytes, int64(newSize-old))
	out := make([]byte, newSize)
	copy(out, buf)
	return out
}

// Free records size bytes released. It does not touch buf; Go's GC owns
// actual reclamation. Tolerates being called with a size that doesn't
// match len(buf), matching the C contract this was ported from.
func (a *Accountant) Free(buf []byte, size int) {
	if size <= 0 {
		return
	}
	atomic.AddInt64(&a.bytes, -int64(size))
}

// Bytes returns the current net byte count tracked by a.
func (a *Accountant) Bytes() int64 {
	return atomic.LoadInt64(&a.bytes)
}

// DuplicateString returns a copy of s and true. It never fails; the bool
// return exists to mirror the C original's "duplication can fail" contract
// so call sites that check it keep compiling if that ever changes.
func DuplicateString(s string) (string, bool) {
	b := make([]byte, len(s))
	copy(b, s)
	return string(b), true
}
