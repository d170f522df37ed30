package zss

import (
	"bytes"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/zsserr"
)

// span is a block's recursive (first_key, last_key) per spec.md §3.5.
type span struct {
	first []byte
	last  []byte
}

// validate walks the full index tree from the header's root and then the
// raw block stream, checking every invariant in §3.5 except (M)/(H), which
// newReader already checked before calling this.
func (r *Reader) validate() error {
	visited := map[uint64]struct{}{}

	level, _, err := r.visitBlock(r.h.rootOffset, r.h.rootLength, -1, visited)
	if err != nil {
		return err
	}
	if level < 1 {
		return zsserr.NewError(zsserr.KindLevel, "zss: root block is level %d, but the root must always be an index block", level)
	}

	return r.checkReachability(visited)
}

// visitBlock re-reads and fully validates the block at voffset, recursing
// into its children if it's an index block. declaredLength is what the
// caller (the header, for the root, or a parent index entry, for anyone
// else) claims the block's on-disk length is — invariant (S). expectLevel
// is the level the caller requires this block to be (one less than the
// parent's level), or -1 for the root, which has no such constraint beyond
// "at least 1" (checked by validate above).
func (r *Reader) visitBlock(voffset, declaredLength uint64, expectLevel int, visited map[uint64]struct{}) (block.Level, span, error) {
	if _, ok := visited[voffset]; ok {
		return 0, span{}, zsserr.NewError(zsserr.KindDoubleReference, "zss: block at voffset %d is referenced more than once", voffset)
	}
	visited[voffset] = struct{}{}

	abs := r.dataOffset + int64(voffset)
	level, compressed, total, err := block.ReadAt(r.f, abs, r.fileSize)
	if err != nil {
		return 0, span{}, err
	}
	if uint64(total) != declaredLength {
		return 0, span{}, zsserr.NewError(zsserr.KindSizeMismatch, "zss: block at voffset %d: declared length %d, actual on-disk length %d", voffset, declaredLength, total)
	}
	if expectLevel >= 0 && int(level) != expectLevel {
		return 0, span{}, zsserr.NewError(zsserr.KindLevel, "zss: block at voffset %d: level %d, parent requires level %d", voffset, level, expectLevel)
	}

	logical, err := block.Decompress(r.c, compressed)
	if err != nil {
		return 0, span{}, err
	}

	if level == 0 {
		sp, err := validateDataBlock(logical)
		return level, sp, err
	}
	sp, err := r.validateIndexBlock(logical, level, visited)
	return level, sp, err
}

// validateDataBlock checks invariant (O) across a data block's records and
// returns its (first_key, last_key) span.
func validateDataBlock(logical []byte) (span, error) {
	var sp span
	var prev []byte
	n := 0
	err := block.VisitDataRecords(logical, func(rec []byte) error {
		if n > 0 && bytes.Compare(rec, prev) < 0 {
			return zsserr.NewError(zsserr.KindSortViolation, "zss: data block: record %d is out of order", n)
		}
		cp := append([]byte(nil), rec...)
		if n == 0 {
			sp.first = cp
		}
		sp.last = cp
		prev = rec
		n++
		return nil
	})
	if err != nil {
		return span{}, err
	}
	if n == 0 {
		return span{}, zsserr.NewError(zsserr.KindFraming, "zss: data block has no records")
	}
	return sp, nil
}

// validateIndexBlock checks invariant (O) across an index block's stored
// keys, recurses into every child (which in turn checks that child's level
// against level-1, invariant (L)), checks invariants (C) and (G) against
// each child's recursive span, and returns this block's own span.
func (r *Reader) validateIndexBlock(logical []byte, level block.Level, visited map[uint64]struct{}) (span, error) {
	var sp span
	var prevKey, prevLast []byte
	n := 0

	err := block.VisitIndexEntries(logical, func(e block.IndexEntry) error {
		if n > 0 && bytes.Compare(e.Key, prevKey) < 0 {
			return zsserr.NewError(zsserr.KindSortViolation, "zss: index block: entry %d key is out of order", n)
		}

		_, childSpan, err := r.visitBlock(e.Handle.Offset, e.Handle.Length, int(level)-1, visited)
		if err != nil {
			return err
		}

		if bytes.Compare(e.Key, childSpan.first) > 0 {
			return zsserr.NewError(zsserr.KindIndexBounds, "zss: index entry %d: stored key exceeds child's first key (invariant C)", n)
		}
		if n > 0 && bytes.Compare(e.Key, prevLast) < 0 {
			return zsserr.NewError(zsserr.KindIndexBounds, "zss: index entry %d: stored key precedes previous entry's last reachable key (invariant G)", n)
		}

		if n == 0 {
			sp.first = childSpan.first
		}
		sp.last = childSpan.last
		prevKey = e.Key
		prevLast = childSpan.last
		n++
		return nil
	})
	if err != nil {
		return span{}, err
	}
	if n == 0 {
		return span{}, zsserr.NewError(zsserr.KindFraming, "zss: index block has no entries")
	}
	return sp, nil
}

// checkReachability walks the entire block stream linearly from its start
// to EOF, checking that every block encountered was reached exactly once
// from the root (invariant (R)) and that the stream ends exactly at EOF
// with no trailing bytes (invariant (T)).
func (r *Reader) checkReachability(visited map[uint64]struct{}) error {
	pos := r.dataOffset
	seen := make(map[uint64]struct{}, len(visited))
	for pos < r.fileSize {
		voffset := uint64(pos - r.dataOffset)
		_, _, total, err := block.ReadAt(r.f, pos, r.fileSize)
		if err != nil {
			return err
		}
		if _, ok := visited[voffset]; !ok {
			return zsserr.NewError(zsserr.KindUnreferencedBlock, "zss: block at voffset %d is never reached from the root", voffset)
		}
		seen[voffset] = struct{}{}
		pos += total
	}
	for voffset := range visited {
		if _, ok := seen[voffset]; !ok {
			return zsserr.NewError(zsserr.KindUnreferencedBlock, "zss: block at voffset %d is reachable from the root but absent from the block stream", voffset)
		}
	}
	return nil
}
