// Package appender implements the block appender / bottom-up index builder
// spec.md §4.4 describes: it owns the file positioned at the start of the
// block stream, frames and writes each block handed to it, and cascades
// completed levels into parent index blocks as they fill up.
package appender

import (
	"bytes"
	"io"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/zsserr"
)

// pendingEntry is one not-yet-flushed child awaiting its parent index
// block, mirroring the (first_record, last_record, voffset) tuples
// _ZSSDataAppender.write_block keeps per level, plus the child's length
// (spec.md's index entries need offset AND length, unlike the Python
// original which only ever surfaces a bare voffset).
type pendingEntry struct {
	firstKey []byte
	lastKey  []byte
	handle   block.Handle
}

// Stats optionally records per-block size observations. Nil is valid and
// disables recording. The appender writes one block at a time on a single
// goroutine, so unlike pipeline.Stats this needs no mutex.
type Stats struct {
	// BlockSizeHistogram tracks the on-disk size (framing + CRC) of every
	// block written, across all levels.
	BlockSizeHistogram *hdrhistogram.Histogram

	// BlocksWritten counts every framed block (data and index) written.
	BlocksWritten prometheus.Counter
}

func (s *Stats) recordBlockSize(n int) {
	if s == nil {
		return
	}
	if s.BlockSizeHistogram != nil {
		s.BlockSizeHistogram.RecordValue(int64(n))
	}
	if s.BlocksWritten != nil {
		s.BlocksWritten.Inc()
	}
}

// Appender writes framed blocks to w in order and maintains the bottom-up
// index cascade of spec.md §4.4.
type Appender struct {
	w               io.Writer
	codec           *codec.Codec
	codecParams     codec.Params
	branchingFactor int
	voffset         uint64
	levels          [][]pendingEntry
	stats           *Stats
}

// New constructs an Appender that writes framed blocks to w, using c to
// compress index-block payloads it builds internally, with the given
// branching factor (spec.md §4.4's B). stats may be nil.
func New(w io.Writer, c *codec.Codec, params codec.Params, branchingFactor int, stats *Stats) *Appender {
	return &Appender{
		w:               w,
		codec:           c,
		codecParams:     params,
		branchingFactor: branchingFactor,
		stats:           stats,
	}
}

// WriteDataBlock packs, compresses, frames, and writes one pre-sorted batch
// of records as a single level-0 block. Empty batches are silently skipped
// (spec.md §4.4: "Empty data blocks ... are silently skipped").
func (a *Appender) WriteDataBlock(records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	logical, err := block.PackData(records, a.branchingFactor*300)
	if err != nil {
		return err
	}
	compressed, err := block.Compress(a.codec, a.codecParams, logical)
	if err != nil {
		return err
	}
	return a.writeBlock(0, records[0], records[len(records)-1], compressed)
}

// WriteCompressedDataBlock writes a batch that has already been packed and
// compressed by a pipeline worker, skipping the pack/compress step here.
// firstKey and lastKey are the batch's first and last (pre-sort) records.
func (a *Appender) WriteCompressedDataBlock(firstKey, lastKey, compressed []byte) error {
	return a.writeBlock(0, firstKey, lastKey, compressed)
}

// writeBlock implements write_block(level, first_record, last_record, zdata)
// from spec.md §4.4: frame, write, track the virtual offset, enqueue a
// pending entry, and cascade into the parent level if this level just
// reached the branching factor.
func (a *Appender) writeBlock(level block.Level, firstKey, lastKey, compressed []byte) error {
	if level > block.MaxLevel {
		return zsserr.NewError(zsserr.KindLevel, "zss: index depth exceeds MaxLevel (%d)", block.MaxLevel)
	}

	framed := block.Frame(level, compressed)
	if _, err := a.w.Write(framed); err != nil {
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: write block at level %d", level)
	}

	handle := block.Handle{Offset: a.voffset, Length: uint64(len(framed))}
	a.voffset += uint64(len(framed))
	a.stats.recordBlockSize(len(framed))

	for int(level) >= len(a.levels) {
		a.levels = append(a.levels, nil)
	}
	fk := append([]byte(nil), firstKey...)
	lk := append([]byte(nil), lastKey...)
	a.levels[level] = append(a.levels[level], pendingEntry{firstKey: fk, lastKey: lk, handle: handle})

	if len(a.levels[level]) >= a.branchingFactor {
		return a.flushIndex(level)
	}
	return nil
}

// flushIndex implements _flush_index(level): verify the pending entries at
// level don't overlap, pack and compress them into one index block, and
// recursively write that block one level up.
func (a *Appender) flushIndex(level block.Level) error {
	entries := a.levels[level]
	if len(entries) == 0 {
		return nil
	}
	a.levels[level] = nil

	for i := 1; i < len(entries); i++ {
		if bytes.Compare(entries[i].firstKey, entries[i-1].lastKey) < 0 {
			return zsserr.NewError(zsserr.KindSortViolation, "zss: level %d: entry %d overlaps previous", level, i)
		}
	}

	keys := make([][]byte, len(entries))
	offsets := make([]uint64, len(entries))
	lengths := make([]uint64, len(entries))
	for i, e := range entries {
		keys[i] = e.firstKey
		offsets[i] = e.handle.Offset
		lengths[i] = e.handle.Length
	}

	logical, err := block.PackIndex(keys, offsets, lengths, a.branchingFactor*300)
	if err != nil {
		return err
	}
	compressed, err := block.Compress(a.codec, a.codecParams, logical)
	if err != nil {
		return err
	}

	firstKey := entries[0].firstKey
	lastKey := entries[len(entries)-1].lastKey
	return a.writeBlock(level+1, firstKey, lastKey, compressed)
}

// Finish cascades every remaining partial level (spec.md §4.4's finish()),
// skipping levels that are already empty rather than asserting they are
// non-empty the way the Python original does — a level can be empty at
// Finish time whenever an earlier cascade happened to drain it exactly, and
// spec.md's "flush whatever remains" reads as a no-op in that case rather
// than an error. It returns the root block's handle, or a KindEmpty error
// if no block was ever written.
//
// Before flushing a level, Finish checks whether that level is already the
// topmost level and already holds exactly one entry: if so, that entry is
// already the root and needs no further wrapping (this is what distinguishes
// an already-balanced tree, where the top level settled at size 1 during
// normal writeBlock cascades, from a level that still needs a final partial
// flush). Level 0 never qualifies for this shortcut even when it's the only
// level and holds one entry, since the root must always be an index block
// (spec.md invariant (L): "the root is always an index block, even over a
// single data block").
func (a *Appender) Finish() (block.Handle, error) {
	if len(a.levels) == 0 {
		return block.Handle{}, zsserr.NewError(zsserr.KindEmpty, "zss: no blocks were written")
	}

	for level := block.Level(0); int(level) < len(a.levels); level++ {
		if level >= 1 && int(level) == len(a.levels)-1 && len(a.levels[level]) == 1 {
			return a.levels[level][0].handle, nil
		}
		if len(a.levels[level]) == 0 {
			continue
		}
		if err := a.flushIndex(level); err != nil {
			return block.Handle{}, err
		}
	}

	return block.Handle{}, zsserr.NewError(zsserr.KindLevel, "zss: index cascade never converged to a single root")
}
