// Package zss implements a write-once, read-many sorted-string container:
// a single file holding a large, lexicographically sorted sequence of
// opaque byte records, written by a parallel compression pipeline and a
// serial block appender, and readable back via a validating traversal of
// its bottom-up index.
package zss

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/copperloop/zss/internal/appender"
	"github.com/copperloop/zss/internal/format"
	"github.com/copperloop/zss/internal/pipeline"
	"github.com/copperloop/zss/internal/zsserr"
)

// Writer drives the lifecycle spec.md §4.6 describes: Open, accept
// records, Finish. A Writer is not safe for concurrent use by more than
// one goroutine feeding it records; the pipeline's own internal workers
// are the only concurrency a caller needs.
type Writer struct {
	path   string
	file   *os.File
	opts   WriterOptions
	stats  *Stats
	header header

	headerStart   int64
	headerPayload int64 // offset of the header payload (after header-length)
	headerCRCPos  int64

	appender *appender.Appender
	pipeline *pipeline.Pipeline
	nextJob  int

	closed bool
}

// Create opens path for exclusive creation and begins writing a new ZSS
// file: incomplete-magic, header-length, a placeholder header (root offset
// set to the in-progress sentinel, CRC zeroed), per spec.md §4.6 step 1.
func Create(ctx context.Context, path string, opts WriterOptions, stats *Stats) (*Writer, error) {
	c, err := opts.fillDefaultsAndValidate()
	if err != nil {
		return nil, err
	}
	metadata, err := opts.marshalMetadata()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, zsserr.WrapError(zsserr.KindExists, err, "zss: create %s", path)
		}
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: create %s", path)
	}

	h := header{
		rootOffset: rootOffsetSentinel,
		rootLength: 0,
		uuid:       opts.UUID,
		codecName:  opts.Codec,
		metadata:   metadata,
	}

	w := &Writer{
		path:   path,
		file:   f,
		opts:   opts,
		stats:  stats,
		header: h,
	}

	if err := w.writeInitialHeader(); err != nil {
		f.Close()
		return nil, err
	}

	a := appender.New(w.file, c, opts.CodecParams, opts.BranchingFactor, stats.appenderStats())
	w.appender = a
	w.pipeline = pipeline.New(ctx, a, c, opts.CodecParams, opts.Parallelism, opts.Parallelism*2, 2*opts.ApproxBlockSize, stats.pipelineStats())

	return w, nil
}

func (w *Writer) writeInitialHeader() error {
	w.headerStart = 0
	payload := w.header.encode(nil)

	buf := make([]byte, 0, magicLen+headerLengthSize+len(payload)+headerCRCSize)
	buf = append(buf, magicIncomplete...)
	buf = format.PutUint32LE(buf, uint32(len(payload)))
	w.headerPayload = int64(len(buf))
	buf = append(buf, payload...)
	w.headerCRCPos = int64(len(buf))
	buf = format.PutUint32LE(buf, 0) // deliberately-invalid all-zero CRC placeholder

	if _, err := w.file.Write(buf); err != nil {
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: write initial header")
	}
	return nil
}

// AddDataBlock packs records (already in non-decreasing order) as a single
// block. Any non-sortedness relative to previously written records
// surfaces as a sort-violation error, per spec.md §4.4 step 3a.
func (w *Writer) AddDataBlock(records [][]byte) error {
	if w.closed {
		return zsserr.NewError(zsserr.KindClosed, "zss: writer is closed")
	}
	if err := w.pipeline.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	idx := w.nextJob
	w.nextJob++
	w.stats.recordRecords(records)
	if err := w.pipeline.Submit(idx, records); err != nil {
		return err
	}
	return w.pipeline.Err()
}

// AddFileContents reads r fully, splits it into records using framing, and
// batches those records into blocks whose packed size approximates
// approxBlockSize (spec.md §4.6 item 2). It polls pipeline health after
// every batch, satisfying the producer-side liveness property (§4.5,
// §8's "Pipeline liveness").
func (w *Writer) AddFileContents(r io.Reader, approxBlockSize int, framing Framing) error {
	if w.closed {
		return zsserr.NewError(zsserr.KindClosed, "zss: writer is closed")
	}
	if err := framing.validate(); err != nil {
		return err
	}
	if approxBlockSize <= 0 {
		approxBlockSize = w.opts.ApproxBlockSize
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: read file contents")
	}

	var records [][]byte
	if len(framing.Terminator) > 0 {
		records, err = splitOnTerminator(data, framing.Terminator)
	} else {
		records, err = splitLengthPrefixed(data, framing.LengthPrefix)
	}
	if err != nil {
		return err
	}

	batch := make([][]byte, 0, 64)
	batchSize := 0
	for _, rec := range records {
		batch = append(batch, rec)
		batchSize += len(rec)
		if batchSize >= approxBlockSize {
			if err := w.AddDataBlock(batch); err != nil {
				return err
			}
			batch = make([][]byte, 0, 64)
			batchSize = 0
		}
	}
	if len(batch) > 0 {
		if err := w.AddDataBlock(batch); err != nil {
			return err
		}
	}
	return nil
}

// splitOnTerminator splits data on every occurrence of sep. A dangling
// partial record at EOF (no trailing terminator) is a framing error,
// matching original_source/zss's test_trailing_record expectation, unless
// data is empty.
func splitOnTerminator(data []byte, sep []byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !bytes.HasSuffix(data, sep) {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: file contents: trailing record without terminator")
	}
	data = data[:len(data)-len(sep)]
	return bytes.Split(data, sep), nil
}

// splitLengthPrefixed splits data into length-prefixed records, using
// either ULEB128 or fixed-width little-endian uint64 lengths.
func splitLengthPrefixed(data []byte, kind string) ([][]byte, error) {
	var records [][]byte
	for len(data) > 0 {
		var n uint64
		switch kind {
		case "uleb128":
			v, used := format.Uvarint(data)
			if used <= 0 {
				return nil, zsserr.NewError(zsserr.KindFraming, "zss: file contents: truncated length prefix")
			}
			data = data[used:]
			n = v
		case "u64le":
			if len(data) < 8 {
				return nil, zsserr.NewError(zsserr.KindFraming, "zss: file contents: truncated length prefix")
			}
			n = format.Uint64LE(data)
			data = data[8:]
		default:
			return nil, zsserr.NewError(zsserr.KindFraming, "zss: file contents: unknown length-prefix kind %q", kind)
		}
		if uint64(len(data)) < n {
			return nil, zsserr.NewError(zsserr.KindFraming, "zss: file contents: record length exceeds remaining data")
		}
		records = append(records, data[:n])
		data = data[n:]
	}
	return records, nil
}

// Close drains the pipeline, patches the header with the real root handle,
// and flips the magic to completed (spec.md §4.6 step 3). On any failure
// the file is left with incomplete-magic and is never removed (step 4).
func (w *Writer) Close() error {
	if w.closed {
		return zsserr.NewError(zsserr.KindClosed, "zss: writer is closed")
	}
	w.closed = true

	root, err := w.pipeline.Close()
	if err != nil {
		w.file.Close()
		return err
	}

	w.header.rootOffset = root.Offset
	w.header.rootLength = root.Length
	newPayload := w.header.encode(nil)
	oldPayload := len(w.headerBuf())
	if len(newPayload) != oldPayload {
		w.file.Close()
		return zsserr.NewError(zsserr.KindHeaderLength, "zss: finalised header length %d differs from placeholder %d", len(newPayload), oldPayload)
	}

	if _, err := w.file.WriteAt(newPayload, w.headerPayload); err != nil {
		w.file.Close()
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: patch header")
	}
	crc := format.CRC32C(newPayload)
	crcBuf := format.PutUint32LE(nil, crc)
	if _, err := w.file.WriteAt(crcBuf, w.headerCRCPos); err != nil {
		w.file.Close()
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: patch header crc")
	}

	if err := durableFlush(w.file); err != nil {
		w.file.Close()
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: flush after header patch")
	}

	if _, err := w.file.WriteAt([]byte(magicCompleted), 0); err != nil {
		w.file.Close()
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: write completed magic")
	}
	if err := durableFlush(w.file); err != nil {
		w.file.Close()
		return zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: flush after magic flip")
	}

	return w.file.Close()
}

// headerBuf returns the encoded placeholder payload, whose length Close
// compares against the finalised payload's; it's recomputed rather than cached because
// the placeholder's root fields are fixed-width and never change length.
func (w *Writer) headerBuf() []byte {
	placeholder := header{
		rootOffset: rootOffsetSentinel,
		rootLength: 0,
		uuid:       w.header.uuid,
		codecName:  w.opts.Codec,
		metadata:   w.header.metadata,
	}
	return placeholder.encode(nil)
}
