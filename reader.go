package zss

import (
	"encoding/json"
	"os"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/format"
	"github.com/copperloop/zss/internal/zsserr"
)

// Reader opens a ZSS file for the in-scope subset of §6's reader surface:
// open-and-validate, full in-order iteration, and level-0 block iteration.
// Random access by key or range is outside this repository's scope.
type Reader struct {
	f          *os.File
	h          header
	c          *codec.Codec
	fileSize   int64
	dataOffset int64 // absolute file offset of virtual offset 0 (§3.1)
}

// Open opens path, parses and checksums its header, and walks the full
// index tree and block stream to check every invariant in spec.md §3.5
// before returning. A non-nil error means the file failed one of those
// invariants (or couldn't even be opened); the returned Kind identifies
// which one, via KindOf.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: open %s", path)
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Validate opens path, runs the full traversal Open always performs, and
// closes the file again. It's a thin convenience wrapper for callers that
// only care whether the file is valid, not its contents.
func Validate(path string) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	return r.Close()
}

func newReader(f *os.File) (*Reader, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: stat")
	}
	size := fi.Size()

	if size < magicLen {
		return nil, zsserr.NewError(zsserr.KindTruncatedFile, "zss: file is %d bytes, shorter than the magic", size)
	}
	var magic [magicLen]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: read magic")
	}
	switch string(magic[:]) {
	case magicCompleted:
	case magicIncomplete:
		return nil, zsserr.NewError(zsserr.KindIncompleteFile, "zss: file has incomplete-magic; writer never finished")
	default:
		return nil, zsserr.NewError(zsserr.KindBadMagic, "zss: first 8 bytes match neither magic value")
	}

	headerStart := int64(magicLen + headerLengthSize)
	if size < headerStart {
		return nil, zsserr.NewError(zsserr.KindTruncatedFile, "zss: file ends inside header-length field")
	}
	var lenBuf [headerLengthSize]byte
	if _, err := f.ReadAt(lenBuf[:], magicLen); err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: read header-length")
	}
	headerLen := int64(format.Uint32LE(lenBuf[:]))

	if size < headerStart+headerLen+headerCRCSize {
		return nil, zsserr.NewError(zsserr.KindTruncatedFile, "zss: file ends inside header payload or crc")
	}
	payload := make([]byte, headerLen)
	if _, err := f.ReadAt(payload, headerStart); err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: read header payload")
	}
	var crcBuf [headerCRCSize]byte
	if _, err := f.ReadAt(crcBuf[:], headerStart+headerLen); err != nil {
		return nil, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: read header crc")
	}
	wantCRC := format.Uint32LE(crcBuf[:])
	if gotCRC := format.CRC32C(payload); gotCRC != wantCRC {
		return nil, zsserr.NewError(zsserr.KindCRC, "zss: header crc mismatch: got %#x, want %#x", gotCRC, wantCRC)
	}

	h, err := decodeHeader(payload)
	if err != nil {
		return nil, err
	}
	c, err := codec.Lookup(h.codecName)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		f:          f,
		h:          h,
		c:          c,
		fileSize:   size,
		dataOffset: headerStart + headerLen + headerCRCSize,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Metadata decodes the header's metadata field, already known to be a JSON
// object (Open would have failed with KindMetadata otherwise).
func (r *Reader) Metadata() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(r.h.metadata, &m); err != nil {
		return nil, zsserr.WrapError(zsserr.KindMetadata, err, "zss: decode metadata")
	}
	return m, nil
}

// CodecName returns the codec named in the header.
func (r *Reader) CodecName() string { return r.h.codecName }

// UUID returns the header's uuid field verbatim.
func (r *Reader) UUID() [16]byte { return r.h.uuid }

// DataBlocks calls fn once per level-0 (data) block, in on-disk order, with
// that block's decoded records. Blocks land in the stream in the same order
// the writer appended them, so this is also the file's global record order
// without needing to consult the index at all.
func (r *Reader) DataBlocks(fn func(records [][]byte) error) error {
	pos := r.dataOffset
	for pos < r.fileSize {
		level, compressed, total, err := block.ReadAt(r.f, pos, r.fileSize)
		if err != nil {
			return err
		}
		if level == 0 {
			logical, err := block.Decompress(r.c, compressed)
			if err != nil {
				return err
			}
			var records [][]byte
			if err := block.VisitDataRecords(logical, func(rec []byte) error {
				records = append(records, append([]byte(nil), rec...))
				return nil
			}); err != nil {
				return err
			}
			if err := fn(records); err != nil {
				return err
			}
		}
		pos += total
	}
	return nil
}

// Records calls fn once per record across the whole file, in order.
func (r *Reader) Records(fn func(record []byte) error) error {
	return r.DataBlocks(func(records [][]byte) error {
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
