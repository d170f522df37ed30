// Package block implements the on-disk block framing and logical-payload
// packing spec.md §3.3/§3.4 defines, independent of any particular codec.
package block

import (
	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/format"
	"github.com/copperloop/zss/internal/zsserr"
)

// Level identifies a block's place in the index tree: 0 is a data block,
// 1..MaxLevel is an index block at that level.
type Level int

// MaxLevel is the fixed small bound on index depth spec.md §3.3 calls for.
const MaxLevel Level = 63

// Handle is the (offset, length) pair an index entry or header stores to
// name a block: a virtual offset measured from the start of the block
// stream, and the block's total on-disk length (framing + CRC included).
type Handle struct {
	Offset uint64
	Length uint64
}

// Frame writes one block's on-disk bytes (§3.3):
//
//	uleb128(payload_length) || level_byte || codec_payload || crc32c(level_byte || codec_payload)
//
// level must already fit in a single byte (callers enforce level <= MaxLevel).
// compressed is the codec-compressed logical payload; Frame does not
// compress it. It returns the framed bytes; their length is the block's
// total on-disk length.
func Frame(level Level, compressed []byte) []byte {
	payloadLen := uint64(1 + len(compressed))
	out := format.AppendUvarint(make([]byte, 0, format.MaxUvarintLen+int(payloadLen)+4), payloadLen)
	out = append(out, byte(level))
	out = append(out, compressed...)

	h := format.NewCRC32C()
	h.Write(out[len(out)-int(payloadLen):])
	crc := h.Sum32()

	out = format.PutUint32LE(out, crc)
	return out
}

// ReadAt parses one framed block whose first byte is at absolute file
// offset pos, reading through r. It returns the block's level, its
// compressed (still codec-encoded) payload, and the total number of bytes
// the framed block occupies on disk (for invariant (S) checks).
//
// The scratch-buffer-vs-ULEB128 distinction follows spec.md §7's split
// between a framing error (malformed encoding, enough bytes were
// available) and a truncated-file error (not enough bytes were available
// to even attempt a decode, i.e. a genuine short read at EOF).
func ReadAt(r ReaderAt, pos int64, fileSize int64) (level Level, compressed []byte, totalLen int64, err error) {
	remaining := fileSize - pos
	if remaining <= 0 {
		return 0, nil, 0, zsserr.NewError(zsserr.KindTruncatedFile, "zss: block at offset %d: no bytes remain", pos)
	}

	scratchLen := format.ScratchLen(remaining)
	scratch := make([]byte, scratchLen)
	n, err := r.ReadAt(scratch, pos)
	if err != nil && int64(n) < int64(scratchLen) {
		return 0, nil, 0, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: block at offset %d: short read", pos)
	}

	payloadLen, uvarintLen := format.Uvarint(scratch[:n])
	if uvarintLen == 0 {
		if n >= format.MaxUvarintLen {
			return 0, nil, 0, zsserr.NewError(zsserr.KindFraming, "zss: block at offset %d: malformed length prefix", pos)
		}
		return 0, nil, 0, zsserr.NewError(zsserr.KindTruncatedFile, "zss: block at offset %d: truncated length prefix", pos)
	}
	if uvarintLen < 0 {
		return 0, nil, 0, zsserr.NewError(zsserr.KindFraming, "zss: block at offset %d: malformed length prefix", pos)
	}
	if payloadLen == 0 {
		return 0, nil, 0, zsserr.NewError(zsserr.KindFraming, "zss: block at offset %d: empty payload", pos)
	}

	total := int64(uvarintLen) + int64(payloadLen) + 4
	if total > remaining {
		return 0, nil, 0, zsserr.NewError(zsserr.KindTruncatedFile, "zss: block at offset %d: declares %d bytes, only %d remain", pos, total, remaining)
	}

	buf := make([]byte, total)
	if _, err := r.ReadAt(buf, pos); err != nil {
		return 0, nil, 0, zsserr.WrapError(zsserr.KindTruncatedFile, err, "zss: block at offset %d: short read of full block", pos)
	}

	body := buf[uvarintLen : uvarintLen+int(payloadLen)]
	wantCRC := format.Uint32LE(buf[len(buf)-4:])
	gotCRC := format.CRC32C(body)
	if gotCRC != wantCRC {
		return 0, nil, 0, zsserr.NewError(zsserr.KindCRC, "zss: block at offset %d: crc mismatch", pos)
	}

	return Level(body[0]), body[1:], total, nil
}

// ReaderAt is the io.ReaderAt subset block.ReadAt needs; satisfied by
// *os.File and, in tests, by a bytes.Reader wrapped in a small adapter.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Compress runs a data or index logical payload through the named codec.
func Compress(c *codec.Codec, params codec.Params, logical []byte) ([]byte, error) {
	return c.Compress(logical, params)
}

// Decompress reverses Compress.
func Decompress(c *codec.Codec, compressed []byte) ([]byte, error) {
	return c.Decompress(compressed)
}
