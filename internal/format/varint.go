// Package format implements the primitive wire-encoding building blocks
// that the rest of this module frames blocks and headers with: ULEB128
// variable-length integers, fixed-width little-endian integers, and
// CRC-32C checksums.
package format

import (
	"encoding/binary"

	"golang.org/x/exp/constraints"
)

// MaxUvarintLen is the maximum number of bytes a ULEB128-encoded uint64 can
// occupy (ceil(64/7)).
const MaxUvarintLen = binary.MaxVarintLen64

// AppendUvarint appends the canonical ULEB128 encoding of v to dst and
// returns the extended slice.
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// Uvarint decodes a ULEB128-encoded unsigned integer from the front of buf.
//
// It returns n == 0 when buf does not contain a complete encoding (either
// empty or cut off mid-continuation); callers that handed in fewer than
// MaxUvarintLen bytes because no more were available can treat that as a
// genuine truncation, while MaxUvarintLen bytes with no terminating byte
// are a malformed encoding. It returns n < 0 when the value overflows 64
// bits — also a malformed encoding, not a truncated one.
func Uvarint(buf []byte) (value uint64, n int) {
	return binary.Uvarint(buf)
}

func minInt[T constraints.Integer](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// ScratchLen returns a buffer length suitable for a first speculative read
// of a ULEB128 prefix: the smaller of MaxUvarintLen and the number of bytes
// actually remaining, so callers never over-read past a short file.
func ScratchLen(remaining int64) int {
	if remaining < 0 {
		remaining = 0
	}
	return int(minInt(int64(MaxUvarintLen), remaining))
}
