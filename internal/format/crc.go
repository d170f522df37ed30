package format

import "hash/crc32"

// castagnoliTable is the CRC-32C (Castagnoli) polynomial table. It is
// process-wide and built once, the way pebble's own internal/crc package
// builds its table: CRC-32C is a stdlib-tabulated polynomial, so there is
// no third-party library to prefer over hash/crc32 here (see DESIGN.md).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the one-shot CRC-32C checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// NewCRC32C returns a streaming CRC-32C hash.Hash32, for callers that want
// to checksum a span assembled from more than one []byte without
// concatenating them first (e.g. io.MultiWriter over a block's framing
// byte and its compressed payload).
func NewCRC32C() crc32Hash {
	return crc32.New(castagnoliTable)
}

// crc32Hash is an alias kept local so callers don't need to import
// hash/crc32 themselves just to spell the return type of NewCRC32C.
type crc32Hash = interface {
	Write(p []byte) (int, error)
	Sum32() uint32
	Reset()
}
