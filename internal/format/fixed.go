package format

import "encoding/binary"

// PutUint32LE appends a fixed-width little-endian uint32.
func PutUint32LE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// Uint32LE decodes a fixed-width little-endian uint32 from the front of buf.
func Uint32LE(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// PutUint64LE appends a fixed-width little-endian uint64.
func PutUint64LE(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// Uint64LE decodes a fixed-width little-endian uint64 from the front of buf.
func Uint64LE(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf)
}
