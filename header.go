package zss

import (
	"encoding/json"

	"github.com/copperloop/zss/internal/format"
	"github.com/copperloop/zss/internal/zsserr"
)

const (
	// magicCompleted and magicIncomplete differ in their last byte only
	// (spec.md §3.1): a file is valid exactly when its first 8 bytes equal
	// magicCompleted.
	magicCompleted   = "ZSS1\x00\x00\x00\x01"
	magicIncomplete  = "ZSS1\x00\x00\x00\x00"
	magicLen         = 8
	headerLengthSize = 4
	headerCRCSize    = 4

	// rootOffsetSentinel is written into root-index-offset while the file
	// is in progress (spec.md §3.2).
	rootOffsetSentinel uint64 = 1<<63 - 1
)

// header is the decoded form of spec.md §3.2's header payload.
type header struct {
	rootOffset uint64
	rootLength uint64
	uuid       [16]byte
	codecName  string
	metadata   json.RawMessage
}

// encode appends header's wire encoding to dst, in the field order §3.2
// declares: root-index-offset, root-index-length, uuid, codec-name,
// metadata.
func (h header) encode(dst []byte) []byte {
	dst = format.PutUint64LE(dst, h.rootOffset)
	dst = format.PutUint64LE(dst, h.rootLength)
	dst = append(dst, h.uuid[:]...)
	dst = format.PutUint32LE(dst, uint32(len(h.codecName)))
	dst = append(dst, h.codecName...)
	dst = format.PutUint32LE(dst, uint32(len(h.metadata)))
	dst = append(dst, h.metadata...)
	return dst
}

// decodeHeader parses a header payload per §3.2, validating that the
// metadata is a JSON object (invariant (H)) and that buf is fully
// consumed (no trailing garbage inside the declared header length).
func decodeHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < 8+8+16+4 {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload too short")
	}
	h.rootOffset = format.Uint64LE(buf)
	buf = buf[8:]
	h.rootLength = format.Uint64LE(buf)
	buf = buf[8:]
	copy(h.uuid[:], buf[:16])
	buf = buf[16:]

	if len(buf) < 4 {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload: truncated codec-name length")
	}
	codecLen := format.Uint32LE(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(codecLen) {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload: truncated codec-name")
	}
	h.codecName = string(buf[:codecLen])
	buf = buf[codecLen:]

	if len(buf) < 4 {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload: truncated metadata length")
	}
	metaLen := format.Uint32LE(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(metaLen) {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload: truncated metadata")
	}
	h.metadata = append(json.RawMessage(nil), buf[:metaLen]...)
	buf = buf[metaLen:]

	if len(buf) != 0 {
		return header{}, zsserr.NewError(zsserr.KindFraming, "zss: header payload: %d trailing byte(s)", len(buf))
	}

	if err := validateMetadataObject(h.metadata); err != nil {
		return header{}, err
	}
	return h, nil
}

// validateMetadataObject enforces spec.md §3.2's "must parse as a JSON
// object" rule: a bare JSON string, number, array, etc. is rejected even
// though it's syntactically valid JSON.
func validateMetadataObject(raw json.RawMessage) error {
	var v map[string]interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return zsserr.WrapError(zsserr.KindMetadata, err, "zss: metadata is not a JSON object")
	}
	if v == nil {
		return zsserr.NewError(zsserr.KindMetadata, "zss: metadata is not a JSON object")
	}
	return nil
}
