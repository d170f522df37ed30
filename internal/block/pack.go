package block

import (
	"bytes"

	"github.com/copperloop/zss/internal/format"
	"github.com/copperloop/zss/internal/zsserr"
)

// PackData produces the logical data-block payload (§3.4): a sequence of
// uleb128(len) || bytes records. records must already be in non-decreasing
// lexicographic order; PackData checks this and fails with a sort-violation
// error otherwise. hint sizes the initial allocation; it is not a limit.
func PackData(records [][]byte, hint int) ([]byte, error) {
	for i := 1; i < len(records); i++ {
		if bytes.Compare(records[i], records[i-1]) < 0 {
			return nil, zsserr.NewError(zsserr.KindSortViolation, "zss: data record %d out of order", i)
		}
	}
	out := make([]byte, 0, hint)
	for _, rec := range records {
		out = format.AppendUvarint(out, uint64(len(rec)))
		out = append(out, rec...)
	}
	return out, nil
}

// VisitDataRecords calls fn once per record in a data block's logical
// payload, in on-disk order. It fails with a framing error if the payload
// ends mid-record.
func VisitDataRecords(payload []byte, fn func(record []byte) error) error {
	for len(payload) > 0 {
		n, used := format.Uvarint(payload)
		if used <= 0 {
			return zsserr.NewError(zsserr.KindFraming, "zss: data block: truncated record length")
		}
		payload = payload[used:]
		if uint64(len(payload)) < n {
			return zsserr.NewError(zsserr.KindFraming, "zss: data block: record length exceeds remaining payload")
		}
		if err := fn(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// IndexEntry is one (key, child handle) pair an index block's logical
// payload encodes.
type IndexEntry struct {
	Key    []byte
	Handle Handle
}

// PackIndex produces the logical index-block payload (§3.4): a sequence of
// uleb128(key_len) || key || uleb128(child_offset) || uleb128(child_length)
// entries. keys, offsets, and lengths must be the same non-zero length.
func PackIndex(keys [][]byte, offsets, lengths []uint64, hint int) ([]byte, error) {
	if len(keys) == 0 {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: pack_index: empty entry list")
	}
	if len(keys) != len(offsets) || len(keys) != len(lengths) {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: pack_index: mismatched parallel sequence lengths")
	}
	out := make([]byte, 0, hint)
	for i, k := range keys {
		out = format.AppendUvarint(out, uint64(len(k)))
		out = append(out, k...)
		out = format.AppendUvarint(out, offsets[i])
		out = format.AppendUvarint(out, lengths[i])
	}
	return out, nil
}

// VisitIndexEntries calls fn once per entry in an index block's logical
// payload, in on-disk order. It fails with a framing error if the payload
// ends mid-entry.
func VisitIndexEntries(payload []byte, fn func(entry IndexEntry) error) error {
	for len(payload) > 0 {
		keyLen, used := format.Uvarint(payload)
		if used <= 0 {
			return zsserr.NewError(zsserr.KindFraming, "zss: index block: truncated key length")
		}
		payload = payload[used:]
		if uint64(len(payload)) < keyLen {
			return zsserr.NewError(zsserr.KindFraming, "zss: index block: key length exceeds remaining payload")
		}
		key := payload[:keyLen]
		payload = payload[keyLen:]

		offset, used := format.Uvarint(payload)
		if used <= 0 {
			return zsserr.NewError(zsserr.KindFraming, "zss: index block: truncated child offset")
		}
		payload = payload[used:]

		length, used := format.Uvarint(payload)
		if used <= 0 {
			return zsserr.NewError(zsserr.KindFraming, "zss: index block: truncated child length")
		}
		payload = payload[used:]

		if err := fn(IndexEntry{Key: key, Handle: Handle{Offset: offset, Length: length}}); err != nil {
			return err
		}
	}
	return nil
}
