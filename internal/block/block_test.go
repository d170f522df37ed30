package block_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
)

type byteReaderAt struct{ b []byte }

func (r byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(r.b).ReadAt(p, off)
}

func TestPackAndVisitData(t *testing.T) {
	records := [][]byte{[]byte("aa"), []byte("ab"), []byte("b")}
	payload, err := block.PackData(records, 0)
	require.NoError(t, err)

	var got [][]byte
	require.NoError(t, block.VisitDataRecords(payload, func(r []byte) error {
		cp := append([]byte(nil), r...)
		got = append(got, cp)
		return nil
	}))
	require.Equal(t, records, got)
}

func TestPackDataRejectsOutOfOrder(t *testing.T) {
	_, err := block.PackData([][]byte{[]byte("b"), []byte("a")}, 0)
	require.Error(t, err)
}

func TestPackAndVisitIndex(t *testing.T) {
	keys := [][]byte{[]byte("a"), []byte("m")}
	offsets := []uint64{0, 100}
	lengths := []uint64{50, 60}
	payload, err := block.PackIndex(keys, offsets, lengths, 0)
	require.NoError(t, err)

	var got []block.IndexEntry
	require.NoError(t, block.VisitIndexEntries(payload, func(e block.IndexEntry) error {
		got = append(got, block.IndexEntry{Key: append([]byte(nil), e.Key...), Handle: e.Handle})
		return nil
	}))
	require.Len(t, got, 2)
	require.Equal(t, []byte("a"), got[0].Key)
	require.Equal(t, block.Handle{Offset: 100, Length: 60}, got[1].Handle)
}

func TestFrameAndReadAt(t *testing.T) {
	none, err := codec.Lookup("none")
	require.NoError(t, err)

	logical, err := block.PackData([][]byte{[]byte("x")}, 0)
	require.NoError(t, err)
	compressed, err := block.Compress(none, codec.Params{}, logical)
	require.NoError(t, err)

	framed := block.Frame(0, compressed)

	r := byteReaderAt{b: framed}
	level, body, total, err := block.ReadAt(r, 0, int64(len(framed)))
	require.NoError(t, err)
	require.Equal(t, block.Level(0), level)
	require.Equal(t, int64(len(framed)), total)

	logicalBack, err := block.Decompress(none, body)
	require.NoError(t, err)
	require.Equal(t, logical, logicalBack)
}

func TestReadAtTruncated(t *testing.T) {
	r := byteReaderAt{b: []byte{0x85}}
	_, _, _, err := block.ReadAt(r, 0, 1)
	require.Error(t, err)
}
