package zss

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/format"
)

// rawBuilder constructs a ZSS block stream one block at a time, bypassing
// internal/appender's own sortedness checks, so corruption-scenario tests
// can assemble exactly the (possibly invalid) tree shapes spec.md §8 names.
type rawBuilder struct {
	t   *testing.T
	buf []byte
	c   *codec.Codec
}

func newRawBuilder(t *testing.T) *rawBuilder {
	t.Helper()
	c, err := codec.Lookup("none")
	require.NoError(t, err)
	return &rawBuilder{t: t, c: c}
}

func (b *rawBuilder) writeBlock(level block.Level, logical []byte) block.Handle {
	compressed, err := block.Compress(b.c, codec.Params{}, logical)
	require.NoError(b.t, err)
	framed := block.Frame(level, compressed)
	h := block.Handle{Offset: uint64(len(b.buf)), Length: uint64(len(framed))}
	b.buf = append(b.buf, framed...)
	return h
}

// dataBlock packs records without checking their order, so callers can
// construct a deliberately out-of-order data block.
func (b *rawBuilder) dataBlock(records ...string) block.Handle {
	var logical []byte
	for _, r := range records {
		logical = format.AppendUvarint(logical, uint64(len(r)))
		logical = append(logical, r...)
	}
	return b.writeBlock(0, logical)
}

// indexBlock packs (key, handle) entries without checking ordering or
// overlap, so callers can construct deliberately invalid index spans.
func (b *rawBuilder) indexBlock(level block.Level, keys []string, handles []block.Handle) block.Handle {
	require.Equal(b.t, len(keys), len(handles))
	offsets := make([]uint64, len(handles))
	lengths := make([]uint64, len(handles))
	kb := make([][]byte, len(keys))
	for i, h := range handles {
		offsets[i] = h.Offset
		lengths[i] = h.Length
		kb[i] = []byte(keys[i])
	}
	logical, err := block.PackIndex(kb, offsets, lengths, 0)
	require.NoError(b.t, err)
	return b.writeBlock(level, logical)
}

// appendRaw appends already-framed bytes verbatim to the stream (used to
// graft an unreferenced or mismatched-length block on).
func (b *rawBuilder) appendRaw(framed []byte) {
	b.buf = append(b.buf, framed...)
}

// finalize writes magic, header, and the accumulated block stream to path.
func (b *rawBuilder) finalize(path string, root block.Handle, codecName string, metadata json.RawMessage) {
	if metadata == nil {
		metadata = json.RawMessage(`{}`)
	}
	h := header{
		rootOffset: root.Offset,
		rootLength: root.Length,
		codecName:  codecName,
		metadata:   metadata,
	}
	payload := h.encode(nil)

	var out []byte
	out = append(out, magicCompleted...)
	out = format.PutUint32LE(out, uint32(len(payload)))
	out = append(out, payload...)
	out = format.PutUint32LE(out, format.CRC32C(payload))
	out = append(out, b.buf...)

	require.NoError(b.t, os.WriteFile(path, out, 0o644))
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := KindOf(err)
	require.True(t, ok, "error %v carries no Kind", err)
	require.Equal(t, want, got)
}

func TestValidateTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")
	buildSimpleValidFile(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))

	requireKind(t, Validate(path), KindTruncatedFile)
}

func TestValidateBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")
	buildSimpleValidFile(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = 'Q'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	requireKind(t, Validate(path), KindBadMagic)
}

func TestValidateHeaderCRCMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")
	buildSimpleValidFile(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := 28; i < 28+8; i++ {
		data[i] = 0
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	requireKind(t, Validate(path), KindCRC)
}

func TestValidateIncompleteMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")
	buildSimpleValidFile(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data[:8], []byte(magicIncomplete))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	requireKind(t, Validate(path), KindIncompleteFile)
}

func TestValidateBadDataOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("z", "a")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindSortViolation)
}

func TestValidateBadIndexKey1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "c")
	root := b.indexBlock(1, []string{"b"}, []block.Handle{d})
	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindIndexBounds)
}

func TestValidateGoodIndexKey1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("b", "c")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
	b.finalize(path, root, "none", nil)

	require.NoError(t, Validate(path))
}

func TestValidateBadIndexKey3Transitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d1 := b.dataBlock("a", "c")
	d2 := b.dataBlock("e", "g")
	idx1 := b.indexBlock(1, []string{"a", "e"}, []block.Handle{d1, d2})

	d3 := b.dataBlock("i", "k")
	d4 := b.dataBlock("m", "o")
	idx2 := b.indexBlock(1, []string{"i", "m"}, []block.Handle{d3, d4})

	root := b.indexBlock(2, []string{"a", "f"}, []block.Handle{idx1, idx2})
	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindIndexBounds)
}

func TestValidateUnreferencedIndexBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})

	// Graft on an extra, structurally valid but unreferenced index block.
	orphan, err := block.PackIndex([][]byte{[]byte("x")}, []uint64{0}, []uint64{1}, 0)
	require.NoError(t, err)
	compressed, err := block.Compress(b.c, codec.Params{}, orphan)
	require.NoError(t, err)
	b.appendRaw(block.Frame(1, compressed))

	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindUnreferencedBlock)
}

func TestValidateRepeatedIndexReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	root := b.indexBlock(1, []string{"a", "a"}, []block.Handle{d, d})
	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindDoubleReference)
}

func TestValidateNonDictMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
	b.finalize(path, root, "none", json.RawMessage(`"hi!"`))

	requireKind(t, Validate(path), KindMetadata)
}

func TestValidateRootIsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	b.finalize(path, d, "none", nil)

	requireKind(t, Validate(path), KindLevel)
}

func TestValidateBadCodec(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
	b.finalize(path, root, "XXX-bad-codec-XXX", nil)

	requireKind(t, Validate(path), KindCodec)
}

func TestValidateWrongRootLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.zss")

	b := newRawBuilder(t)
	d := b.dataBlock("a", "b")
	root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
	b.dataBlock("c", "d") // trailing block so the claimed extra byte is readable

	root.Length++
	b.finalize(path, root, "none", nil)

	requireKind(t, Validate(path), KindSizeMismatch)
}

// buildSimpleValidFile writes a minimal but fully valid ZSS file (one data
// block wrapped in a level-1 root index) via the real writer pipeline.
func buildSimpleValidFile(t *testing.T, path string) {
	t.Helper()
	w, err := Create(context.Background(), path, WriterOptions{BranchingFactor: 2}, NewStats())
	require.NoError(t, err)
	require.NoError(t, w.AddDataBlock([][]byte{[]byte("a"), []byte("b")}))
	require.NoError(t, w.Close())
}
