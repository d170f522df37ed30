package zss

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"

	"github.com/copperloop/zss/internal/block"
	"github.com/copperloop/zss/internal/codec"
)

// TestValidateCorruptionScenarios walks testdata/validate, building one of
// the named §8 corruption trees per "scenario" command and reporting the
// Kind Validate returned (or "ok" for the one scenario that's deliberately
// valid), the way the teacher's sstable package drives its own block-layer
// tests off testdata fixtures.
func TestValidateCorruptionScenarios(t *testing.T) {
	datadriven.Walk(t, filepath.Join("testdata", "validate"), func(t *testing.T, path string) {
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "scenario":
				name := strings.TrimSpace(d.Input)
				err := runCorruptionScenario(t, name)
				if err == nil {
					return "ok"
				}
				kind, ok := KindOf(err)
				if !ok {
					t.Fatalf("scenario %q: error %# v carries no Kind", name, pretty.Formatter(err))
				}
				return kind.String()
			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

// runCorruptionScenario builds the named scenario's file and returns
// whatever error Validate reports (nil for the one deliberately-valid case).
func runCorruptionScenario(t *testing.T, name string) error {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.zss")

	switch name {
	case "bad-magic":
		buildSimpleValidFile(t, path)
		corruptByte(t, path, 0, 'Q')

	case "truncated-file":
		buildSimpleValidFile(t, path)
		truncateLastByte(t, path)

	case "header-crc":
		buildSimpleValidFile(t, path)
		corruptRange(t, path, 28, 8)

	case "incomplete-magic":
		buildSimpleValidFile(t, path)
		overwriteMagic(t, path, magicIncomplete)

	case "bad-data-order":
		b := newRawBuilder(t)
		d := b.dataBlock("z", "a")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		b.finalize(path, root, "none", nil)

	case "bad-index-key-1":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "c")
		root := b.indexBlock(1, []string{"b"}, []block.Handle{d})
		b.finalize(path, root, "none", nil)

	case "good-index-key-1":
		b := newRawBuilder(t)
		d := b.dataBlock("b", "c")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		b.finalize(path, root, "none", nil)

	case "bad-index-key-3":
		b := newRawBuilder(t)
		d1 := b.dataBlock("a", "c")
		d2 := b.dataBlock("e", "g")
		idx1 := b.indexBlock(1, []string{"a", "e"}, []block.Handle{d1, d2})
		d3 := b.dataBlock("i", "k")
		d4 := b.dataBlock("m", "o")
		idx2 := b.indexBlock(1, []string{"i", "m"}, []block.Handle{d3, d4})
		root := b.indexBlock(2, []string{"a", "f"}, []block.Handle{idx1, idx2})
		b.finalize(path, root, "none", nil)

	case "unreferenced-index":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		orphan, err := block.PackIndex([][]byte{[]byte("x")}, []uint64{0}, []uint64{1}, 0)
		if err != nil {
			t.Fatal(err)
		}
		compressed, err := block.Compress(b.c, codec.Params{}, orphan)
		if err != nil {
			t.Fatal(err)
		}
		b.appendRaw(block.Frame(1, compressed))
		b.finalize(path, root, "none", nil)

	case "repeated-index":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		root := b.indexBlock(1, []string{"a", "a"}, []block.Handle{d, d})
		b.finalize(path, root, "none", nil)

	case "non-dict-metadata":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		b.finalize(path, root, "none", []byte(`"hi!"`))

	case "root-is-data":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		b.finalize(path, d, "none", nil)

	case "bad-codec":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		b.finalize(path, root, "XXX-bad-codec-XXX", nil)

	case "wrong-root-length":
		b := newRawBuilder(t)
		d := b.dataBlock("a", "b")
		root := b.indexBlock(1, []string{"a"}, []block.Handle{d})
		b.dataBlock("c", "d")
		root.Length++
		b.finalize(path, root, "none", nil)

	default:
		t.Fatalf("unknown scenario %q", name)
	}

	return Validate(path)
}

func corruptByte(t *testing.T, path string, offset int, b byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[offset] = b
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func corruptRange(t *testing.T, path string, offset, n int) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := offset; i < offset+n; i++ {
		data[i] ^= 0xff
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func truncateLastByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))
}

func overwriteMagic(t *testing.T, path, magic string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data[:magicLen], []byte(magic))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
