package zss

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/copperloop/zss/internal/codec"
	"github.com/copperloop/zss/internal/zsserr"
)

// Framing selects how AddFileContents splits an incoming byte stream into
// records, per spec.md §4.6 item 2 and the framings original_source/zss's
// test suite exercises.
type Framing struct {
	// Terminator, if non-empty, splits the stream on this byte sequence
	// (e.g. "\n", "\x00", "\r\n"). Mutually exclusive with LengthPrefix.
	Terminator []byte

	// LengthPrefix, if non-empty, frames each record with a length prefix
	// instead of a terminator: "uleb128" or "u64le". Mutually exclusive
	// with Terminator.
	LengthPrefix string
}

// TerminatorFraming returns a Framing that splits on sep.
func TerminatorFraming(sep []byte) Framing {
	return Framing{Terminator: sep}
}

// LengthPrefixFraming returns a Framing that reads a "uleb128" or "u64le"
// length prefix before each record.
func LengthPrefixFraming(kind string) Framing {
	return Framing{LengthPrefix: kind}
}

func (f Framing) validate() error {
	hasTerm := len(f.Terminator) > 0
	hasLen := f.LengthPrefix != ""
	if hasTerm == hasLen {
		return zsserr.NewError(zsserr.KindFraming, "zss: exactly one of Terminator or LengthPrefix must be set")
	}
	if hasLen && f.LengthPrefix != "uleb128" && f.LengthPrefix != "u64le" {
		return zsserr.NewError(zsserr.KindFraming, "zss: unknown length-prefix kind %q", f.LengthPrefix)
	}
	return nil
}

// WriterOptions configures Create, per spec.md §6's option table.
type WriterOptions struct {
	// Metadata is stored verbatim (as a JSON object) in the header. Nil
	// means an empty object.
	Metadata map[string]interface{}

	// BranchingFactor is the maximum children per index block. Must be >= 2.
	BranchingFactor int

	// ApproxBlockSize is the soft target byte-size of each compressed data
	// block fed from AddFileContents.
	ApproxBlockSize int

	// Parallelism is the number of compressor workers. Must be >= 1.
	Parallelism int

	// Codec names the compression codec (must be registered).
	Codec string

	// CodecParams carries codec-specific settings, e.g. compression level.
	CodecParams codec.Params

	// UUID is stored verbatim in the header; a random UUID is generated if
	// this is the zero value.
	UUID [16]byte
}

// DefaultOptions returns sensible defaults: branching factor 32, a 64KiB
// soft block size, 4 compressor workers, and the "none" codec.
func DefaultOptions() WriterOptions {
	return WriterOptions{
		BranchingFactor: 32,
		ApproxBlockSize: 64 << 10,
		Parallelism:     4,
		Codec:           "none",
	}
}

func (o *WriterOptions) fillDefaultsAndValidate() (*codec.Codec, error) {
	if o.BranchingFactor == 0 {
		o.BranchingFactor = 32
	}
	if o.BranchingFactor < 2 {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: branching_factor must be >= 2, got %d", o.BranchingFactor)
	}
	if o.ApproxBlockSize == 0 {
		o.ApproxBlockSize = 64 << 10
	}
	if o.ApproxBlockSize < 1 {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: approx_block_size must be positive")
	}
	if o.Parallelism == 0 {
		o.Parallelism = 4
	}
	if o.Parallelism < 1 {
		return nil, zsserr.NewError(zsserr.KindFraming, "zss: parallelism must be >= 1, got %d", o.Parallelism)
	}
	if o.Codec == "" {
		o.Codec = "none"
	}
	c, err := codec.Lookup(o.Codec)
	if err != nil {
		return nil, err
	}
	var zero [16]byte
	if o.UUID == zero {
		id := uuid.New()
		copy(o.UUID[:], id[:])
	}
	return c, nil
}

func (o WriterOptions) marshalMetadata() (json.RawMessage, error) {
	m := o.Metadata
	if m == nil {
		m = map[string]interface{}{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, zsserr.WrapError(zsserr.KindMetadata, err, "zss: marshal metadata")
	}
	return raw, nil
}
