// Package zsserr defines the single Kind-tagged error category used across
// every package in this module (spec.md §7), so the top-level zss package
// and its internal/* helpers can all raise and recognize the same errors.
package zsserr

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies every error this module returns, per spec.md §7. All
// errors are fatal to the operation that produced them; there is no retry
// policy.
type Kind int

const (
	// KindExists means the writer's target path already exists.
	KindExists Kind = iota
	// KindCodec means an unknown codec name, or a codec raised while
	// compressing or decompressing.
	KindCodec
	// KindFraming means a ULEB128 encoding was malformed, or was cut off
	// inside a block payload or an input stream (a block length prefix cut
	// off by the end of the file is KindTruncatedFile), a header-length
	// field didn't match, or a length-prefixed record was cut off.
	KindFraming
	// KindTruncatedFile means the file ended inside the header or before a
	// complete block.
	KindTruncatedFile
	// KindBadMagic means the first 8 bytes matched neither magic value.
	KindBadMagic
	// KindIncompleteFile means the magic is the incomplete-magic.
	KindIncompleteFile
	// KindCRC means a header or block CRC-32C check failed.
	KindCRC
	// KindMetadata means the header's metadata didn't parse as a JSON
	// object.
	KindMetadata
	// KindSortViolation means records or index spans were found out of
	// order, within a block or across blocks.
	KindSortViolation
	// KindIndexBounds means invariant (C) or (G) was violated.
	KindIndexBounds
	// KindLevel means invariant (L) was violated: a child's level didn't
	// match its parent's level minus one, or the root was a data block.
	KindLevel
	// KindUnreferencedBlock means invariant (R) was violated: a block in
	// the stream was never reached from the root.
	KindUnreferencedBlock
	// KindDoubleReference means invariant (R) was violated the other way:
	// a block was reached from the root more than once.
	KindDoubleReference
	// KindSizeMismatch means invariant (S) was violated: a block's
	// recorded length didn't match its actual on-disk length.
	KindSizeMismatch
	// KindEmpty means the writer finished having written no records.
	KindEmpty
	// KindClosed means an operation was attempted on a closed writer.
	KindClosed
	// KindHeaderLength means the finalized header payload's encoded length
	// differed from the placeholder's.
	KindHeaderLength
)

func (k Kind) String() string {
	switch k {
	case KindExists:
		return "exists"
	case KindCodec:
		return "codec"
	case KindFraming:
		return "framing"
	case KindTruncatedFile:
		return "truncated-file"
	case KindBadMagic:
		return "bad-magic"
	case KindIncompleteFile:
		return "incomplete-file"
	case KindCRC:
		return "crc"
	case KindMetadata:
		return "metadata"
	case KindSortViolation:
		return "sort-violation"
	case KindIndexBounds:
		return "index-bounds"
	case KindLevel:
		return "level"
	case KindUnreferencedBlock:
		return "unref-block"
	case KindDoubleReference:
		return "double-ref"
	case KindSizeMismatch:
		return "size-mismatch"
	case KindEmpty:
		return "empty"
	case KindClosed:
		return "closed"
	case KindHeaderLength:
		return "header-length"
	default:
		return "unknown"
	}
}

// sentinels, one per Kind, so callers can do errors.Is(err, zsserr.ErrClosed)
// the way pebble callers do errors.Is(err, base.ErrCorruption).
var (
	ErrExists            = errors.New("zss: file already exists")
	ErrCodec             = errors.New("zss: codec error")
	ErrFraming           = errors.New("zss: framing error")
	ErrTruncatedFile     = errors.New("zss: truncated file")
	ErrBadMagic          = errors.New("zss: bad magic")
	ErrIncompleteFile    = errors.New("zss: incomplete file")
	ErrCRC               = errors.New("zss: crc mismatch")
	ErrMetadata          = errors.New("zss: invalid metadata")
	ErrSortViolation     = errors.New("zss: sort violation")
	ErrIndexBounds       = errors.New("zss: index bounds violation")
	ErrLevel             = errors.New("zss: level violation")
	ErrUnreferencedBlock = errors.New("zss: unreferenced block")
	ErrDoubleReference   = errors.New("zss: block referenced twice")
	ErrSizeMismatch      = errors.New("zss: size mismatch")
	ErrEmpty             = errors.New("zss: empty file")
	ErrClosed            = errors.New("zss: writer is closed")
	ErrHeaderLength      = errors.New("zss: header length changed")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindExists:
		return ErrExists
	case KindCodec:
		return ErrCodec
	case KindFraming:
		return ErrFraming
	case KindTruncatedFile:
		return ErrTruncatedFile
	case KindBadMagic:
		return ErrBadMagic
	case KindIncompleteFile:
		return ErrIncompleteFile
	case KindCRC:
		return ErrCRC
	case KindMetadata:
		return ErrMetadata
	case KindSortViolation:
		return ErrSortViolation
	case KindIndexBounds:
		return ErrIndexBounds
	case KindLevel:
		return ErrLevel
	case KindUnreferencedBlock:
		return ErrUnreferencedBlock
	case KindDoubleReference:
		return ErrDoubleReference
	case KindSizeMismatch:
		return ErrSizeMismatch
	case KindEmpty:
		return ErrEmpty
	case KindClosed:
		return ErrClosed
	case KindHeaderLength:
		return ErrHeaderLength
	default:
		return errors.New("zss: error")
	}
}

// Error is the single error category spec.md §7 calls for: every failure
// this module returns carries a Kind, distinguishing causes without a zoo
// of Go error types.
type Error struct {
	kind  Kind
	cause error
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string { return e.cause.Error() }

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a Kind-tagged error, marked against that kind's sentinel
// so errors.Is(err, zsserr.ErrXxx) works through any amount of wrapping.
func NewError(kind Kind, format string, args ...interface{}) error {
	wrapped := errors.Mark(errors.Newf(format, args...), sentinelFor(kind))
	return &Error{kind: kind, cause: wrapped}
}

// WrapError marks an externally-produced error (e.g. an *os.PathError)
// against the given kind's sentinel, preserving the original cause.
func WrapError(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Mark(errors.Wrapf(err, format, args...), sentinelFor(kind))
	return &Error{kind: kind, cause: wrapped}
}

// KindOf returns the Kind of err if it (or something it wraps) is a
// *zsserr.Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}
