package zss

import "github.com/copperloop/zss/internal/zsserr"

// Kind classifies every error this package returns (spec.md §7). All errors
// are fatal to the operation that produced them; there is no retry policy.
type Kind = zsserr.Kind

const (
	KindExists            = zsserr.KindExists
	KindCodec             = zsserr.KindCodec
	KindFraming           = zsserr.KindFraming
	KindTruncatedFile     = zsserr.KindTruncatedFile
	KindBadMagic          = zsserr.KindBadMagic
	KindIncompleteFile    = zsserr.KindIncompleteFile
	KindCRC               = zsserr.KindCRC
	KindMetadata          = zsserr.KindMetadata
	KindSortViolation     = zsserr.KindSortViolation
	KindIndexBounds       = zsserr.KindIndexBounds
	KindLevel             = zsserr.KindLevel
	KindUnreferencedBlock = zsserr.KindUnreferencedBlock
	KindDoubleReference   = zsserr.KindDoubleReference
	KindSizeMismatch      = zsserr.KindSizeMismatch
	KindEmpty             = zsserr.KindEmpty
	KindClosed            = zsserr.KindClosed
	KindHeaderLength      = zsserr.KindHeaderLength
)

// Sentinel errors, one per Kind, for errors.Is(err, zss.ErrClosed) style
// checks through any amount of wrapping.
var (
	ErrExists            = zsserr.ErrExists
	ErrCodec             = zsserr.ErrCodec
	ErrFraming           = zsserr.ErrFraming
	ErrTruncatedFile     = zsserr.ErrTruncatedFile
	ErrBadMagic          = zsserr.ErrBadMagic
	ErrIncompleteFile    = zsserr.ErrIncompleteFile
	ErrCRC               = zsserr.ErrCRC
	ErrMetadata          = zsserr.ErrMetadata
	ErrSortViolation     = zsserr.ErrSortViolation
	ErrIndexBounds       = zsserr.ErrIndexBounds
	ErrLevel             = zsserr.ErrLevel
	ErrUnreferencedBlock = zsserr.ErrUnreferencedBlock
	ErrDoubleReference   = zsserr.ErrDoubleReference
	ErrSizeMismatch      = zsserr.ErrSizeMismatch
	ErrEmpty             = zsserr.ErrEmpty
	ErrClosed            = zsserr.ErrClosed
	ErrHeaderLength      = zsserr.ErrHeaderLength
)

// Error is the single error type every failure in this package carries.
type Error = zsserr.Error

// KindOf returns the Kind of err if it (or something it wraps) is a
// *zss.Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	return zsserr.KindOf(err)
}
