//go:build !unix

package zss

import "os"

// durableFlush falls back to a full fsync on platforms without a cheaper
// data-only sync primitive.
func durableFlush(f *os.File) error {
	return f.Sync()
}
