//go:build unix

package zss

import (
	"os"

	"golang.org/x/sys/unix"
)

// durableFlush flushes f's data and the changes to its size to stable
// storage. On unix this is fdatasync, which skips the metadata sync
// f.Sync() (fsync) would otherwise perform when only the file's contents
// changed — the header patch and magic flip both only rewrite existing
// bytes, never the file's length.
func durableFlush(f *os.File) error {
	for {
		err := unix.Fdatasync(int(f.Fd()))
		if err != unix.EINTR {
			return err
		}
	}
}
