//go:build windows

package walk

import "io/fs"

// EnsureReadable is a no-op on Windows: ACLs don't map to POSIX permission
// bits, so the proactive check is skipped and the first read(2)-equivalent
// failure surfaces the error instead.
func EnsureReadable(_ string, _ fs.FileInfo) error {
	return nil
}

// fileOwner has no POSIX uid/gid to report on Windows.
func fileOwner(_ fs.FileInfo) (uint32, uint32) {
	return 0, 0
}
