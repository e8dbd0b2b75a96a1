//go:build !windows

package walk

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"
)

// EnsureReadable fails fast when this process would be denied read access
// to path, so a permission problem surfaces before the file enters the
// chunker pipeline instead of as a read error buried mid-chunk. Exactly
// one POSIX permission class applies to a process, so the check reduces
// to picking that class and testing its read bit. Files without Stat_t
// ownership data skip the check; the eventual open reports any failure.
func EnsureReadable(path string, info fs.FileInfo) error {
	if info == nil {
		var err error
		info, err = os.Stat(path)
		if err != nil {
			return err
		}
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	readBit := fs.FileMode(0o004) // other
	switch {
	case int(stat.Uid) == os.Geteuid():
		readBit = 0o400
	case processInGroup(int(stat.Gid)):
		readBit = 0o040
	}

	if info.Mode().Perm()&readBit == 0 {
		return fmt.Errorf("%s is not readable by this process (mode %v)", path, info.Mode().Perm())
	}
	return nil
}

// processInGroup reports whether gid is the process's effective group or
// one of its supplementary groups. A Getgroups failure counts as "not a
// member": the check then falls through to the other-class read bit,
// which is the weaker (safer) claim.
func processInGroup(gid int) bool {
	if gid == os.Getegid() {
		return true
	}
	groups, err := syscall.Getgroups()
	if err != nil {
		return false
	}
	for _, g := range groups {
		if g == gid {
			return true
		}
	}
	return false
}

// fileOwner returns the uid/gid recorded for info, or zeros when the
// platform stat data is unavailable.
func fileOwner(info fs.FileInfo) (uint32, uint32) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return uint32(stat.Uid), uint32(stat.Gid)
}
