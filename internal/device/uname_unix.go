//go:build unix

package device

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// uname returns the kernel release and machine hardware name.
func uname() (release, machine string) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", runtime.GOARCH
	}
	return unix.ByteSliceToString(u.Release[:]), unix.ByteSliceToString(u.Machine[:])
}
