//go:build !unix

package device

import "runtime"

func uname() (release, machine string) {
	return "", runtime.GOARCH
}
