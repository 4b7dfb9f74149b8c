package device

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatform(t *testing.T) {
	assert.Equal(t, "mac_osx", Platform("darwin"))
	assert.Equal(t, "linux", Platform("linux"))
	assert.Equal(t, "windows", Platform("windows"))
}

func TestOSVersion(t *testing.T) {
	assert.Equal(t, "linux 6.8.0", OSVersion("linux", "6.8.0-45-generic"))
	assert.Equal(t, "linux 5.15", OSVersion("linux", "5.15"))
	assert.Equal(t, "windows 0.0.0", OSVersion("windows", ""))
}

func TestDetect(t *testing.T) {
	info := Detect("/tmp/beacon")

	assert.Equal(t, Platform(runtime.GOOS), info.Platform)
	assert.True(t, strings.HasPrefix(info.OSVersion, info.Platform+" "))
	assert.Equal(t, SDKVersion, info.SDKVersion)
	assert.Equal(t, "/tmp/beacon", info.WritablePath)
	assert.NotEmpty(t, info.Model)
}
