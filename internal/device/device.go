// Package device describes the host the pipeline runs on. The values end
// up in every event's annotations and in the init request.
package device

import (
	"regexp"
	"runtime"
)

// SDKVersion identifies this client to the collector.
const SDKVersion = "beacon 0.3.0"

// Info is an immutable snapshot of the host.
type Info struct {
	Platform       string
	OSVersion      string
	Manufacturer   string
	Model          string
	SDKVersion     string
	EngineVersion  string
	ConnectionType string
	WritablePath   string
}

var versionRe = regexp.MustCompile(`^\d+(\.\d+){0,2}`)

// Detect probes the running host. writablePath is where the store lives.
func Detect(writablePath string) Info {
	platform := Platform(runtime.GOOS)
	release, machine := uname()

	return Info{
		Platform:       platform,
		OSVersion:      OSVersion(platform, release),
		Manufacturer:   "unknown",
		Model:          machine,
		SDKVersion:     SDKVersion,
		ConnectionType: "lan",
		WritablePath:   writablePath,
	}
}

// Platform maps a GOOS value to the collector's platform names.
func Platform(goos string) string {
	switch goos {
	case "darwin":
		return "mac_osx"
	case "ios":
		return "ios"
	case "android":
		return "android"
	default:
		return goos
	}
}

// OSVersion formats "<platform> <major.minor.patch>", keeping only the
// numeric prefix of the kernel release. An unreadable release yields
// "<platform> 0.0.0".
func OSVersion(platform, release string) string {
	v := versionRe.FindString(release)
	if v == "" {
		v = "0.0.0"
	}
	return platform + " " + v
}
