// Package sysinfo provides version and build-info reporting for `covert
// --version`.
package sysinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

var (
	// Version is the covert CLI version, set at build time via ldflags.
	// Example: go build -ldflags="-X github.com/postalsys/covert/internal/sysinfo.Version=1.0.0"
	Version = "dev"

	startTime     time.Time
	startTimeOnce sync.Once
)

func init() {
	startTimeOnce.Do(func() {
		startTime = time.Now()
	})

	if Version == "dev" {
		Version = enhanceDevVersion()
	}
}

// enhanceDevVersion adds git commit info to a "dev" version string using
// Go's build info. Returns formats like "dev-a1b2c3d", "dev-a1b2c3d-dirty",
// or "dev-<timestamp>" as a fallback when no VCS info is embedded.
func enhanceDevVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev-" + startTime.UTC().Format("20060102-150405")
	}

	var revision string
	var dirty bool

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}

	if revision == "" {
		return "dev-" + startTime.UTC().Format("20060102-150405")
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}

	if dirty {
		return "dev-" + revision + "-dirty"
	}
	return "dev-" + revision
}

// BuildInfo is a version/platform summary of the running binary.
type BuildInfo struct {
	Version string
	OS      string
	Arch    string
	GoVer   string
}

// Collect gathers the build info of the running binary.
func Collect() BuildInfo {
	return BuildInfo{
		Version: Version,
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		GoVer:   runtime.Version(),
	}
}

// String renders the build info the way `covert --version` prints it:
// "covert <version> (<os>/<arch>, <go version>)".
func (b BuildInfo) String() string {
	return "covert " + b.Version + " (" + b.OS + "/" + b.Arch + ", " + b.GoVer + ")"
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// Uptime returns the process uptime.
func Uptime() time.Duration {
	return time.Since(startTime)
}
