package sysinfo

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	// Version should either be a release version (set via ldflags)
	// or an enhanced dev version (dev-<commit> or dev-<timestamp>)
	t.Logf("Version: %s", Version)

	if Version == "dev" {
		t.Error("Version should not be plain 'dev' - enhanceDevVersion should have been called")
	}

	// Check valid version formats
	validFormats := []string{
		"dev-",   // Enhanced dev version (dev-abc1234, dev-abc1234-dirty, dev-20060102-150405)
		"v",      // Release version (v1.0.0)
		"latest", // Latest tag
	}

	hasValidFormat := false
	for _, prefix := range validFormats {
		if strings.HasPrefix(Version, prefix) {
			hasValidFormat = true
			break
		}
	}

	if !hasValidFormat {
		t.Errorf("Version %q has unexpected format", Version)
	}
}

func TestEnhanceDevVersion(t *testing.T) {
	version := enhanceDevVersion()
	t.Logf("Enhanced dev version: %s", version)

	if !strings.HasPrefix(version, "dev-") {
		t.Errorf("Enhanced version %q should start with 'dev-'", version)
	}

	// Should have something after "dev-"
	suffix := strings.TrimPrefix(version, "dev-")
	if suffix == "" {
		t.Error("Enhanced version should have content after 'dev-'")
	}
}

func TestCollect(t *testing.T) {
	info := Collect()

	if info.Version != Version {
		t.Errorf("Collect().Version = %s, want %s", info.Version, Version)
	}
	if info.OS == "" {
		t.Error("Collect().OS is empty")
	}
	if info.Arch == "" {
		t.Error("Collect().Arch is empty")
	}
	if !strings.HasPrefix(info.GoVer, "go") {
		t.Errorf("Collect().GoVer = %s, want a go1.x-style version", info.GoVer)
	}
}

func TestBuildInfoString(t *testing.T) {
	info := BuildInfo{Version: "v1.2.3", OS: "linux", Arch: "amd64", GoVer: "go1.22.0"}
	want := "covert v1.2.3 (linux/amd64, go1.22.0)"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestUptimeIsNonNegative(t *testing.T) {
	if Uptime() < 0 {
		t.Error("Uptime() returned a negative duration")
	}
	if StartTime().IsZero() {
		t.Error("StartTime() returned the zero Time")
	}
}
