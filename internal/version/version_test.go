package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
	if got := Read().Version; got != "v1.2.3" {
		t.Fatalf("expected build version in info, got %q", got)
	}
}

func TestPseudoFromBuildInfo(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	if got := pseudoFromBuildInfo(info); got != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected pseudo version %q", got)
	}
	if pseudoFromBuildInfo(nil) != "" {
		t.Fatalf("expected empty version for nil build info")
	}
	if pseudoFromBuildInfo(&debug.BuildInfo{}) != "" {
		t.Fatalf("expected empty version without vcs stamps")
	}
}

func TestInfoString(t *testing.T) {
	got := Info{Module: "m", Version: "v1", GoVersion: "go1.25", Revision: "abc", Dirty: true}.String()
	if !strings.Contains(got, "m v1 (go1.25)") || !strings.HasSuffix(got, "rev abc dirty") {
		t.Fatalf("unexpected info string %q", got)
	}
}
