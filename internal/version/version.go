package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "github.com/miguelbarbosa0221/automatizacao-plantao-sub000"

// buildVersion is set with -ldflags "-X <module>/internal/version.buildVersion=v1.2.3".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Module    string
	Version   string
	Revision  string
	Dirty     bool
	GoVersion string
}

func (i Info) String() string {
	out := fmt.Sprintf("%s %s (%s)", i.Module, i.Version, i.GoVersion)
	if i.Revision != "" {
		out += " rev " + i.Revision
	}
	if i.Dirty {
		out += " dirty"
	}
	return out
}

// Read collects version details from build info.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	out := Info{
		Module:    moduleFrom(info),
		Version:   versionFrom(info),
		GoVersion: runtime.Version(),
	}
	if info != nil {
		vcs := readVCS(info)
		out.Revision = shortRevision(vcs.revision)
		out.Dirty = vcs.modified
	}
	return out
}

// Current returns the best available version string.
func Current() string {
	info, _ := debug.ReadBuildInfo()
	return versionFrom(info)
}

func moduleFrom(info *debug.BuildInfo) string {
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

func versionFrom(info *debug.BuildInfo) string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return strings.TrimSuffix(v, "+dirty")
	}
	if info != nil {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return strings.TrimSuffix(v, "+dirty")
		}
		if v := pseudoFromBuildInfo(info); v != "" {
			return v
		}
	}
	return "v0.0.0-unknown"
}

type vcsInfo struct {
	revision string
	time     string
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var vcs vcsInfo
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcs.revision = setting.Value
		case "vcs.time":
			vcs.time = setting.Value
		case "vcs.modified":
			vcs.modified = setting.Value == "true"
		}
	}
	return vcs
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// pseudoFromBuildInfo builds a Go pseudo-version from VCS stamps.
func pseudoFromBuildInfo(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	vcs := readVCS(info)
	if vcs.revision == "" || vcs.time == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcs.time)
	if err != nil {
		return ""
	}
	return "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + shortRevision(vcs.revision)
}
