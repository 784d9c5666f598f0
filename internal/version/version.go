// Package version resolves the version string the binary reports.
package version

import (
	"runtime/debug"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Dev is reported when neither ldflags nor module metadata carry a version.
const Dev = "dev"

var readBuildInfo = debug.ReadBuildInfo

// Resolve returns linked when the build set it, else the module version
// recorded by `go install`. Semantic versions are normalized to a "v" prefix.
func Resolve(linked string) string {
	v := strings.TrimSpace(linked)
	if v == "" || v == Dev {
		v = moduleVersion()
	}
	if v == "" {
		return Dev
	}
	if sv, err := semver.NewVersion(v); err == nil {
		return "v" + sv.String()
	}
	return v
}

func moduleVersion() string {
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return ""
	}
	return info.Main.Version
}
