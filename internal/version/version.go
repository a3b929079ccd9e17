//nolint:gochecknoglobals // version info set via ldflags
package version

import (
	"runtime"

	"golang.org/x/mod/semver"
)

// These variables are intended to be set via -ldflags at build time.
// Example:
//
//	-X github.com/bavix/scanbridge/internal/version.Version=v1.2.3 \
//	-X github.com/bavix/scanbridge/internal/version.BuildTime=2026-10-01T12:00:00Z
var (
	Version   = "dev"
	BuildTime = ""
)

func GetVersion() string { return Version }

func GetBuildTime() string { return BuildTime }

// Canonical returns the build version as canonical semver ("1.2" becomes "v1.2.0").
// It returns "" for development builds and anything that is not semver.
func Canonical() string {
	return canonical(Version)
}

func canonical(v string) string {
	if v == "" {
		return ""
	}

	if v[0] != 'v' {
		v = "v" + v
	}

	return semver.Canonical(v)
}

// IsRelease reports whether the binary was stamped with a non-prerelease semver tag.
func IsRelease() bool {
	c := Canonical()

	return c != "" && semver.Prerelease(c) == ""
}

// UserAgent is sent on outbound HTTP requests.
func UserAgent() string {
	v := Canonical()
	if v == "" {
		v = Version
	}

	return "scanbridge/" + v + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// Info is the payload of the version endpoint and command.
type Info struct {
	Version   string `json:"version"`
	Canonical string `json:"canonical,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get collects build information.
func Get() Info {
	return Info{
		Version:   Version,
		Canonical: Canonical(),
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
