package buildinfo

import "github.com/coreos/go-semver/semver"

// Version is set at build time via -ldflags.
var Version = "dev"

// Commit is set at build time via -ldflags.
var Commit = "unknown"

// Date is set at build time via -ldflags.
var Date = "unknown"

// fallback is reported when Version is not a semantic version.
const fallback = "0.0.0-dev"

// Short returns a compact build identifier for UI/logging.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// SemVer parses Version, tolerating a leading "v". Unparseable versions
// report 0.0.0-dev.
func SemVer() semver.Version {
	s := Version
	if len(s) > 0 && s[0] == 'v' {
		s = s[1:]
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return *semver.New(fallback)
	}
	return *v
}
