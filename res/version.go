package res

import "golang.org/x/mod/semver"

// Version information for rescell.
const (
	// Version is the current version of the library.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides build information about the library.
type Info struct {
	// Version is the canonical semantic version, e.g. "v0.1.0".
	Version string

	// Strategy is the compiled cell strategy.
	Strategy string

	// Blocking reports whether conflicting borrows wait.
	Blocking bool
}

// GetInfo returns information about the compiled library.
//
// Example:
//
//	info := res.GetInfo()
//	fmt.Printf("rescell %s (%s)\n", info.Version, info.Strategy)
func GetInfo() Info {
	return Info{
		Version:  semver.Canonical("v" + Version),
		Strategy: Strategy,
		Blocking: Blocking,
	}
}

// Compatible reports whether a cell library of version v (with or without
// the leading "v") can be swapped for this one: same major version, and
// for v0 the same minor version.
func Compatible(v string) bool {
	if len(v) > 0 && v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	own := "v" + Version
	if semver.Major(own) != semver.Major(v) {
		return false
	}
	if semver.Major(own) == "v0" {
		return semver.MajorMinor(own) == semver.MajorMinor(v)
	}
	return true
}
