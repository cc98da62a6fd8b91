// Package version validates the image versions requested by job snapshots.
package version

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// Info is a parsed snapshot version.
type Info struct {
	Major uint64
	// Wildcard is set for the "N.*" form, which selects the latest minor.
	Wildcard bool
	Semver   *semver.Version
}

func (i Info) String() string {
	if i.Wildcard {
		return fmt.Sprintf("%d.*", i.Major)
	}
	return i.Semver.String()
}

var wildcardRegex = regexp.MustCompile(`^(\d+)\.\*$`)

// ParseSnapshot accepts "N.*" or a strict semantic version such as "1.2.3".
func ParseSnapshot(v string) (Info, error) {
	if match := wildcardRegex.FindStringSubmatch(v); match != nil {
		major, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return Info{}, fmt.Errorf("invalid snapshot version %q: %w", v, err)
		}
		return Info{Major: major, Wildcard: true}, nil
	}
	sv, err := semver.StrictNewVersion(v)
	if err != nil {
		return Info{}, fmt.Errorf("invalid snapshot version %q: expected 'major.*' or 'major.minor.patch'", v)
	}
	return Info{Major: sv.Major(), Semver: sv}, nil
}

// Satisfies reports whether actual is selected by the requested version.
func Satisfies(requested Info, actual string) bool {
	sv, err := semver.NewVersion(actual)
	if err != nil {
		return false
	}
	if requested.Wildcard {
		c, err := semver.NewConstraint(fmt.Sprintf("%d.x", requested.Major))
		if err != nil {
			return false
		}
		return c.Check(sv)
	}
	return requested.Semver.Equal(sv)
}
