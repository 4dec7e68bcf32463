package client

import (
	"fmt"
	"strings"

	"deps.dev/util/semver"
)

// anyVersion is what manifests record for a dependency with no constraint.
const anyVersion = "*"

// pickVersion returns the greatest of versions satisfying constraint.
//
// A constraint that is itself one of the versions is an exact pin.
// Prereleases are only chosen when the constraint is such a pin, or when
// the constraint matches nothing else.
func pickVersion(sys semver.System, constraint string, versions []string) (string, error) {
	constraint = strings.TrimSpace(constraint)
	for _, v := range versions {
		if v == constraint {
			return v, nil
		}
	}

	match := func(*semver.Version) bool { return true }
	if constraint != "" && constraint != anyVersion {
		c, err := sys.ParseConstraint(constraint)
		if err != nil {
			return "", fmt.Errorf("parsing constraint %q: %w", constraint, err)
		}
		match = c.MatchVersion
	}

	var best, bestPre *semver.Version
	var bestStr, bestPreStr string
	for _, v := range versions {
		parsed, err := sys.Parse(v)
		if err != nil || !match(parsed) {
			continue
		}

		if parsed.IsPrerelease() {
			if bestPre == nil || bestPre.Compare(parsed) < 0 {
				bestPre, bestPreStr = parsed, v
			}

			continue
		}

		if best == nil || best.Compare(parsed) < 0 {
			best, bestStr = parsed, v
		}
	}

	switch {
	case best != nil:
		return bestStr, nil
	case bestPre != nil:
		return bestPreStr, nil
	}

	return "", ErrNoMatchingVersion
}
