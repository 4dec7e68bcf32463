package client

import (
	"context"
	"strings"

	"deps.dev/util/semver"
	"github.com/depscan/depscan/internal/cachedregexp"
	"github.com/depscan/depscan/pkg/models"
)

// PyPIIndex is the release metadata source the PyPI resolver reads.
type PyPIIndex interface {
	Versions(ctx context.Context, name string) ([]string, error)
	RequiresDist(ctx context.Context, name, version string) ([]string, error)
}

// PyPIResolver resolves PEP 440 specifiers against the PyPI JSON API.
// Requirements only needed for an extra are skipped.
type PyPIResolver struct {
	Index PyPIIndex
}

func (r PyPIResolver) ResolveRange(ctx context.Context, _ models.Ecosystem, name, constraint string) (Resolved, error) {
	versions, err := r.Index.Versions(ctx, name)
	if err != nil {
		return Resolved{}, err
	}

	version, err := pickVersion(semver.PyPI, constraint, versions)
	if err != nil {
		return Resolved{}, err
	}

	dist, err := r.Index.RequiresDist(ctx, name, version)
	if err != nil {
		return Resolved{}, err
	}

	var reqs []Requirement
	for _, line := range dist {
		if req, ok := parseRequiresDist(line); ok {
			reqs = append(reqs, req)
		}
	}

	return Resolved{Version: version, Dependencies: sortRequirements(reqs)}, nil
}

const requiresDistPattern = `^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*\(?([^)]*)\)?\s*$`

// parseRequiresDist reads a PEP 508 requirement such as
// "idna (<4,>=2.5); python_version >= \"3\"".
func parseRequiresDist(line string) (Requirement, bool) {
	spec, marker, _ := strings.Cut(line, ";")
	if cachedregexp.MatchString(`\bextra\s*==`, marker) {
		return Requirement{}, false
	}

	// direct references are not on the index
	if strings.Contains(spec, "@") {
		return Requirement{}, false
	}

	m := cachedregexp.FindStringSubmatch(requiresDistPattern, spec)
	if m == nil {
		return Requirement{}, false
	}

	constraint := strings.ReplaceAll(strings.TrimSpace(m[2]), " ", "")
	if constraint == "" {
		constraint = anyVersion
	}

	return Requirement{Name: normalizePythonName(m[1]), Constraint: constraint}, true
}

// normalizePythonName normalizes a distribution name per PEP 503.
func normalizePythonName(name string) string {
	return strings.ToLower(cachedregexp.MustCompile(`[-_.]+`).ReplaceAllString(name, "-"))
}
