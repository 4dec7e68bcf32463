package client

import (
	"context"
	"strings"

	"deps.dev/util/semver"
	"github.com/depscan/depscan/internal/resolution/datasource"
	"github.com/depscan/depscan/pkg/models"
)

// NpmRegistry is the packument source the npm resolver reads.
type NpmRegistry interface {
	Package(ctx context.Context, name string) (datasource.NpmPackageDetails, error)
}

// NpmResolver resolves npm ranges against registry packuments, honouring
// dist-tags. Like npm, it prefers the "latest" tag when that satisfies the range.
type NpmResolver struct {
	Registry NpmRegistry
}

func (r NpmResolver) ResolveRange(ctx context.Context, _ models.Ecosystem, name, constraint string) (Resolved, error) {
	details, err := r.Registry.Package(ctx, name)
	if err != nil {
		return Resolved{}, err
	}

	version, err := npmPick(details, constraint)
	if err != nil {
		return Resolved{}, err
	}

	deps := details.Versions[version]
	var reqs []Requirement
	for _, m := range []map[string]string{deps.Dependencies, deps.OptionalDependencies} {
		for depName, spec := range m {
			if req, ok := npmRequirement(depName, spec); ok {
				reqs = append(reqs, req)
			}
		}
	}

	return Resolved{Version: version, Dependencies: sortRequirements(reqs)}, nil
}

func npmPick(details datasource.NpmPackageDetails, constraint string) (string, error) {
	constraint = strings.TrimSpace(constraint)
	if tagged, ok := details.Tags[constraint]; ok {
		return tagged, nil
	}

	versions := make([]string, 0, len(details.Versions))
	for v := range details.Versions {
		versions = append(versions, v)
	}

	if latest, ok := details.Tags["latest"]; ok {
		if _, published := details.Versions[latest]; published && npmSatisfies(constraint, latest) {
			return latest, nil
		}
	}

	return pickVersion(semver.NPM, constraint, versions)
}

func npmSatisfies(constraint, version string) bool {
	if constraint == "" || constraint == anyVersion || constraint == version {
		return true
	}

	c, err := semver.NPM.ParseConstraint(constraint)
	if err != nil {
		return false
	}

	return c.Match(version)
}

// npmRequirement drops dependencies that are not fetched from a registry
// and unwraps "npm:" aliases.
func npmRequirement(name, spec string) (Requirement, bool) {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(spec, "npm:"); ok {
		i := strings.LastIndex(rest, "@")
		if i <= 0 {
			return Requirement{Name: rest, Constraint: anyVersion}, true
		}

		return Requirement{Name: rest[:i], Constraint: rest[i+1:]}, true
	}

	if strings.Contains(spec, ":") || strings.Contains(spec, "/") {
		return Requirement{}, false
	}
	if spec == "" {
		spec = anyVersion
	}

	return Requirement{Name: name, Constraint: spec}, true
}
