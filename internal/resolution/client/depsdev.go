package client

import (
	"context"
	"fmt"
	"strings"

	pb "deps.dev/api/v3"
	"github.com/depscan/depscan/internal/depsdev"
	"github.com/depscan/depscan/internal/resolution/datasource"
	"github.com/depscan/depscan/pkg/models"
)

// DepsDevResolver resolves constraints using the versions deps.dev knows
// of, and reads the direct dependencies from its resolved graph.
type DepsDevResolver struct {
	Client datasource.InsightsClient
}

func (r DepsDevResolver) ResolveRange(ctx context.Context, ecosystem models.Ecosystem, name, constraint string) (Resolved, error) {
	system, ok := depsdev.System[ecosystem]
	if !ok {
		return Resolved{}, ErrUnsupportedEcosystem
	}

	pkg, err := r.Client.GetPackage(ctx, &pb.GetPackageRequest{
		PackageKey: &pb.PackageKey{System: system, Name: name},
	})
	if err != nil {
		return Resolved{}, fmt.Errorf("deps.dev GetPackage: %w", err)
	}

	versions := make([]string, 0, len(pkg.GetVersions()))
	for _, v := range pkg.GetVersions() {
		versions = append(versions, v.GetVersionKey().GetVersion())
	}

	// Go versions are recorded without the "v" deps.dev uses
	if ecosystem == models.EcosystemGo && constraint != "" && constraint != anyVersion && !strings.HasPrefix(constraint, "v") {
		constraint = "v" + constraint
	}

	version, err := pickVersion(depsdev.Semver[ecosystem], constraint, versions)
	if err != nil {
		return Resolved{}, err
	}

	graph, err := r.Client.GetDependencies(ctx, &pb.GetDependenciesRequest{
		VersionKey: &pb.VersionKey{System: system, Name: name, Version: version},
	})
	if err != nil {
		return Resolved{}, fmt.Errorf("deps.dev GetDependencies: %w", err)
	}

	// node 0 is the requested version; its out edges are its direct dependencies
	nodes := graph.GetNodes()
	var reqs []Requirement
	for _, e := range graph.GetEdges() {
		if e.GetFromNode() != 0 || int(e.GetToNode()) >= len(nodes) {
			continue
		}
		vk := nodes[e.GetToNode()].GetVersionKey()
		reqs = append(reqs, Requirement{Name: vk.GetName(), Constraint: trimGoVersion(ecosystem, vk.GetVersion())})
	}

	return Resolved{Version: trimGoVersion(ecosystem, version), Dependencies: sortRequirements(reqs)}, nil
}

func trimGoVersion(ecosystem models.Ecosystem, version string) string {
	if ecosystem == models.EcosystemGo {
		return strings.TrimPrefix(version, "v")
	}

	return version
}
