// Package depsdev holds the deps.dev endpoint and ecosystem mappings.
package depsdev

import (
	depsdevpb "deps.dev/api/v3"
	"deps.dev/util/semver"
	"github.com/depscan/depscan/pkg/models"
)

// DepsdevAPI is the gRPC address of the deps.dev API, documented at
// docs.deps.dev/api.
const DepsdevAPI = "api.deps.dev:443"

// System maps an ecosystem to its deps.dev system.
var System = map[models.Ecosystem]depsdevpb.System{
	models.EcosystemNPM:      depsdevpb.System_NPM,
	models.EcosystemCratesIO: depsdevpb.System_CARGO,
	models.EcosystemGo:       depsdevpb.System_GO,
	models.EcosystemPyPI:     depsdevpb.System_PYPI,
}

// Semver maps an ecosystem to the version grammar its constraints use.
var Semver = map[models.Ecosystem]semver.System{
	models.EcosystemNPM:      semver.NPM,
	models.EcosystemCratesIO: semver.Cargo,
	models.EcosystemGo:       semver.Go,
	models.EcosystemPyPI:     semver.PyPI,
}
