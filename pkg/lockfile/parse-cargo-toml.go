package lockfile

import (
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatCargoTOML models.Format = "Cargo.toml"

type cargoTarget struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

type cargoTOML struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`

	Package   map[string]any `toml:"package"`
	Workspace *struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
	Target map[string]cargoTarget `toml:"target"`
}

type CargoTOMLParser struct{}

func (CargoTOMLParser) Format() models.Format       { return FormatCargoTOML }
func (CargoTOMLParser) Ecosystem() models.Ecosystem { return models.EcosystemCratesIO }
func (CargoTOMLParser) Kind() Kind                  { return KindManifest }

func (CargoTOMLParser) MatchesFilename(name string) bool {
	return name == "Cargo.toml"
}

func (CargoTOMLParser) Validate(content []byte) bool {
	var doc map[string]any
	if err := decodeTOML(content, &doc); err != nil {
		return false
	}

	// a Cargo.lock has an array of [[package]] tables instead
	if _, ok := doc["package"].(map[string]any); ok {
		return true
	}

	return tomlTableHas(doc, "workspace")
}

func (p CargoTOMLParser) Parse(content []byte) (*depgraph.Graph, error) {
	var manifest cargoTOML
	if err := decodeTOML(content, &manifest); err != nil {
		return nil, err
	}

	var workspaceDeps map[string]any
	if manifest.Workspace != nil {
		workspaceDeps = manifest.Workspace.Dependencies
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	add := func(deps map[string]any, dev bool) {
		for _, key := range sortedKeys(deps) {
			entry := deps[key]
			name := key

			if table, ok := entry.(map[string]any); ok {
				if inherited, _ := table["workspace"].(bool); inherited {
					if ws, ok := workspaceDeps[key]; ok {
						entry = ws
					}
				}
				if table, ok := entry.(map[string]any); ok {
					if renamed, ok := table["package"].(string); ok {
						name = renamed
					}
				}
			}

			constraint, ok := tomlConstraint(entry)
			if !ok {
				continue
			}
			addManifestDependency(g, name, constraint, exactCargoVersion, dev)
		}
	}

	targets := []cargoTarget{{
		Dependencies:      manifest.Dependencies,
		DevDependencies:   manifest.DevDependencies,
		BuildDependencies: manifest.BuildDependencies,
	}}
	for _, key := range sortedKeys(manifest.Target) {
		targets = append(targets, manifest.Target[key])
	}

	for _, target := range targets {
		add(target.Dependencies, false)
		add(target.BuildDependencies, false)
		add(target.DevDependencies, true)
	}

	// a virtual workspace manifest declares shared dependencies only
	if manifest.Package == nil {
		add(workspaceDeps, false)
	}

	return g, nil
}

var _ Parser = CargoTOMLParser{}

//nolint:gochecknoinits
func init() {
	Register(CargoTOMLParser{})
}
