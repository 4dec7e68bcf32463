package lockfile

import (
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatPipfile models.Format = "Pipfile"

type pipfile struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

type PipfileParser struct{}

func (PipfileParser) Format() models.Format       { return FormatPipfile }
func (PipfileParser) Ecosystem() models.Ecosystem { return models.EcosystemPyPI }
func (PipfileParser) Kind() Kind                  { return KindManifest }

func (PipfileParser) MatchesFilename(name string) bool {
	return name == "Pipfile"
}

func (PipfileParser) Validate(content []byte) bool {
	var doc map[string]any
	if err := decodeTOML(content, &doc); err != nil {
		return false
	}

	return tomlTableHas(doc, "packages") || tomlTableHas(doc, "dev-packages")
}

func (p PipfileParser) Parse(content []byte) (*depgraph.Graph, error) {
	var manifest pipfile
	if err := decodeTOML(content, &manifest); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	add := func(packages map[string]any, dev bool) {
		for _, name := range sortedKeys(packages) {
			constraint, ok := tomlConstraint(packages[name])
			if !ok {
				continue
			}
			addManifestDependency(g, normalizePythonName(name), constraint, exactPythonVersion, dev)
		}
	}

	add(manifest.Packages, false)
	add(manifest.DevPackages, true)

	return g, nil
}

var _ Parser = PipfileParser{}

//nolint:gochecknoinits
func init() {
	Register(PipfileParser{})
}
