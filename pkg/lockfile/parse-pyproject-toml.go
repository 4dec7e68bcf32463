package lockfile

import (
	"strings"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatPyprojectTOML models.Format = "pyproject.toml"

type poetryGroup struct {
	Dependencies map[string]any `toml:"dependencies"`
}

type pyprojectTOML struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	// PEP 735 groups hold either requirement strings or {include-group = "..."} tables
	DependencyGroups map[string][]any `toml:"dependency-groups"`
	Tool             struct {
		Poetry struct {
			Dependencies    map[string]any         `toml:"dependencies"`
			DevDependencies map[string]any         `toml:"dev-dependencies"`
			Group           map[string]poetryGroup `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

type PyprojectTOMLParser struct{}

func (PyprojectTOMLParser) Format() models.Format       { return FormatPyprojectTOML }
func (PyprojectTOMLParser) Ecosystem() models.Ecosystem { return models.EcosystemPyPI }
func (PyprojectTOMLParser) Kind() Kind                  { return KindManifest }

func (PyprojectTOMLParser) MatchesFilename(name string) bool {
	return name == "pyproject.toml"
}

func (PyprojectTOMLParser) Validate(content []byte) bool {
	var doc map[string]any
	if err := decodeTOML(content, &doc); err != nil {
		return false
	}

	return tomlTableHas(doc, "project") ||
		tomlTableHas(doc, "tool.poetry") ||
		tomlTableHas(doc, "build-system") ||
		tomlTableHas(doc, "dependency-groups")
}

func (p PyprojectTOMLParser) Parse(content []byte) (*depgraph.Graph, error) {
	var manifest pyprojectTOML
	if err := decodeTOML(content, &manifest); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	addRequirements := func(requirements []string, dev bool) {
		for _, requirement := range requirements {
			name, specifier, ok := parseRequirement(requirement)
			if !ok {
				continue
			}
			addManifestDependency(g, name, specifier, exactPythonVersion, dev)
		}
	}

	addPoetry := func(deps map[string]any, dev bool) {
		for _, name := range sortedKeys(deps) {
			if strings.EqualFold(name, "python") {
				continue
			}

			constraint, ok := tomlConstraint(deps[name])
			if !ok {
				continue
			}
			addManifestDependency(g, normalizePythonName(name), constraint, exactPoetryVersion, dev)
		}
	}

	addRequirements(manifest.Project.Dependencies, false)
	for _, group := range sortedKeys(manifest.Project.OptionalDependencies) {
		addRequirements(manifest.Project.OptionalDependencies[group], false)
	}

	for _, group := range sortedKeys(manifest.DependencyGroups) {
		var requirements []string
		for _, entry := range manifest.DependencyGroups[group] {
			if s, ok := entry.(string); ok {
				requirements = append(requirements, s)
			}
		}
		addRequirements(requirements, true)
	}

	addPoetry(manifest.Tool.Poetry.Dependencies, false)
	addPoetry(manifest.Tool.Poetry.DevDependencies, true)
	for _, group := range sortedKeys(manifest.Tool.Poetry.Group) {
		addPoetry(manifest.Tool.Poetry.Group[group].Dependencies, group != "main")
	}

	return g, nil
}

var _ Parser = PyprojectTOMLParser{}

//nolint:gochecknoinits
func init() {
	Register(PyprojectTOMLParser{})
}
