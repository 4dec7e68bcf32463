package lockfile

import (
	"bytes"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatPoetryLock models.Format = "poetry.lock"

type poetryLockPackageSource struct {
	Type string `toml:"type"`
}

type poetryLockPackage struct {
	Name         string                  `toml:"name"`
	Version      string                  `toml:"version"`
	Category     string                  `toml:"category"`
	Dependencies map[string]any          `toml:"dependencies"`
	Source       poetryLockPackageSource `toml:"source"`
}

type poetryLockFile struct {
	Packages []poetryLockPackage `toml:"package"`
	Metadata map[string]any      `toml:"metadata"`
}

type PoetryLockParser struct{}

func (PoetryLockParser) Format() models.Format       { return FormatPoetryLock }
func (PoetryLockParser) Ecosystem() models.Ecosystem { return models.EcosystemPyPI }
func (PoetryLockParser) Kind() Kind                  { return KindLockfile }

func (PoetryLockParser) MatchesFilename(name string) bool {
	return name == "poetry.lock"
}

func isPoetryLock(lock poetryLockFile) bool {
	_, hasHash := lock.Metadata["content-hash"]
	_, hasLockVersion := lock.Metadata["lock-version"]

	return hasHash || hasLockVersion
}

func (PoetryLockParser) Validate(content []byte) bool {
	var lock poetryLockFile
	if err := decodeTOML(content, &lock); err != nil {
		return false
	}

	return isPoetryLock(lock) || bytes.Contains(content, []byte("@generated by Poetry"))
}

// Parse links packages by name, since a poetry.lock holds a single version
// of each package. Roots are not recorded.
func (p PoetryLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	var lock poetryLockFile
	if err := decodeTOML(content, &lock); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	ids := make(map[string]depgraph.NodeID, len(lock.Packages))
	nodes := make([]depgraph.NodeID, len(lock.Packages))
	included := make([]bool, len(lock.Packages))

	for i, pkg := range lock.Packages {
		if pkg.Name == "" || pkg.Version == "" || pkg.Source.Type == "directory" {
			continue
		}

		name := normalizePythonName(pkg.Name)
		nodes[i] = g.AddPackage(name, pkg.Version)
		included[i] = true

		if pkg.Category != "" {
			g.HasDevInfo = true
			g.SetDevHint(nodes[i], pkg.Category == "dev")
		}

		if _, ok := ids[name]; !ok {
			ids[name] = nodes[i]
		}
	}

	for i, pkg := range lock.Packages {
		if !included[i] {
			continue
		}

		for _, depName := range sortedKeys(pkg.Dependencies) {
			if to, ok := ids[normalizePythonName(depName)]; ok {
				g.AddEdge(nodes[i], to)
			}
		}
	}

	return g, nil
}

var _ Parser = PoetryLockParser{}

//nolint:gochecknoinits
func init() {
	Register(PoetryLockParser{})
}
