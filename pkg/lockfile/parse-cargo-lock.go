package lockfile

import (
	"bytes"
	"strings"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatCargoLock models.Format = "Cargo.lock"

type cargoLockPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Dependencies []string `toml:"dependencies"`
}

type cargoLockFile struct {
	Version  int                `toml:"version"`
	Packages []cargoLockPackage `toml:"package"`
	Metadata map[string]any     `toml:"metadata"`
}

type CargoLockParser struct{}

func (CargoLockParser) Format() models.Format       { return FormatCargoLock }
func (CargoLockParser) Ecosystem() models.Ecosystem { return models.EcosystemCratesIO }
func (CargoLockParser) Kind() Kind                  { return KindLockfile }

func (CargoLockParser) MatchesFilename(name string) bool {
	return name == "Cargo.lock"
}

func (CargoLockParser) Validate(content []byte) bool {
	var lock cargoLockFile
	if err := decodeTOML(content, &lock); err != nil {
		return false
	}

	if len(lock.Packages) == 0 {
		return false
	}
	if _, ok := lock.Metadata["content-hash"]; ok {
		return false
	}

	if lock.Version > 0 || bytes.Contains(content, []byte("@generated by Cargo")) {
		return true
	}

	for _, pkg := range lock.Packages {
		if strings.HasPrefix(pkg.Source, "registry+") || strings.HasPrefix(pkg.Source, "git+") {
			return true
		}
	}

	return false
}

// Parse treats packages without a source as the project's own workspace
// members; their dependencies are the roots of the graph.
func (p CargoLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	var lock cargoLockFile
	if err := decodeTOML(content, &lock); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	members := make(map[string]bool)

	for _, pkg := range lock.Packages {
		if pkg.Source == "" {
			members[pkg.Name] = true

			continue
		}
		g.AddPackage(pkg.Name, pkg.Version)
	}

	// references are "name", "name version" or "name version (source)"
	resolve := func(ref string) (depgraph.NodeID, bool) {
		fields := strings.Fields(ref)
		if len(fields) == 0 {
			return 0, false
		}
		if len(fields) >= 2 {
			return g.Lookup(fields[0], fields[1])
		}
		if ids := g.LookupName(fields[0]); len(ids) > 0 {
			return ids[0], true
		}

		return 0, false
	}

	for _, pkg := range lock.Packages {
		if members[pkg.Name] && pkg.Source == "" {
			for _, ref := range pkg.Dependencies {
				if to, ok := resolve(ref); ok {
					g.AddRoot(to, false)
				}
			}

			continue
		}

		from, ok := g.Lookup(pkg.Name, pkg.Version)
		if !ok {
			continue
		}
		for _, ref := range pkg.Dependencies {
			if to, ok := resolve(ref); ok {
				g.AddEdge(from, to)
			}
		}
	}

	return g, nil
}

var _ Parser = CargoLockParser{}

//nolint:gochecknoinits
func init() {
	Register(CargoLockParser{})
}
