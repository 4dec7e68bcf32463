package lockfile

import (
	"encoding/json"
	"path"
	"strings"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
	"github.com/tidwall/gjson"
)

const FormatNpmLock models.Format = "package-lock.json"

type npmLockDependency struct {
	// For an aliased package, Version is like "npm:[name]@[version]"
	Version      string                       `json:"version"`
	Dependencies map[string]npmLockDependency `json:"dependencies,omitempty"`
	Requires     map[string]string            `json:"requires,omitempty"`

	Dev bool `json:"dev,omitempty"`
}

type npmLockPackage struct {
	// For an aliased package, Name is the real package name
	Name    string `json:"name"`
	Version string `json:"version"`

	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`

	Dev  bool `json:"dev,omitempty"`
	Link bool `json:"link,omitempty"`
}

type npmLockfile struct {
	Version int `json:"lockfileVersion"`
	// npm v1- lockfiles use "dependencies"
	Dependencies map[string]npmLockDependency `json:"dependencies,omitempty"`
	// npm v2+ lockfiles use "packages"
	Packages map[string]npmLockPackage `json:"packages,omitempty"`
}

type NpmLockParser struct{}

func (NpmLockParser) Format() models.Format       { return FormatNpmLock }
func (NpmLockParser) Ecosystem() models.Ecosystem { return models.EcosystemNPM }
func (NpmLockParser) Kind() Kind                  { return KindLockfile }

func (NpmLockParser) MatchesFilename(name string) bool {
	return name == "package-lock.json" || name == "npm-shrinkwrap.json"
}

func (NpmLockParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}

	return gjson.GetBytes(content, "lockfileVersion").Type == gjson.Number
}

func (p NpmLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	var lockfile npmLockfile
	if err := json.Unmarshal(content, &lockfile); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	if lockfile.Packages != nil {
		parseNpmLockPackages(g, lockfile.Packages)
	} else {
		parseNpmLockDependencies(g, lockfile.Dependencies)
	}

	return g, nil
}

func extractNpmPackageName(name string) string {
	maybeScope := path.Base(path.Dir(name))
	pkgName := path.Base(name)

	if strings.HasPrefix(maybeScope, "@") {
		pkgName = maybeScope + "/" + pkgName
	}

	return pkgName
}

// resolveNpmPackagePath mirrors node's module resolution: a package looks
// for its dependencies in its own node_modules, then in each ancestor's.
func resolveNpmPackagePath(packages map[string]npmLockPackage, from, name string) (string, bool) {
	dir := from
	for {
		candidate := "node_modules/" + name
		if dir != "" {
			candidate = dir + "/node_modules/" + name
		}

		if _, ok := packages[candidate]; ok {
			return candidate, true
		}

		if dir == "" {
			return "", false
		}

		i := strings.LastIndex(dir, "node_modules/")
		if i <= 0 {
			dir = ""
		} else {
			dir = strings.TrimSuffix(dir[:i], "/")
		}
	}
}

func parseNpmLockPackages(g *depgraph.Graph, packages map[string]npmLockPackage) {
	ids := make(map[string]depgraph.NodeID, len(packages))

	for _, namePath := range sortedKeys(packages) {
		detail := packages[namePath]

		// the root project, workspace members and links are not installed packages
		if namePath == "" || detail.Link || !strings.Contains(namePath, "node_modules/") {
			continue
		}
		if detail.Version == "" {
			continue
		}

		name := detail.Name
		if name == "" {
			name = extractNpmPackageName(namePath)
		}

		id := g.AddPackage(name, detail.Version)
		g.SetDevHint(id, detail.Dev)
		ids[namePath] = id
	}

	link := func(from string, deps map[string]string, addTo func(depgraph.NodeID)) {
		for _, depName := range sortedKeys(deps) {
			target, ok := resolveNpmPackagePath(packages, from, depName)
			if !ok {
				continue
			}
			if id, ok := ids[target]; ok {
				addTo(id)
			}
		}
	}

	for _, namePath := range sortedKeys(ids) {
		from := ids[namePath]
		detail := packages[namePath]
		addEdge := func(to depgraph.NodeID) { g.AddEdge(from, to) }

		link(namePath, detail.Dependencies, addEdge)
		link(namePath, detail.OptionalDependencies, addEdge)
	}

	if root, ok := packages[""]; ok {
		link("", root.Dependencies, func(id depgraph.NodeID) { g.AddRoot(id, false) })
		link("", root.OptionalDependencies, func(id depgraph.NodeID) { g.AddRoot(id, false) })
		link("", root.DevDependencies, func(id depgraph.NodeID) { g.AddRoot(id, true) })
	}
}

type npmV1Scope struct {
	parent *npmV1Scope
	ids    map[string]depgraph.NodeID
}

func (s *npmV1Scope) resolve(name string) (depgraph.NodeID, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if id, ok := cur.ids[name]; ok {
			return id, true
		}
	}

	return 0, false
}

func npmV1NameAndVersion(name, version string) (string, string, bool) {
	if rest, ok := strings.CutPrefix(version, "npm:"); ok {
		i := strings.LastIndex(rest, "@")
		if i <= 0 {
			return "", "", false
		}
		name, version = rest[:i], rest[i+1:]
	}

	// file:, git and tarball dependencies have no registry version
	if version == "" || strings.Contains(version, ":") {
		return "", "", false
	}

	return name, version, true
}

// parseNpmLockDependencies handles v1 lockfiles, where packages are nested by
// install location and link to each other only through "requires".
func parseNpmLockDependencies(g *depgraph.Graph, dependencies map[string]npmLockDependency) {
	type pending struct {
		id       depgraph.NodeID
		scope    *npmV1Scope
		requires map[string]string
	}

	var edges []pending

	var walk func(deps map[string]npmLockDependency, parent *npmV1Scope) *npmV1Scope
	walk = func(deps map[string]npmLockDependency, parent *npmV1Scope) *npmV1Scope {
		scope := &npmV1Scope{parent: parent, ids: make(map[string]depgraph.NodeID, len(deps))}

		for _, key := range sortedKeys(deps) {
			detail := deps[key]

			name, version, ok := npmV1NameAndVersion(key, detail.Version)
			if !ok {
				continue
			}

			id := g.AddPackage(name, version)
			g.SetDevHint(id, detail.Dev)
			scope.ids[key] = id
		}

		for _, key := range sortedKeys(deps) {
			id, ok := scope.ids[key]
			if !ok {
				continue
			}

			detail := deps[key]
			own := scope
			if len(detail.Dependencies) > 0 {
				own = walk(detail.Dependencies, scope)
			}

			edges = append(edges, pending{id: id, scope: own, requires: detail.Requires})
		}

		return scope
	}

	walk(dependencies, nil)

	for _, e := range edges {
		for _, name := range sortedKeys(e.requires) {
			if to, ok := e.scope.resolve(name); ok {
				g.AddEdge(e.id, to)
			}
		}
	}
}

var _ Parser = NpmLockParser{}

//nolint:gochecknoinits
func init() {
	Register(NpmLockParser{})
}
