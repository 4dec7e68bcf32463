package lockfile

import "github.com/depscan/depscan/pkg/depgraph"

type exactVersionFunc func(constraint string) (string, bool)

// addManifestDependency declares a direct dependency from a manifest. Ranges
// are kept as the version of an unresolved node until a resolver pins them.
func addManifestDependency(g *depgraph.Graph, name, constraint string, exact exactVersionFunc, dev bool) {
	if v, ok := exact(constraint); ok {
		g.AddRoot(g.AddPackage(name, v), dev)

		return
	}

	id := g.AddPackage(name, orAnyVersion(constraint))
	g.MarkUnresolved(id)
	g.AddRoot(id, dev)
}
