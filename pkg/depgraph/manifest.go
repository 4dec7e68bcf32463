package depgraph

import "github.com/depscan/depscan/pkg/models"

// ApplyManifest declares roots using the direct dependencies of a manifest,
// for lockfile formats that do not record which packages are direct.
//
// When a name is locked at several versions, the version nothing else
// depends on is preferred, falling back to the first one locked.
func (g *Graph) ApplyManifest(direct []models.Dependency) {
	for _, dep := range direct {
		if !dep.IsDirect {
			continue
		}

		ids := g.LookupName(dep.Name)
		if len(ids) == 0 {
			continue
		}

		chosen := ids[0]
		for _, id := range ids {
			if len(g.parents[id]) == 0 {
				chosen = id

				break
			}
		}

		g.AddRoot(chosen, dep.IsDev)
	}
}

// ApplyDevHints marks roots as dev when the manifest declares them only as
// development dependencies, for lockfiles that record roots but not scopes.
func (g *Graph) ApplyDevHints(direct []models.Dependency) {
	dev := make(map[string]bool)
	for _, dep := range direct {
		if !dep.IsDirect {
			continue
		}
		if prev, ok := dev[dep.Name]; ok {
			dev[dep.Name] = prev && dep.IsDev
		} else {
			dev[dep.Name] = dep.IsDev
		}
	}

	for i, r := range g.roots {
		if isDev, ok := dev[g.nodes[r.id].name]; ok {
			g.roots[i].dev = isDev
		}
	}

	g.HasDevInfo = true
}
