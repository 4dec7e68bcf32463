package depgraph

import (
	"slices"

	"github.com/depscan/depscan/pkg/models"
)

const noParent NodeID = -1

// effectiveRoots returns the declared roots, or when the format did not
// record any, every package that no other package depends on.
func (g *Graph) effectiveRoots() []root {
	if len(g.roots) > 0 {
		return slices.Clone(g.roots)
	}

	var roots []root
	for i, n := range g.nodes {
		if len(g.parents[i]) == 0 {
			roots = append(roots, root{id: NodeID(i), dev: n.devHint})
		}
	}

	return roots
}

// Dependencies flattens the graph into one dependency per node.
//
// Paths are discovered breadth first from the roots in declaration order, so
// each dependency keeps the first (and shortest) path that reaches it. Nodes
// that are unreachable from any root become roots of their own. A node is a
// dev dependency only if no prod root reaches it.
func (g *Graph) Dependencies() []models.Dependency {
	n := len(g.nodes)
	if n == 0 {
		return []models.Dependency{}
	}

	roots := g.effectiveRoots()
	visited := make([]bool, n)
	parent := make([]NodeID, n)
	order := make([]NodeID, 0, n)

	walk := func(start []root) {
		queue := make([]NodeID, 0, len(start))
		for _, r := range start {
			if visited[r.id] {
				continue
			}
			visited[r.id] = true
			parent[r.id] = noParent
			queue = append(queue, r.id)
			order = append(order, r.id)
		}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			for _, child := range g.children[cur] {
				if visited[child] {
					continue
				}
				visited[child] = true
				parent[child] = cur
				queue = append(queue, child)
				order = append(order, child)
			}
		}
	}

	walk(roots)

	for i := range n {
		if visited[i] {
			continue
		}
		orphan := root{id: NodeID(i), dev: g.nodes[i].devHint}
		roots = append(roots, orphan)
		walk([]root{orphan})
	}

	prod := g.reachable(roots, false)

	deps := make([]models.Dependency, 0, n)
	for _, id := range order {
		nd := g.nodes[id]
		path := g.pathTo(id, parent)

		deps = append(deps, models.Dependency{
			Ecosystem:  g.Ecosystem,
			Name:       nd.name,
			Version:    nd.version,
			Path:       path,
			IsDirect:   len(path) == 1,
			IsDev:      !prod[id],
			RequiredBy: g.requiredBy(id),
			Unresolved: nd.unresolved,
			Source:     g.Source,
		})
	}

	return deps
}

// reachable marks every node reachable from roots whose dev flag equals dev.
func (g *Graph) reachable(roots []root, dev bool) []bool {
	seen := make([]bool, len(g.nodes))
	var stack []NodeID

	for _, r := range roots {
		if r.dev == dev && !seen[r.id] {
			seen[r.id] = true
			stack = append(stack, r.id)
		}
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range g.children[cur] {
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}

	return seen
}

func (g *Graph) pathTo(id NodeID, parent []NodeID) []string {
	var path []string
	for cur := id; cur != noParent; cur = parent[cur] {
		path = append(path, g.nodes[cur].name)
	}
	slices.Reverse(path)

	return path
}

func (g *Graph) requiredBy(id NodeID) []string {
	if len(g.parents[id]) == 0 {
		return nil
	}

	names := make([]string, 0, len(g.parents[id]))
	for _, p := range g.parents[id] {
		names = append(names, g.nodes[p].name)
	}
	slices.Sort(names)

	return slices.Compact(names)
}

// Merge combines dependency lists from several sources, keeping one entry
// per identity key. The first occurrence keeps its path, parents are
// unioned, and an entry is only dev if it is dev everywhere.
func Merge(lists ...[]models.Dependency) []models.Dependency {
	merged := make([]models.Dependency, 0)
	index := make(map[models.PackageKey]int)

	for _, list := range lists {
		for _, dep := range list {
			i, ok := index[dep.Key()]
			if !ok {
				index[dep.Key()] = len(merged)
				dep.Path = slices.Clone(dep.Path)
				dep.RequiredBy = slices.Clone(dep.RequiredBy)
				dep.IsDirect = len(dep.Path) == 1
				merged = append(merged, dep)

				continue
			}

			existing := &merged[i]
			existing.IsDev = existing.IsDev && dep.IsDev
			existing.Unresolved = existing.Unresolved && dep.Unresolved
			if len(dep.RequiredBy) > 0 {
				existing.RequiredBy = append(existing.RequiredBy, dep.RequiredBy...)
				slices.Sort(existing.RequiredBy)
				existing.RequiredBy = slices.Compact(existing.RequiredBy)
			}
		}
	}

	return merged
}
