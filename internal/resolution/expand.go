package resolution

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/resolution/client"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

type resolution struct {
	res client.Resolved
	err error
}

// expander grows a manifest's direct dependencies into a full tree.
type expander struct {
	ranges   client.RangeResolver
	graph    *depgraph.Graph
	maxDepth int
	timeout  time.Duration

	// memo holds one answer per (name, constraint) for the whole tree
	memo map[client.Requirement]resolution
	// walkedAt is the shallowest depth each node had its requirements
	// added as edges at
	walkedAt map[depgraph.NodeID]int

	warnings  []models.Warning
	partial   bool
	truncated bool
}

// expand resolves each direct dependency of a parsed manifest and walks
// the requirements of the chosen versions depth first. A requirement that
// leads back to a package already on the current path gets its edge but is
// not walked again.
func (r *Resolver) expand(ctx context.Context, manifest *depgraph.Graph) (*depgraph.Graph, []models.Warning, bool) {
	g := depgraph.New(manifest.Ecosystem)
	g.Source = manifest.Source
	g.HasDevInfo = manifest.HasDevInfo

	e := &expander{
		ranges:   r.Ranges,
		graph:    g,
		maxDepth: cmp.Or(r.MaxDepth, DefaultMaxDepth),
		timeout:  cmp.Or(r.CallTimeout, DefaultCallTimeout),
		memo:     make(map[client.Requirement]resolution),
		walkedAt: make(map[depgraph.NodeID]int),
	}

	for _, dep := range manifest.Dependencies() {
		resolved, err := client.Resolved{}, ctx.Err()
		if err == nil {
			resolved, err = e.resolve(ctx, client.Requirement{Name: dep.Name, Constraint: dep.Version})
		}

		if err != nil {
			// keep the declared range as a placeholder
			e.partial = true
			id := g.AddPackage(dep.Name, dep.Version)
			if dep.Unresolved {
				g.MarkUnresolved(id)
			}
			g.AddRoot(id, dep.IsDev)

			continue
		}

		id := g.AddPackage(dep.Name, resolved.Version)
		g.AddRoot(id, dep.IsDev)
		e.walk(ctx, id, resolved, 1, map[depgraph.NodeID]bool{id: true})
	}

	return g, e.warnings, e.partial
}

func (e *expander) walk(ctx context.Context, id depgraph.NodeID, resolved client.Resolved, depth int, onPath map[depgraph.NodeID]bool) {
	if d, ok := e.walkedAt[id]; ok && d <= depth {
		return
	}

	if depth >= e.maxDepth && len(resolved.Dependencies) > 0 {
		e.partial = true
		if !e.truncated {
			e.truncated = true
			e.warn(e.graph.Source, fmt.Sprintf("dependency tree is deeper than %d levels; stopped expanding", e.maxDepth))
		}

		return
	}
	e.walkedAt[id] = depth

	for _, req := range resolved.Dependencies {
		if ctx.Err() != nil {
			e.partial = true

			return
		}

		child, err := e.resolve(ctx, req)
		if err != nil {
			placeholder := e.graph.AddPackage(req.Name, req.Constraint)
			e.graph.MarkUnresolved(placeholder)
			e.graph.AddEdge(id, placeholder)

			continue
		}

		childID := e.graph.AddPackage(req.Name, child.Version)
		e.graph.AddEdge(id, childID)

		if onPath[childID] {
			continue
		}

		onPath[childID] = true
		e.walk(ctx, childID, child, depth+1, onPath)
		delete(onPath, childID)
	}
}

// resolve asks the range resolver once per requirement, warning the first
// time a requirement fails.
func (e *expander) resolve(ctx context.Context, req client.Requirement) (client.Resolved, error) {
	if r, ok := e.memo[req]; ok {
		return r.res, r.err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	res, err := e.ranges.ResolveRange(callCtx, e.graph.Ecosystem, req.Name, req.Constraint)
	cancel()

	e.memo[req] = resolution{res: res, err: err}
	if err != nil {
		e.partial = true
		cmdlogger.Warnf("Could not resolve %s@%s: %v", req.Name, req.Constraint, err)
		e.warn(e.graph.Source, err.Error())
	}

	return res, err
}

func (e *expander) warn(source, msg string) {
	e.warnings = append(e.warnings, models.Warning{Kind: models.WarningResolution, Source: source, Message: msg})
}
