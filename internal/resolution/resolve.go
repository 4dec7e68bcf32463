// Package resolution turns a set of manifests and lockfiles into a single
// deduplicated dependency list, picking the most reliable source per
// ecosystem and expanding manifests into transitive trees.
package resolution

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/resolution/client"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/lockfile"
	"github.com/depscan/depscan/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxDepth    = 12
	DefaultCallTimeout = 30 * time.Second
)

// Resolver orchestrates parsing and range resolution.
type Resolver struct {
	// Ranges expands manifests into transitive trees. Nil disables expansion.
	Ranges client.RangeResolver
	// MaxDepth bounds how deep an expanded tree may go.
	MaxDepth int
	// CallTimeout bounds each call to Ranges.
	CallTimeout time.Duration
	// OnDetected, if set, is called after each source is classified, with
	// FormatUnknown for sources that were skipped.
	OnDetected func(filename string, format models.Format, done, total int)
}

// Result of resolving a set of sources.
type Result struct {
	Dependencies []models.Dependency
	Warnings     []models.Warning
	// Partial is set when some part of a tree could not be resolved.
	Partial bool
}

type candidate struct {
	source   models.ManifestSource
	parser   lockfile.Parser
	priority int
}

type ecosystemResult struct {
	deps     []models.Dependency
	warnings []models.Warning
	partial  bool
}

// Resolve parses the sources, choosing one source of truth per ecosystem,
// and merges the ecosystems into one dependency list.
//
// Problems with individual sources are reported as warnings. The only error
// returned is the context's, alongside whatever was resolved before it ended.
func (r *Resolver) Resolve(ctx context.Context, sources []models.ManifestSource, opts models.ScanOptions) (Result, error) {
	var res Result

	groups, order := make(map[models.Ecosystem][]candidate), []models.Ecosystem(nil)
	for i, src := range sources {
		c, err := classify(src)
		if r.OnDetected != nil {
			format := models.FormatUnknown
			if err == nil {
				format = c.parser.Format()
			}
			r.OnDetected(src.Filename, format, i+1, len(sources))
		}
		if err != nil {
			cmdlogger.Warnf("Skipping %s: %v", src.Filename, err)
			res.Warnings = append(res.Warnings, models.Warning{
				Kind:    models.WarningUnknownFormat,
				Source:  src.Filename,
				Message: err.Error(),
			})

			continue
		}

		eco := c.parser.Ecosystem()
		if _, ok := groups[eco]; !ok {
			order = append(order, eco)
		}
		groups[eco] = append(groups[eco], c)
	}

	results := make([]ecosystemResult, len(order))
	var g errgroup.Group
	for i, eco := range order {
		g.Go(func() error {
			results[i] = r.resolveEcosystem(ctx, groups[eco], opts)

			return nil
		})
	}
	_ = g.Wait()

	lists := make([][]models.Dependency, 0, len(results))
	for _, er := range results {
		lists = append(lists, er.deps)
		res.Warnings = append(res.Warnings, er.warnings...)
		res.Partial = res.Partial || er.partial
	}
	res.Dependencies = depgraph.Merge(lists...)

	if err := ctx.Err(); err != nil {
		res.Partial = true

		return res, err
	}

	return res, nil
}

// classify finds the parser for a source, trusting a format tag when one
// is given.
func classify(src models.ManifestSource) (candidate, error) {
	var p lockfile.Parser
	if src.Format != models.FormatUnknown {
		known, ok := lockfile.Get(src.Format)
		if !ok {
			return candidate{}, fmt.Errorf("%q: %w", src.Format, lockfile.ErrUnknownFormat)
		}
		p = known
	} else {
		detected, err := lockfile.DetectParser(src.Filename, src.Content)
		if err != nil {
			return candidate{}, err
		}
		p = detected
	}

	priority := src.Priority
	if priority <= models.PriorityUnknown {
		priority = p.Kind().Priority()
	}

	return candidate{source: src, parser: p, priority: priority}, nil
}

func (r *Resolver) resolveEcosystem(ctx context.Context, candidates []candidate, opts models.ScanOptions) ecosystemResult {
	var res ecosystemResult

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.priority, a.priority)
	})

	chosen := -1
	var graph *depgraph.Graph
	for i, c := range candidates {
		parsed, err := lockfile.Parse(c.parser, c.source.Filename, c.source.Content)
		if err != nil {
			cmdlogger.Warnf("%v", err)
			res.warnings = append(res.warnings, parseWarning(c, err))

			continue
		}
		chosen, graph = i, parsed

		break
	}

	if graph == nil {
		return res
	}

	top := candidates[chosen]
	if top.parser.Kind() == lockfile.KindLockfile && (!graph.HasRoots() || !graph.HasDevInfo) {
		res.warnings = append(res.warnings, applyHints(graph, candidates[chosen+1:])...)
	}

	if top.parser.Kind() == lockfile.KindManifest && opts.ResolveTransitive && r.Ranges != nil && expandable(top.parser.Format()) {
		expanded, warnings, partial := r.expand(ctx, graph)
		graph = expanded
		res.warnings = append(res.warnings, warnings...)
		res.partial = partial
	}

	res.deps = graph.Dependencies()

	return res
}

// expandable reports whether a manifest format lacks transitive data.
// go.mod already lists every module in the build.
func expandable(format models.Format) bool {
	return format != lockfile.FormatGoMod
}

// applyHints reads the direct dependencies of the first lower-priority
// manifest that parses, to declare roots or dev scopes the lockfile omits.
func applyHints(graph *depgraph.Graph, rest []candidate) []models.Warning {
	var warnings []models.Warning
	for _, c := range rest {
		if c.parser.Kind() != lockfile.KindManifest {
			continue
		}

		direct, err := lockfile.ParseDependencies(c.parser, c.source.Filename, c.source.Content)
		if err != nil {
			warnings = append(warnings, parseWarning(c, err))

			continue
		}

		if !graph.HasRoots() {
			graph.ApplyManifest(direct)
		}
		if !graph.HasDevInfo {
			graph.ApplyDevHints(direct)
		}

		break
	}

	return warnings
}

func parseWarning(c candidate, err error) models.Warning {
	return models.Warning{Kind: models.WarningParse, Source: c.source.Filename, Message: err.Error()}
}
