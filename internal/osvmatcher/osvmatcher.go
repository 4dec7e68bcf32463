// Package osvmatcher correlates resolved dependencies with the
// vulnerabilities osv.dev knows about.
package osvmatcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/internal/vulncache"
	"github.com/depscan/depscan/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Client is the part of the osv.dev API the matcher needs.
type Client interface {
	QueryBatchWithPaging(ctx context.Context, queries []*osvdev.Query) (*osvdev.BatchedResponse, error)
	GetVulnByID(ctx context.Context, id string) (*osvdev.Vulnerability, error)
}

type Config struct {
	// BatchSize is the most packages sent in one query batch. It is capped
	// at osvdev.MaxQueriesPerQueryBatchRequest.
	BatchSize             int
	MaxConcurrentBatches  int
	MaxConcurrentRequests int
	// CallTimeout bounds each batch query and each detail query,
	// retries included.
	CallTimeout time.Duration
	CacheTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:             osvdev.MaxQueriesPerQueryBatchRequest,
		MaxConcurrentBatches:  4,
		MaxConcurrentRequests: 25,
		CallTimeout:           2 * time.Minute,
		CacheTTL:              6 * time.Hour,
	}
}

// Matcher runs the correlation for a set of dependencies. The cache and the
// client (with its rate limiter) are shared by every call to Match.
type Matcher struct {
	Client  Client
	Cache   vulncache.Store
	Config  Config
	Metrics *metrics.Metrics
	// OnBatch, when set, is called after each query batch finishes.
	OnBatch func(done, total int)
}

// Result is the outcome of a Match call.
type Result struct {
	Matches []models.VulnerabilityMatch
	// Incomplete lists the packages whose lookup did not finish.
	Incomplete []models.PackageKey
	Warnings   []models.Warning
}

type lookup struct {
	key   models.PackageKey
	dep   models.Dependency
	vulns []models.Vulnerability
	done  bool
}

// Match looks up every unique package. Failures of individual batches or
// detail queries never fail the call: the packages involved are reported as
// incomplete instead. Once ctx is cancelled no further batch is started;
// batches already running finish and are still cached.
func (m *Matcher) Match(ctx context.Context, deps []models.Dependency) Result {
	var res result

	lookups := m.dedupe(deps, &res)
	misses := m.checkCache(ctx, lookups, &res)

	batchSize := m.Config.BatchSize
	if batchSize <= 0 || batchSize > osvdev.MaxQueriesPerQueryBatchRequest {
		batchSize = osvdev.MaxQueriesPerQueryBatchRequest
	}
	batches := chunkBy(misses, batchSize)

	hydrate := newHydrator(m.Client, int64(max(1, m.Config.MaxConcurrentRequests)), m.withCallTimeout)
	// in-flight work outlives cancellation of the scan
	workCtx := context.WithoutCancel(ctx)

	var (
		progressMu sync.Mutex
		finished   int
	)

	var g errgroup.Group
	g.SetLimit(max(1, m.Config.MaxConcurrentBatches))

	for i, batch := range batches {
		if ctx.Err() != nil {
			m.abandon(batches[i:], &res, ctx.Err())
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				m.abandon([][]*lookup{batch}, &res, ctx.Err())
				return nil
			}

			complete := m.runBatch(workCtx, batch, hydrate, &res)
			m.Metrics.Batch(complete)

			progressMu.Lock()
			finished++
			done := finished
			progressMu.Unlock()

			if m.OnBatch != nil {
				m.OnBatch(done, len(batches))
			}

			return nil
		})
	}
	_ = g.Wait()

	return res.build(lookups)
}

// dedupe keeps the first dependency seen for every identity key and sets
// aside the ones that cannot be queried.
func (m *Matcher) dedupe(deps []models.Dependency, res *result) []*lookup {
	seen := make(map[models.PackageKey]bool, len(deps))
	lookups := make([]*lookup, 0, len(deps))

	for _, dep := range deps {
		key := dep.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		if dep.Unresolved || dep.Version == "" {
			res.incomplete(key)
			res.warn(models.Warning{
				Kind:    models.WarningUnresolved,
				Source:  dep.Source,
				Message: fmt.Sprintf("%s %s has no exact version and was not scanned", dep.Name, dep.Version),
			})

			continue
		}

		lookups = append(lookups, &lookup{key: key, dep: dep})
	}

	slices.SortFunc(lookups, func(a, b *lookup) int {
		return cmp.Compare(a.key.String(), b.key.String())
	})

	return lookups
}

func (m *Matcher) checkCache(ctx context.Context, lookups []*lookup, res *result) []*lookup {
	if m.Cache == nil {
		return lookups
	}

	misses := make([]*lookup, 0, len(lookups))
	var cacheErrs int
	var firstErr error

	for _, l := range lookups {
		vulns, ok, err := m.Cache.Get(ctx, l.key)
		switch {
		case err != nil:
			m.Metrics.CacheError()
			cacheErrs++
			if firstErr == nil {
				firstErr = err
			}
			misses = append(misses, l)
		case ok:
			m.Metrics.CacheHit()
			l.vulns = vulns
			l.done = true
		default:
			m.Metrics.CacheMiss()
			misses = append(misses, l)
		}
	}

	if cacheErrs > 0 {
		cmdlogger.Warnf("Failed to read %d entries from the vulnerability cache: %v", cacheErrs, firstErr)
		res.warn(models.Warning{
			Kind:    models.WarningCache,
			Message: fmt.Sprintf("%d cache reads failed and were treated as misses: %v", cacheErrs, firstErr),
		})
	}

	return misses
}

// runBatch queries one batch, hydrates the IDs it returned and writes the
// completed packages back to the cache. It reports whether every package in
// the batch completed.
func (m *Matcher) runBatch(ctx context.Context, batch []*lookup, hydrate *hydrator, res *result) bool {
	queries := make([]*osvdev.Query, len(batch))
	for i, l := range batch {
		queries[i] = &osvdev.Query{
			Package: osvdev.Package{
				Name:      l.key.Name,
				Ecosystem: string(l.key.Ecosystem),
			},
			Version: l.key.Version,
		}
	}

	callCtx, cancel := m.withCallTimeout(ctx)
	resp, err := m.Client.QueryBatchWithPaging(callCtx, queries)
	cancel()

	var pagingErr *osvdev.ErrDuringPaging
	if err != nil && !(errors.As(err, &pagingErr) && resp != nil) {
		cmdlogger.Warnf("Vulnerability query for %d packages failed: %v", len(batch), err)
		res.warn(models.Warning{
			Kind:    models.WarningNetwork,
			Message: fmt.Sprintf("querying %d packages failed: %v", len(batch), err),
		})
		for _, l := range batch {
			res.incomplete(l.key)
		}

		return false
	}
	if pagingErr != nil {
		res.warn(models.Warning{
			Kind:    models.WarningNetwork,
			Message: fmt.Sprintf("paging vulnerability results failed: %v", pagingErr),
		})
	}

	var wg sync.WaitGroup
	outcomes := make([]bool, len(batch))
	for i, l := range batch {
		r := resp.Results[i]
		if r.NextPageToken != "" {
			res.incomplete(l.key)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = m.hydrate(ctx, l, r.Vulns, hydrate, res)
		}()
	}
	wg.Wait()

	complete := pagingErr == nil
	for _, ok := range outcomes {
		complete = complete && ok
	}

	return complete
}

func (m *Matcher) hydrate(ctx context.Context, l *lookup, minimal []osvdev.MinimalVulnerability, hydrate *hydrator, res *result) bool {
	vulns := make([]models.Vulnerability, 0, len(minimal))
	seen := make(map[string]bool, len(minimal))

	for _, mv := range minimal {
		if seen[mv.ID] {
			continue
		}
		seen[mv.ID] = true

		v, err := hydrate.get(ctx, mv.ID)
		if err != nil {
			cmdlogger.Warnf("Failed to fetch details of %s: %v", mv.ID, err)
			res.warn(models.Warning{
				Kind:    models.WarningNetwork,
				Source:  l.key.String(),
				Message: fmt.Sprintf("fetching %s failed: %v", mv.ID, err),
			})
			res.incomplete(l.key)

			return false
		}
		vulns = append(vulns, v)
	}

	res.complete(l, vulns)

	if m.Cache != nil {
		if err := m.Cache.Set(ctx, l.key, vulns, m.Config.CacheTTL); err != nil {
			m.Metrics.CacheError()
			cmdlogger.Warnf("Failed to cache %s: %v", l.key, err)
			res.warn(models.Warning{
				Kind:    models.WarningCache,
				Source:  l.key.String(),
				Message: err.Error(),
			})
		}
	}

	return true
}

func (m *Matcher) abandon(batches [][]*lookup, res *result, cause error) {
	n := 0
	for _, batch := range batches {
		for _, l := range batch {
			res.incomplete(l.key)
			n++
		}
	}
	if n > 0 {
		res.warn(models.Warning{
			Kind:    models.WarningNetwork,
			Message: fmt.Sprintf("%d packages were not scanned: %v", n, cause),
		})
	}
}

func (m *Matcher) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, m.Config.CallTimeout)
}

// result collects outcomes from concurrent batches.
type result struct {
	mu       sync.Mutex
	incompl  map[models.PackageKey]bool
	warnings []models.Warning
}

func (r *result) incomplete(key models.PackageKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.incompl == nil {
		r.incompl = make(map[models.PackageKey]bool)
	}
	r.incompl[key] = true
}

func (r *result) complete(l *lookup, vulns []models.Vulnerability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.vulns = vulns
	l.done = true
}

func (r *result) warn(w models.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.warnings = append(r.warnings, w)
}

func (r *result) build(lookups []*lookup) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Result{Warnings: r.warnings}
	for _, l := range lookups {
		if !l.done {
			continue
		}
		for _, v := range l.vulns {
			out.Matches = append(out.Matches, models.VulnerabilityMatch{Dependency: l.dep, Vulnerability: v})
		}
	}

	for key := range r.incompl {
		out.Incomplete = append(out.Incomplete, key)
	}
	slices.SortFunc(out.Incomplete, func(a, b models.PackageKey) int {
		return cmp.Compare(a.String(), b.String())
	})

	return out
}

// From: https://stackoverflow.com/a/72408490
func chunkBy[T any](items []T, chunkSize int) [][]T {
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]T, 0, (len(items)/chunkSize)+1)
	for chunkSize < len(items) {
		items, chunks = items[chunkSize:], append(chunks, items[0:chunkSize:chunkSize])
	}

	return append(chunks, items)
}
