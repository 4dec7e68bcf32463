// Package depscan is the entry point for scanning dependency manifests and
// lockfiles for known vulnerabilities.
package depscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/config"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/internal/osvmatcher"
	"github.com/depscan/depscan/internal/report"
	"github.com/depscan/depscan/internal/resolution"
	"github.com/depscan/depscan/internal/resolution/client"
	"github.com/depscan/depscan/internal/resolution/datasource"
	"github.com/depscan/depscan/internal/version"
	"github.com/depscan/depscan/internal/vulncache"
	"github.com/depscan/depscan/pkg/models"
	"golang.org/x/time/rate"
)

// ErrInvalidScanRequest is returned before any work is done when the request
// cannot be scanned at all, such as when no sources are given.
var ErrInvalidScanRequest = errors.New("invalid scan request")

// ErrVulnerabilitiesFound can be returned by callers that want a failing
// status when a report has unsuppressed vulnerabilities.
var ErrVulnerabilitiesFound = errors.New("vulnerabilities found")

type Phase string

const (
	PhaseDetecting  Phase = "detecting"
	PhaseResolving  Phase = "resolving"
	PhaseScanning   Phase = "scanning"
	PhaseAssembling Phase = "assembling"
)

// ProgressFunc is called synchronously at phase boundaries and after every
// query batch. percent never decreases during a scan.
type ProgressFunc func(phase Phase, percent int, message string)

// Percentages reported at the start of each phase; scanning fills the range
// up to assemblingStart as batches complete.
const (
	detectingStart  = 0
	resolvingStart  = 10
	scanningStart   = 30
	assemblingStart = 95
)

// Scanner holds the long-lived pieces of a scan: the resolver, and the
// matcher with its shared cache and rate limiter. A Scanner is safe for
// concurrent use.
type Scanner struct {
	Resolver *resolution.Resolver
	Matcher  *osvmatcher.Matcher

	closer io.Closer
}

// New builds a Scanner from cfg. m may be nil.
func New(cfg config.Config, m *metrics.Metrics) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{}

	var store vulncache.Store
	switch cfg.Cache.Backend {
	case config.CacheBackendSQLite:
		sqlite, err := vulncache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		if n, err := sqlite.PurgeExpired(context.Background()); err != nil {
			cmdlogger.Warnf("Failed to purge expired cache entries: %v", err)
		} else if n > 0 {
			cmdlogger.Debugf("Purged %d expired cache entries", n)
		}
		store = sqlite
		s.closer = sqlite
	default:
		store = vulncache.NewMemoryStore()
	}

	osvClient := osvdev.DefaultClient()
	osvClient.BaseHostURL = cfg.OSV.APIURL
	osvClient.Config.MaxRetryAttempts = cfg.OSV.MaxRetries
	osvClient.Config.BackoffDurationMultiplier = cfg.OSV.BackoffMultiplier
	osvClient.Config.MaxRetryAfter = cfg.OSV.MaxRetryAfter.Duration
	osvClient.Metrics = m
	if cfg.OSV.RequestsPerSecond > 0 {
		osvClient.Limiter = rate.NewLimiter(rate.Limit(cfg.OSV.RequestsPerSecond), cfg.OSV.Burst)
	}

	s.Matcher = &osvmatcher.Matcher{
		Client: osvClient,
		Cache:  store,
		Config: osvmatcher.Config{
			BatchSize:             cfg.OSV.BatchSize,
			MaxConcurrentBatches:  cfg.OSV.MaxConcurrentBatches,
			MaxConcurrentRequests: cfg.OSV.MaxConcurrentRequests,
			CallTimeout:           cfg.OSV.Timeout.Duration,
			CacheTTL:              cfg.Cache.TTL.Duration,
		},
		Metrics: m,
	}

	s.Resolver = &resolution.Resolver{
		MaxDepth:    cfg.Resolution.MaxDepth,
		CallTimeout: cfg.Resolution.Timeout.Duration,
	}
	if cfg.Resolution.Enabled {
		ranges, err := newDispatcher(cfg.Resolution, m)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Resolver.Ranges = ranges
	}

	return s, nil
}

func newDispatcher(cfg config.Resolution, m *metrics.Metrics) (*client.Dispatcher, error) {
	hc := &http.Client{Timeout: cfg.Timeout.Duration}

	npm, err := datasource.NewNpmRegistryAPIClient(cfg.NpmrcDir, cfg.NpmRegistry, hc)
	if err != nil {
		return nil, fmt.Errorf("failed to load npm registry config: %w", err)
	}

	insights, err := datasource.NewDepsDevAPIClient(cfg.DepsDevAddr, "depscan/"+version.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to deps.dev: %w", err)
	}

	d := client.NewDispatcher()
	d.Metrics = m
	d.Register(&client.NpmResolver{Registry: npm}, models.EcosystemNPM)
	d.Register(&client.PyPIResolver{Index: datasource.NewPyPIAPIClient(cfg.PyPIURL, hc)}, models.EcosystemPyPI)
	d.Register(&client.DepsDevResolver{Client: insights}, models.EcosystemCratesIO, models.EcosystemGo)

	return d, nil
}

// Close releases the cache store, if it holds any resources.
func (s *Scanner) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}

// Scan runs one scan over sources.
//
// Non-fatal problems are returned as warnings on the report. When ctx is
// cancelled the report built so far is returned, flagged as partial, along
// with ctx.Err().
func (s *Scanner) Scan(ctx context.Context, sources []models.ManifestSource, opts models.ScanOptions, progress ProgressFunc) (models.Report, error) {
	if len(sources) == 0 {
		return models.Report{}, fmt.Errorf("%w: no sources given", ErrInvalidScanRequest)
	}
	if progress == nil {
		progress = func(Phase, int, string) {}
	}

	progress(PhaseDetecting, detectingStart, fmt.Sprintf("Detecting formats of %d %s", len(sources), plural(len(sources), "file", "files")))

	// the resolver and matcher are shared, so per-scan progress goes on copies
	resolver := *s.Resolver
	resolver.OnDetected = func(filename string, format models.Format, done, total int) {
		msg := fmt.Sprintf("Skipped %s", filename)
		if format != models.FormatUnknown {
			msg = fmt.Sprintf("Detected %s as %s", filename, format)
		}
		progress(PhaseDetecting, detectingStart+(resolvingStart-detectingStart)*done/total, msg)

		if done == total {
			progress(PhaseResolving, resolvingStart, "Resolving dependencies")
		}
	}

	resolved, err := resolver.Resolve(ctx, sources, opts)
	warnings := resolved.Warnings
	partial := resolved.Partial

	if err != nil {
		r := report.Assemble(resolved.Dependencies, nil, opts)
		r.Warnings = warnings
		r.Partial = true

		return r, err
	}

	scanned := resolved.Dependencies
	if !opts.IncludeDevDependencies {
		scanned = withoutDev(scanned)
	}

	progress(PhaseScanning, scanningStart, fmt.Sprintf("Scanning %d %s", len(scanned), plural(len(scanned), "package", "packages")))

	matcher := *s.Matcher
	var mu sync.Mutex
	last := scanningStart
	matcher.OnBatch = func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		pct := scanningStart + (assemblingStart-scanningStart)*done/max(total, 1)
		last = max(last, pct)
		progress(PhaseScanning, last, fmt.Sprintf("Finished batch %d of %d", done, total))
	}

	matched := matcher.Match(ctx, scanned)
	warnings = append(warnings, matched.Warnings...)

	progress(PhaseAssembling, assemblingStart, "Assembling report")
	r := report.Assemble(resolved.Dependencies, matched.Matches, opts)
	r.Warnings = warnings
	r.Incomplete = matched.Incomplete
	r.Partial = partial || len(matched.Incomplete) > 0 || ctx.Err() != nil
	progress(PhaseAssembling, 100, report.Summary(r))

	return r, ctx.Err()
}

func withoutDev(deps []models.Dependency) []models.Dependency {
	kept := make([]models.Dependency, 0, len(deps))
	for _, dep := range deps {
		if !dep.IsDev {
			kept = append(kept, dep)
		}
	}

	return kept
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}

var defaultScanner = sync.OnceValues(func() (*Scanner, error) {
	return New(config.Default(), nil)
})

// RunScan scans sources using the default configuration. The in-memory
// vulnerability cache and the rate limiter are shared across calls.
func RunScan(ctx context.Context, sources []models.ManifestSource, opts models.ScanOptions, progress ProgressFunc) (models.Report, error) {
	if len(sources) == 0 {
		return models.Report{}, fmt.Errorf("%w: no sources given", ErrInvalidScanRequest)
	}

	s, err := defaultScanner()
	if err != nil {
		return models.Report{}, err
	}

	return s.Scan(ctx, sources, opts, progress)
}
