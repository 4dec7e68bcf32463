// Package config loads depscan.toml.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/internal/depsdev"
	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/internal/osvmatcher"
	"github.com/depscan/depscan/internal/resolution"
	"github.com/depscan/depscan/internal/resolution/datasource"
	"github.com/depscan/depscan/pkg/models"
)

var ConfigName = "depscan.toml"

const (
	CacheBackendMemory = "memory"
	CacheBackendSQLite = "sqlite"
)

type Config struct {
	OSV          OSV           `toml:"osv"`
	Cache        Cache         `toml:"cache"`
	Resolution   Resolution    `toml:"resolution"`
	Scan         Scan          `toml:"scan"`
	IgnoredVulns []IgnoreEntry `toml:"IgnoredVulns"`
	// The path the config was loaded from, empty for the defaults
	LoadPath string `toml:"-"`
}

type OSV struct {
	APIURL                string   `toml:"api-url"`
	BatchSize             int      `toml:"batch-size"`
	MaxConcurrentBatches  int      `toml:"max-concurrent-batches"`
	MaxConcurrentRequests int      `toml:"max-concurrent-requests"`
	MaxRetries            int      `toml:"max-retries"`
	BackoffMultiplier     float64  `toml:"backoff-multiplier"`
	MaxRetryAfter         Duration `toml:"max-retry-after"`
	Timeout               Duration `toml:"timeout"`
	// RequestsPerSecond of zero leaves requests unthrottled.
	RequestsPerSecond float64 `toml:"requests-per-second"`
	Burst             int     `toml:"burst"`
}

type Cache struct {
	Backend string   `toml:"backend"`
	Path    string   `toml:"path"`
	TTL     Duration `toml:"ttl"`
}

type Resolution struct {
	Enabled     bool     `toml:"enabled"`
	MaxDepth    int      `toml:"max-depth"`
	NpmRegistry string   `toml:"npm-registry"`
	// NpmrcDir is where a project .npmrc is looked for.
	NpmrcDir    string   `toml:"npmrc-dir"`
	PyPIURL     string   `toml:"pypi-url"`
	DepsDevAddr string   `toml:"depsdev-address"`
	Timeout     Duration `toml:"timeout"`
}

type Scan struct {
	IncludeDev       bool     `toml:"include-dev"`
	IgnoreSeverities []string `toml:"ignore-severities"`
}

type IgnoreEntry struct {
	ID          string    `toml:"id"`
	IgnoreUntil time.Time `toml:"ignoreUntil,omitempty"`
	Reason      string    `toml:"reason,omitempty"`
}

// Duration is a time.Duration written as a string such as "6h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for anything a file leaves out.
func Default() Config {
	osvDefaults := osvdev.DefaultConfig()

	return Config{
		OSV: OSV{
			APIURL:                osvdev.DefaultBaseURL,
			BatchSize:             osvdev.MaxQueriesPerQueryBatchRequest,
			MaxConcurrentBatches:  4,
			MaxConcurrentRequests: osvmatcher.DefaultConfig().MaxConcurrentRequests,
			MaxRetries:            osvDefaults.MaxRetryAttempts,
			BackoffMultiplier:     osvDefaults.BackoffDurationMultiplier,
			MaxRetryAfter:         Duration{osvDefaults.MaxRetryAfter},
			Timeout:               Duration{2 * time.Minute},
			RequestsPerSecond:     0,
			Burst:                 1,
		},
		Cache: Cache{
			Backend: CacheBackendMemory,
			TTL:     Duration{6 * time.Hour},
		},
		Resolution: Resolution{
			Enabled:     true,
			MaxDepth:    resolution.DefaultMaxDepth,
			PyPIURL:     datasource.DefaultPyPIURL,
			DepsDevAddr: depsdev.DepsdevAPI,
			Timeout:     Duration{resolution.DefaultCallTimeout},
		},
	}
}

// Validate rejects values that cannot be acted on.
func (c Config) Validate() error {
	var errs []error

	if c.OSV.APIURL == "" {
		errs = append(errs, errors.New("osv.api-url must be set"))
	}
	if c.OSV.BatchSize < 1 || c.OSV.BatchSize > osvdev.MaxQueriesPerQueryBatchRequest {
		errs = append(errs, fmt.Errorf("osv.batch-size must be between 1 and %d", osvdev.MaxQueriesPerQueryBatchRequest))
	}
	if c.OSV.MaxConcurrentBatches < 1 {
		errs = append(errs, errors.New("osv.max-concurrent-batches must be at least 1"))
	}
	if c.OSV.MaxConcurrentRequests < 1 {
		errs = append(errs, errors.New("osv.max-concurrent-requests must be at least 1"))
	}
	if c.OSV.MaxRetries < 1 {
		errs = append(errs, errors.New("osv.max-retries must be at least 1"))
	}
	if c.OSV.BackoffMultiplier < 0 || c.OSV.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("osv.backoff-multiplier and osv.requests-per-second cannot be negative"))
	}
	if c.OSV.RequestsPerSecond > 0 && c.OSV.Burst < 1 {
		errs = append(errs, errors.New("osv.burst must be at least 1 when requests are throttled"))
	}
	if c.OSV.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("osv.timeout must be positive"))
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendSQLite:
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of %s, %s", c.Cache.Backend, CacheBackendMemory, CacheBackendSQLite))
	}
	if c.Cache.TTL.Duration < 0 {
		errs = append(errs, errors.New("cache.ttl cannot be negative"))
	}

	if c.Resolution.MaxDepth < 1 {
		errs = append(errs, errors.New("resolution.max-depth must be at least 1"))
	}
	if c.Resolution.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("resolution.timeout must be positive"))
	}

	if _, err := c.Scan.Severities(); err != nil {
		errs = append(errs, fmt.Errorf("scan.ignore-severities: %w", err))
	}

	seen := make(map[string]struct{})
	for _, entry := range c.IgnoredVulns {
		if entry.ID == "" {
			errs = append(errs, errors.New("IgnoredVulns entries must have an id"))
		}
		if _, ok := seen[entry.ID]; ok {
			cmdlogger.Warnf("%s has multiple ignores for %s - only the first will be used!", c.LoadPath, entry.ID)
		}
		seen[entry.ID] = struct{}{}
	}

	return errors.Join(errs...)
}

// Severities parses the ignored severity names.
func (s Scan) Severities() ([]models.Severity, error) {
	sevs := make([]models.Severity, 0, len(s.IgnoreSeverities))
	for _, text := range s.IgnoreSeverities {
		sev, err := models.ParseSeverity(text)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(sevs, sev) {
			sevs = append(sevs, sev)
		}
	}

	return sevs, nil
}

// ActiveIgnores returns the IDs of ignore entries that have not expired.
func (c Config) ActiveIgnores(now time.Time) []string {
	ids := make([]string, 0, len(c.IgnoredVulns))
	for _, entry := range c.IgnoredVulns {
		if shouldIgnoreTimestamp(entry.IgnoreUntil, now) && !slices.Contains(ids, entry.ID) {
			ids = append(ids, entry.ID)
		}
	}

	return ids
}

// ShouldIgnore reports whether vulnID is ignored at the given time, and by
// which entry.
func (c Config) ShouldIgnore(vulnID string, now time.Time) (bool, IgnoreEntry) {
	index := slices.IndexFunc(c.IgnoredVulns, func(e IgnoreEntry) bool {
		return strings.EqualFold(e.ID, vulnID)
	})
	if index == -1 {
		return false, IgnoreEntry{}
	}
	entry := c.IgnoredVulns[index]

	return shouldIgnoreTimestamp(entry.IgnoreUntil, now), entry
}

func shouldIgnoreTimestamp(ignoreUntil, now time.Time) bool {
	if ignoreUntil.IsZero() {
		// If IgnoreUntil is not set, should ignore.
		return true
	}

	return ignoreUntil.After(now)
}
