package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/depscan/depscan/internal/config"
	"github.com/depscan/depscan/pkg/models"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.ConfigName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("could not write config: %v", err)
	}

	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[osv]
batch-size = 250
requests-per-second = 5.5
burst = 10
timeout = "30s"

[cache]
backend = "sqlite"
path = "/tmp/depscan.db"
ttl = "1h30m"

[resolution]
enabled = false
max-depth = 4

[scan]
include-dev = true
ignore-severities = ["low", "Moderate"]

[[IgnoredVulns]]
id = "GHSA-aaaa-bbbb-cccc"
reason = "not reachable"
`)

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := config.Default()
	want.OSV.BatchSize = 250
	want.OSV.RequestsPerSecond = 5.5
	want.OSV.Burst = 10
	want.OSV.Timeout = config.Duration{Duration: 30 * time.Second}
	want.Cache = config.Cache{Backend: config.CacheBackendSQLite, Path: "/tmp/depscan.db", TTL: config.Duration{Duration: 90 * time.Minute}}
	want.Resolution.Enabled = false
	want.Resolution.MaxDepth = 4
	want.Scan = config.Scan{IncludeDev: true, IgnoreSeverities: []string{"low", "Moderate"}}
	want.IgnoredVulns = []config.IgnoreEntry{{ID: "GHSA-aaaa-bbbb-cccc", Reason: "not reachable"}}
	want.LoadPath = path

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	sevs, err := got.Scan.Severities()
	if err != nil {
		t.Fatalf("Severities() error = %v", err)
	}
	if diff := cmp.Diff([]models.Severity{models.SeverityLow, models.SeverityMedium}, sevs); diff != "" {
		t.Errorf("Severities() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
[osv]
batch-size = 10
batch_size = 10

[colours]
enabled = true
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("Load() expected an error")
	}
	for _, key := range []string{"osv.batch_size", "colours.enabled"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "batch_too_large", content: "[osv]\nbatch-size = 5000\n", wantErr: "osv.batch-size"},
		{name: "bad_duration", content: "[cache]\nttl = \"forever\"\n", wantErr: "forever"},
		{name: "sqlite_without_path", content: "[cache]\nbackend = \"sqlite\"\n", wantErr: "cache.path"},
		{name: "unknown_backend", content: "[cache]\nbackend = \"redis\"\n", wantErr: "redis"},
		{name: "bad_severity", content: "[scan]\nignore-severities = [\"severe\"]\n", wantErr: "severe"},
		{name: "zero_depth", content: "[resolution]\nmax-depth = 0\n", wantErr: "resolution.max-depth"},
		{name: "not_toml", content: "[osv\n", wantErr: "toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	if err := config.Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	t.Run("next_to_file", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "[resolution]\nmax-depth = 3\n")
		manifest := filepath.Join(filepath.Dir(path), "package.json")
		if err := os.WriteFile(manifest, []byte("{}"), 0o600); err != nil {
			t.Fatalf("could not write manifest: %v", err)
		}

		got, err := config.Discover(manifest)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if got.Resolution.MaxDepth != 3 || got.LoadPath != path {
			t.Errorf("Discover() = %+v", got)
		}
	})

	t.Run("missing_uses_defaults", func(t *testing.T) {
		t.Parallel()

		got, err := config.Discover(t.TempDir())
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if diff := cmp.Diff(config.Default(), got); diff != "" {
			t.Errorf("Discover() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid_is_an_error", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "[osv]\nmax-retries = 0\n")
		if _, err := config.Discover(filepath.Dir(path)); err == nil {
			t.Error("Discover() expected an error")
		}
	})
}

func TestIgnores(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := config.Config{IgnoredVulns: []config.IgnoreEntry{
		{ID: "GHSA-forever"},
		{ID: "GHSA-expired", IgnoreUntil: now.Add(-time.Hour)},
		{ID: "GHSA-pending", IgnoreUntil: now.Add(time.Hour)},
		{ID: "GHSA-forever", Reason: "duplicate"},
	}}

	if diff := cmp.Diff([]string{"GHSA-forever", "GHSA-pending"}, c.ActiveIgnores(now)); diff != "" {
		t.Errorf("ActiveIgnores() mismatch (-want +got):\n%s", diff)
	}

	if ignored, entry := c.ShouldIgnore("ghsa-forever", now); !ignored || entry.Reason != "" {
		t.Errorf("ShouldIgnore(ghsa-forever) = %v, %+v", ignored, entry)
	}
	if ignored, _ := c.ShouldIgnore("GHSA-expired", now); ignored {
		t.Error("ShouldIgnore(GHSA-expired) = true, want false")
	}
	if ignored, _ := c.ShouldIgnore("GHSA-unknown", now); ignored {
		t.Error("ShouldIgnore(GHSA-unknown) = true, want false")
	}
}
