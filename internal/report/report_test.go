package report_test

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/depscan/depscan/internal/report"
	"github.com/depscan/depscan/pkg/models"
	"github.com/google/go-cmp/cmp"
)

func dep(name, version string, dev bool) models.Dependency {
	return models.Dependency{
		Ecosystem: models.EcosystemNPM,
		Name:      name,
		Version:   version,
		Path:      []string{name},
		IsDirect:  true,
		IsDev:     dev,
	}
}

func match(d models.Dependency, id string, sev models.Severity) models.VulnerabilityMatch {
	return models.VulnerabilityMatch{
		Dependency:    d,
		Vulnerability: models.Vulnerability{ID: id, Severity: sev},
	}
}

func TestAssemble_IgnoreSeverities(t *testing.T) {
	t.Parallel()

	deps := []models.Dependency{
		dep("a", "1.0.0", false),
		dep("b", "1.0.0", false),
		dep("c", "1.0.0", false),
		dep("d", "1.0.0", false),
		dep("e", "1.0.0", false),
	}
	matches := []models.VulnerabilityMatch{
		match(deps[0], "V-1", models.SeverityCritical),
		match(deps[1], "V-2", models.SeverityHigh),
		match(deps[2], "V-3", models.SeverityHigh),
		match(deps[3], "V-4", models.SeverityLow),
		match(deps[4], "V-5", models.SeverityLow),
	}

	r := report.Assemble(deps, matches, models.ScanOptions{IgnoreSeverities: []models.Severity{models.SeverityLow}})

	if r.VulnerableCount != 3 {
		t.Errorf("VulnerableCount = %d, want 3", r.VulnerableCount)
	}
	if r.SuppressedCount != 2 {
		t.Errorf("SuppressedCount = %d, want 2", r.SuppressedCount)
	}
	if r.TotalDependencies != 5 {
		t.Errorf("TotalDependencies = %d, want 5", r.TotalDependencies)
	}
	wantCounts := map[models.Severity]int{models.SeverityCritical: 1, models.SeverityHigh: 2}
	if diff := cmp.Diff(wantCounts, r.SeverityCounts); diff != "" {
		t.Errorf("SeverityCounts mismatch (-want +got):\n%s", diff)
	}
}

func TestAssemble_IgnoreVulnerabilities(t *testing.T) {
	t.Parallel()

	a := dep("a", "1.0.0", false)
	b := dep("b", "1.0.0", false)
	aliased := match(b, "GHSA-xxxx", models.SeverityHigh)
	aliased.Vulnerability.Aliases = []string{"CVE-2024-0001"}

	r := report.Assemble([]models.Dependency{a, b}, []models.VulnerabilityMatch{
		match(a, "GHSA-yyyy", models.SeverityCritical),
		aliased,
	}, models.ScanOptions{IgnoreVulnerabilities: []string{"CVE-2024-0001"}})

	if r.VulnerableCount != 1 || r.SuppressedCount != 1 {
		t.Errorf("VulnerableCount = %d, SuppressedCount = %d, want 1 and 1", r.VulnerableCount, r.SuppressedCount)
	}
	if len(r.VulnerablePackages) != 1 || r.VulnerablePackages[0].Vulnerability.ID != "GHSA-yyyy" {
		t.Errorf("unexpected matches %+v", r.VulnerablePackages)
	}
}

func TestAssemble_DevDependencies(t *testing.T) {
	t.Parallel()

	prod := dep("express", "4.17.1", false)
	dev := dep("jest", "29.0.0", true)
	deps := []models.Dependency{prod, dev}
	matches := []models.VulnerabilityMatch{
		match(prod, "GHSA-1", models.SeverityMedium),
		match(dev, "GHSA-2", models.SeverityHigh),
	}

	without := report.Assemble(deps, matches, models.ScanOptions{})
	if without.TotalDependencies != 1 || without.VulnerableCount != 1 || len(without.VulnerablePackages) != 1 {
		t.Errorf("without dev: total=%d vulnerable=%d matches=%d, want 1/1/1",
			without.TotalDependencies, without.VulnerableCount, len(without.VulnerablePackages))
	}
	if without.SuppressedCount != 0 {
		t.Errorf("dev matches must not count as suppressed, got %d", without.SuppressedCount)
	}

	with := report.Assemble(deps, matches, models.ScanOptions{IncludeDevDependencies: true})
	if with.TotalDependencies != 2 || with.VulnerableCount != 2 {
		t.Errorf("with dev: total=%d vulnerable=%d, want 2/2", with.TotalDependencies, with.VulnerableCount)
	}
}

func TestAssemble_CountsDistinctDependencies(t *testing.T) {
	t.Parallel()

	lodash := dep("lodash", "4.17.15", false)
	deps := []models.Dependency{lodash, lodash}
	matches := []models.VulnerabilityMatch{
		match(lodash, "GHSA-1", models.SeverityHigh),
		match(lodash, "GHSA-2", models.SeverityLow),
		match(lodash, "GHSA-2", models.SeverityLow),
	}

	r := report.Assemble(deps, matches, models.ScanOptions{})
	if r.TotalDependencies != 1 || r.VulnerableCount != 1 || len(r.VulnerablePackages) != 2 {
		t.Errorf("total=%d vulnerable=%d matches=%d, want 1/1/2", r.TotalDependencies, r.VulnerableCount, len(r.VulnerablePackages))
	}
}

func TestAssemble_Empty(t *testing.T) {
	t.Parallel()

	r := report.Assemble(nil, nil, models.ScanOptions{})
	if r.TotalDependencies != 0 || r.VulnerableCount != 0 || r.Dependencies == nil || r.VulnerablePackages == nil {
		t.Errorf("Assemble(nil) = %+v", r)
	}
}

func TestSortMatches(t *testing.T) {
	t.Parallel()

	high := 8.1
	higher := 8.8
	a := dep("a", "1.0.0", false)
	b := dep("b", "1.0.0", false)

	matches := []models.VulnerabilityMatch{
		match(a, "GHSA-x", models.SeverityLow),
		match(b, "GHSA-y", models.SeverityHigh),
		{Dependency: a, Vulnerability: models.Vulnerability{ID: "GHSA-z", Severity: models.SeverityHigh, Score: &high}},
		{Dependency: b, Vulnerability: models.Vulnerability{ID: "GHSA-w", Severity: models.SeverityHigh, Score: &higher}},
		match(a, "GHSA-v", models.SeverityUnknown),
		match(a, "CVE-2020-1", models.SeverityCritical),
		match(a, "GHSA-a", models.SeverityCritical),
	}
	report.SortMatches(matches)

	var got []string
	for _, m := range matches {
		got = append(got, m.Vulnerability.ID)
	}
	want := []string{"CVE-2020-1", "GHSA-a", "GHSA-w", "GHSA-z", "GHSA-y", "GHSA-x", "GHSA-v"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortMatches() mismatch (-want +got):\n%s", diff)
	}
}

func TestIDSortFunc(t *testing.T) {
	t.Parallel()

	got := []string{"GHSA-1", "PYSEC-2020-1", "CVE-2021-2", "CVE-2021-1"}
	slices.SortFunc(got, report.IDSortFunc)

	want := []string{"CVE-2021-1", "CVE-2021-2", "PYSEC-2020-1", "GHSA-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IDSortFunc ordering mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	fixed := dep("lodash", "4.17.15", false)
	r := report.Assemble(
		[]models.Dependency{fixed},
		[]models.VulnerabilityMatch{{
			Dependency: fixed,
			Vulnerability: models.Vulnerability{
				ID:       "GHSA-p6mc-m468-83gw",
				Severity: models.SeverityHigh,
				Affected: []models.AffectedPackage{{
					Ecosystem: models.EcosystemNPM,
					Name:      "lodash",
					Ranges:    []models.AffectedRange{{Type: "SEMVER", Introduced: "0", Fixed: "4.17.19"}},
				}},
			},
		}},
		models.ScanOptions{},
	)

	var buf bytes.Buffer
	report.PrintTable(r, &buf, 0)
	out := buf.String()

	for _, want := range []string{"GHSA-p6mc-m468-83gw", "4.17.19", "direct", "Scanned 1 dependency: 1 vulnerable (1 high)."} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintTable() output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	r := models.Report{
		TotalDependencies: 12,
		VulnerableCount:   0,
		SuppressedCount:   3,
		Partial:           true,
		Incomplete:        []models.PackageKey{{Name: "x"}},
	}
	want := "Scanned 12 dependencies: 0 vulnerable, 3 suppressed. Results are partial: 1 package could not be scanned."
	if got := report.Summary(r); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}

func TestPrintJSON(t *testing.T) {
	t.Parallel()

	r := report.Assemble([]models.Dependency{dep("a", "1.0.0", false)}, nil, models.ScanOptions{})

	var buf bytes.Buffer
	if err := report.PrintJSON(r, &buf, false); err != nil {
		t.Fatalf("PrintJSON() error: %v", err)
	}

	var decoded models.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("PrintJSON() output is not JSON: %v", err)
	}
	if decoded.TotalDependencies != 1 {
		t.Errorf("decoded TotalDependencies = %d, want 1", decoded.TotalDependencies)
	}
	if !strings.Contains(buf.String(), "\n  \"totalDependencies\": 1,") {
		t.Errorf("PrintJSON() output is not indented:\n%s", buf.String())
	}
}
