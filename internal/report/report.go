// Package report assembles scan results into a models.Report and renders it.
package report

import (
	"github.com/depscan/depscan/pkg/models"
)

// Assemble applies the dev-dependency, severity and advisory filters and computes the
// report counts. Dependencies and matches are sorted for display.
//
// Suppressed matches are counted but do not make a dependency vulnerable.
func Assemble(deps []models.Dependency, matches []models.VulnerabilityMatch, opts models.ScanOptions) models.Report {
	kept := make(map[models.PackageKey]bool, len(deps))
	report := models.Report{
		Dependencies:   make([]models.Dependency, 0, len(deps)),
		SeverityCounts: make(map[models.Severity]int, len(models.Severities)),
	}

	for _, dep := range deps {
		if dep.IsDev && !opts.IncludeDevDependencies {
			continue
		}
		key := dep.Key()
		if kept[key] {
			continue
		}
		kept[key] = true
		report.Dependencies = append(report.Dependencies, dep)
	}
	report.TotalDependencies = len(report.Dependencies)

	vulnerable := make(map[models.PackageKey]bool)
	seen := make(map[string]bool, len(matches))
	report.VulnerablePackages = make([]models.VulnerabilityMatch, 0, len(matches))

	for _, m := range matches {
		key := m.Dependency.Key()
		if !kept[key] {
			continue
		}

		id := key.String() + "|" + m.Vulnerability.ID
		if seen[id] {
			continue
		}
		seen[id] = true

		if opts.Ignores(m.Vulnerability.Severity) || opts.IgnoresVulnerability(m.Vulnerability) {
			report.SuppressedCount++
			continue
		}

		report.VulnerablePackages = append(report.VulnerablePackages, m)
		report.SeverityCounts[m.Vulnerability.Severity]++
		vulnerable[key] = true
	}
	report.VulnerableCount = len(vulnerable)

	SortDependencies(report.Dependencies)
	SortMatches(report.VulnerablePackages)

	return report
}
