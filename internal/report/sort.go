package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/depscan/depscan/pkg/models"
)

// SortMatches orders matches most severe first, then by score, package and
// vulnerability ID.
func SortMatches(matches []models.VulnerabilityMatch) {
	slices.SortStableFunc(matches, func(a, b models.VulnerabilityMatch) int {
		if c := cmp.Compare(b.Vulnerability.Severity.Rank(), a.Vulnerability.Severity.Rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(score(b.Vulnerability), score(a.Vulnerability)); c != 0 {
			return c
		}
		if c := compareDependencies(a.Dependency, b.Dependency); c != 0 {
			return c
		}

		return IDSortFunc(a.Vulnerability.ID, b.Vulnerability.ID)
	})
}

// SortDependencies orders dependencies by ecosystem, name and version.
func SortDependencies(deps []models.Dependency) {
	slices.SortStableFunc(deps, compareDependencies)
}

func compareDependencies(a, b models.Dependency) int {
	return cmp.Or(
		cmp.Compare(a.Ecosystem, b.Ecosystem),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Version, b.Version),
	)
}

func score(v models.Vulnerability) float64 {
	if v.Score == nil {
		return -1
	}

	return *v.Score
}

func prefixOrder(prefix string) int {
	switch prefix {
	case "CVE":
		return 2
	case "GHSA":
		return 0
	}

	return 1
}

// IDSortFunc sorts IDs ascending by CVE < [ECO-SPECIFIC] < GHSA
func IDSortFunc(a, b string) int {
	prefixA, _, _ := strings.Cut(a, "-")
	prefixB, _, _ := strings.Cut(b, "-")

	if c := cmp.Compare(prefixOrder(prefixB), prefixOrder(prefixA)); c != 0 {
		return c
	}

	return strings.Compare(a, b)
}
