package models

import "time"

// Vulnerability is the canonical form of an advisory, independent of the
// shape the vulnerability database returned it in.
type Vulnerability struct {
	ID       string   `json:"id"`
	Aliases  []string `json:"aliases,omitempty"`
	Severity Severity `json:"severity"`
	// Score is the highest numeric (CVSS) score available, if any.
	Score       *float64          `json:"score,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Details     string            `json:"details,omitempty"`
	Affected    []AffectedPackage `json:"affected,omitempty"`
	Published   time.Time         `json:"published"`
	Modified    time.Time         `json:"modified"`
	AdvisoryURL string            `json:"advisoryUrl"`
}

type AffectedPackage struct {
	Ecosystem Ecosystem       `json:"ecosystem"`
	Name      string          `json:"name"`
	Ranges    []AffectedRange `json:"ranges,omitempty"`
	Versions  []string        `json:"versions,omitempty"`
}

// AffectedRange is a single vulnerable range. Fixed and LastAffected are
// mutually exclusive; both may be empty when the range is open ended.
type AffectedRange struct {
	Type         string `json:"type"`
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"lastAffected,omitempty"`
}

// FixedVersions returns every fixed version listed for the named package.
func (v Vulnerability) FixedVersions(eco Ecosystem, name string) []string {
	var fixed []string
	for _, a := range v.Affected {
		if a.Ecosystem != eco || a.Name != name {
			continue
		}
		for _, r := range a.Ranges {
			if r.Fixed != "" {
				fixed = append(fixed, r.Fixed)
			}
		}
	}

	return fixed
}

// VulnerabilityMatch pairs a vulnerability with the dependency it affects.
type VulnerabilityMatch struct {
	Dependency    Dependency    `json:"dependency"`
	Vulnerability Vulnerability `json:"vulnerability"`
}
