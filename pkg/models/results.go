package models

import "slices"

// ManifestSource is one input file handed to a scan.
type ManifestSource struct {
	Filename  string    `json:"filename"`
	Content   []byte    `json:"-"`
	Format    Format    `json:"format"`
	Ecosystem Ecosystem `json:"ecosystem"`
	Priority  int       `json:"priority"`
}

// ScanOptions is the immutable input controlling a scan.
type ScanOptions struct {
	IncludeDevDependencies bool       `json:"includeDevDependencies"`
	IgnoreSeverities       []Severity `json:"ignoreSeverities,omitempty"`
	// ResolveTransitive asks for unresolved manifest ranges to be expanded
	// through the package registries.
	ResolveTransitive bool `json:"resolveTransitive"`
	// IgnoreVulnerabilities lists advisory IDs (or aliases) to suppress.
	IgnoreVulnerabilities []string `json:"ignoreVulnerabilities,omitempty"`
}

// Ignores reports whether matches with the given severity should be suppressed.
func (o ScanOptions) Ignores(sev Severity) bool {
	return slices.Contains(o.IgnoreSeverities, sev)
}

// IgnoresVulnerability reports whether v is suppressed by ID or by alias.
func (o ScanOptions) IgnoresVulnerability(v Vulnerability) bool {
	if slices.Contains(o.IgnoreVulnerabilities, v.ID) {
		return true
	}

	return slices.ContainsFunc(v.Aliases, func(alias string) bool {
		return slices.Contains(o.IgnoreVulnerabilities, alias)
	})
}

type WarningKind string

const (
	WarningUnknownFormat WarningKind = "unknown-format"
	WarningParse         WarningKind = "parse"
	WarningResolution    WarningKind = "resolution"
	WarningNetwork       WarningKind = "network"
	WarningCache         WarningKind = "cache"
	WarningUnresolved    WarningKind = "unresolved"
)

// Warning is a non-fatal problem encountered during a scan.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Source  string      `json:"source,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.Source == "" {
		return string(w.Kind) + ": " + w.Message
	}

	return string(w.Kind) + ": " + w.Source + ": " + w.Message
}

// Report is the result of a single scan. It is not modified after assembly.
type Report struct {
	Dependencies       []Dependency         `json:"dependencies"`
	VulnerablePackages []VulnerabilityMatch `json:"vulnerablePackages"`
	TotalDependencies  int                  `json:"totalDependencies"`
	VulnerableCount    int                  `json:"vulnerableCount"`
	SuppressedCount    int                  `json:"suppressedCount"`
	SeverityCounts     map[Severity]int     `json:"severityCounts"`
	// Partial is set when resolution or scanning could not fully complete.
	Partial    bool         `json:"partial"`
	Incomplete []PackageKey `json:"incomplete,omitempty"`
	Warnings   []Warning    `json:"warnings,omitempty"`
}
