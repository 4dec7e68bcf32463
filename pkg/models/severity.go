package models

import (
	"fmt"
	"strings"
)

// Severity is the normalized criticality tier of a vulnerability.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityUnknown  Severity = "UNKNOWN"
)

// Severities lists every tier from most to least severe.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityUnknown,
}

// ParseSeverity parses a tier name case-insensitively. "MODERATE" is accepted
// as an alias of MEDIUM since several advisory databases use it.
func ParseSeverity(text string) (Severity, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "MODERATE" {
		return SeverityMedium, nil
	}

	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}

	return SeverityUnknown, fmt.Errorf("invalid severity %q - must be one of: CRITICAL, HIGH, MEDIUM, LOW, UNKNOWN", text)
}

// Rank orders tiers so that more severe tiers have a higher rank.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityUnknown:
		return 0
	}

	return 0
}
