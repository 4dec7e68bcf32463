package osvmatcher

import (
	"github.com/depscan/depscan/internal/osvdev"
	"github.com/depscan/depscan/internal/severity"
	"github.com/depscan/depscan/pkg/models"
)

const advisoryBaseURL = "https://osv.dev/vulnerability/"

// normalize converts an OSV record into the canonical form. The severity is
// always set.
func normalize(v *osvdev.Vulnerability) models.Vulnerability {
	labels := []string{severityLabel(v.DatabaseSpecific)}
	vectors := append([]severity.Vector(nil), v.Severity...)

	var affected []models.AffectedPackage
	for _, a := range v.Affected {
		labels = append(labels, severityLabel(a.DatabaseSpecific), severityLabel(a.EcosystemSpecific))
		vectors = append(vectors, a.Severity...)

		affected = append(affected, models.AffectedPackage{
			Ecosystem: models.Ecosystem(a.Package.Ecosystem),
			Name:      a.Package.Name,
			Ranges:    flattenRanges(a.Ranges),
			Versions:  a.Versions,
		})
	}

	sev, score := severity.Normalize(labels, vectors)

	return models.Vulnerability{
		ID:          v.ID,
		Aliases:     v.Aliases,
		Severity:    sev,
		Score:       score,
		Summary:     v.Summary,
		Details:     v.Details,
		Affected:    affected,
		Published:   v.Published,
		Modified:    v.Modified,
		AdvisoryURL: advisoryURL(v),
	}
}

func severityLabel(specific map[string]any) string {
	if s, ok := specific["severity"].(string); ok {
		return s
	}

	return ""
}

// advisoryURL prefers the record's own ADVISORY reference.
func advisoryURL(v *osvdev.Vulnerability) string {
	for _, ref := range v.References {
		if ref.Type == "ADVISORY" && ref.URL != "" {
			return ref.URL
		}
	}

	return advisoryBaseURL + v.ID
}

// flattenRanges turns OSV event lists into introduced/fixed pairs. Every
// "introduced" event opens a new range; the next fixed or last_affected
// event closes it.
func flattenRanges(ranges []osvdev.Range) []models.AffectedRange {
	var out []models.AffectedRange
	for _, r := range ranges {
		var current *models.AffectedRange
		for _, e := range r.Events {
			switch {
			case e.Introduced != "":
				if current != nil {
					out = append(out, *current)
				}
				current = &models.AffectedRange{Type: r.Type, Introduced: e.Introduced}
			case e.Fixed != "", e.LastAffected != "":
				if current == nil {
					current = &models.AffectedRange{Type: r.Type}
				}
				current.Fixed = e.Fixed
				current.LastAffected = e.LastAffected
				out = append(out, *current)
				current = nil
			}
		}
		if current != nil {
			out = append(out, *current)
		}
	}

	return out
}
