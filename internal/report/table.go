package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/depscan/depscan/pkg/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintTable prints the report into a human friendly table followed by a
// summary. A terminalWidth <= 0 means the output is not a terminal.
func PrintTable(r models.Report, w io.Writer, terminalWidth int) {
	if terminalWidth <= 0 {
		text.DisableColors()
	}

	if len(r.VulnerablePackages) > 0 {
		t := newTable(w, terminalWidth)
		t.AppendHeader(table.Row{"Severity", "ID", "Ecosystem", "Package", "Version", "Fixed", "Introduced by"})
		for _, m := range r.VulnerablePackages {
			t.AppendRow(table.Row{
				colorSeverity(m.Vulnerability.Severity, m.Vulnerability.Score),
				m.Vulnerability.ID,
				m.Dependency.Ecosystem,
				m.Dependency.Name,
				m.Dependency.Version,
				strings.Join(m.Vulnerability.FixedVersions(m.Dependency.Ecosystem, m.Dependency.Name), ", "),
				introducedBy(m.Dependency),
			})
		}
		t.Render()
	}

	if len(r.Incomplete) > 0 {
		t := newTable(w, terminalWidth)
		t.AppendHeader(table.Row{"Not scanned", "Ecosystem", "Version"})
		for _, k := range r.Incomplete {
			t.AppendRow(table.Row{k.Name, k.Ecosystem, k.Version})
		}
		t.Render()
	}

	fmt.Fprintln(w, Summary(r))
}

func newTable(w io.Writer, terminalWidth int) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	// use fancy characters if we're outputting to a terminal
	if terminalWidth > 0 {
		t.SetStyle(table.StyleRounded)
		t.SetAllowedRowLength(terminalWidth)
	}

	t.Style().Options.DoNotColorBordersAndSeparators = true

	return t
}

func colorSeverity(sev models.Severity, score *float64) string {
	label := string(sev)
	if score != nil {
		label = fmt.Sprintf("%s (%.1f)", sev, *score)
	}

	switch sev {
	case models.SeverityCritical:
		return text.FgHiRed.Sprint(label)
	case models.SeverityHigh:
		return text.FgRed.Sprint(label)
	case models.SeverityMedium:
		return text.FgYellow.Sprint(label)
	case models.SeverityLow:
		return text.FgBlue.Sprint(label)
	case models.SeverityUnknown:
		return label
	}

	return label
}

func introducedBy(dep models.Dependency) string {
	label := "direct"
	if !dep.IsDirect && len(dep.Path) > 0 {
		label = dep.Path[0]
	}
	if dep.IsDev {
		label += " (dev)"
	}

	return label
}

// Summary is the one-line description of a report printed after the table.
func Summary(r models.Report) string {
	var parts []string
	for _, sev := range models.Severities {
		if n := r.SeverityCounts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(sev))))
		}
	}

	s := fmt.Sprintf("Scanned %d %s: %d vulnerable",
		r.TotalDependencies, plural(r.TotalDependencies, "dependency", "dependencies"), r.VulnerableCount)
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	if r.SuppressedCount > 0 {
		s += fmt.Sprintf(", %d suppressed", r.SuppressedCount)
	}
	if r.Partial {
		s += fmt.Sprintf(". Results are partial: %d %s could not be scanned", len(r.Incomplete), plural(len(r.Incomplete), "package", "packages"))
	}

	return s + "."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}
