package lockfile

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/depscan/depscan/internal/cachedregexp"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatRequirementsTxt models.Format = "requirements.txt"

const pep508Pattern = `^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*(.*)$`

type RequirementsTxtParser struct{}

func (RequirementsTxtParser) Format() models.Format       { return FormatRequirementsTxt }
func (RequirementsTxtParser) Ecosystem() models.Ecosystem { return models.EcosystemPyPI }
func (RequirementsTxtParser) Kind() Kind                  { return KindManifest }

func (RequirementsTxtParser) MatchesFilename(name string) bool {
	return strings.Contains(name, "requirements") && strings.HasSuffix(name, ".txt")
}

// Validate accepts content where every line is a comment, a pip option, a
// url or path, or a PEP 508 requirement, with at least one requirement
// present.
func (p RequirementsTxtParser) Validate(content []byte) bool {
	found, ok := p.scan(content)

	return ok && found
}

// ValidateMatched is Validate without the need for a requirement, since a
// requirements file may hold nothing but comments or includes.
func (p RequirementsTxtParser) ValidateMatched(content []byte) bool {
	_, ok := p.scan(content)

	return ok
}

// scan reports whether any requirement is present, and whether every line
// is one pip understands.
func (RequirementsTxtParser) scan(content []byte) (bool, bool) {
	requirementRe := cachedregexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*\s*(\[[^\]]*\])?\s*((\(?\s*(===|==|~=|!=|>=|<=|>|<)\s*[^\s,;()]+\s*(,\s*(===|==|~=|!=|>=|<=|>|<)\s*[^\s,;()]+\s*)*\)?)|@\s*\S+)?$`)

	found := false
	for _, line := range requirementLines(content) {
		if isNotRequirementLine(line) {
			continue
		}
		if !requirementRe.MatchString(requirementSpec(line)) {
			return false, false
		}
		found = true
	}

	return found, true
}

func removeComments(line string) string {
	var re = cachedregexp.MustCompile(`(^|\s+)#.*$`)

	return strings.TrimSpace(re.ReplaceAllString(line, ""))
}

func isLineContinuation(line string) bool {
	// checks that the line ends with an odd number of back slashes,
	// meaning the last one isn't escaped
	var re = cachedregexp.MustCompile(`([^\\]|^)(\\{2})*\\$`)

	return re.MatchString(line)
}

// requirementLines joins continuations and strips comments and blank lines.
func requirementLines(content []byte) []string {
	var lines []string

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()

		for isLineContinuation(line) {
			line = strings.TrimSuffix(line, "\\")

			if !scanner.Scan() {
				break
			}
			line += scanner.Text()
		}

		if line = removeComments(line); line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

func isNotRequirementLine(line string) bool {
	return line == "" ||
		// flags, including -r/-c includes, are not supported
		strings.HasPrefix(line, "-") ||
		// file urls
		strings.HasPrefix(line, "https://") ||
		strings.HasPrefix(line, "http://") ||
		strings.HasPrefix(line, "file:") ||
		// vcs urls
		strings.HasPrefix(line, "git+") ||
		strings.HasPrefix(line, "hg+") ||
		strings.HasPrefix(line, "svn+") ||
		strings.HasPrefix(line, "bzr+") ||
		// file paths are not supported (relative or absolute)
		strings.HasPrefix(line, ".") ||
		strings.HasPrefix(line, "/")
}

// requirementSpec drops environment markers and per-requirement options
// such as --hash.
func requirementSpec(line string) string {
	line, _, _ = strings.Cut(line, ";")
	line, _, _ = strings.Cut(line, " --")

	return strings.TrimSpace(line)
}

// parseRequirement splits a PEP 508 requirement into its normalized name and
// version specifier. Direct url references are not registry packages.
func parseRequirement(line string) (string, string, bool) {
	matched := cachedregexp.FindStringSubmatch(pep508Pattern, requirementSpec(line))
	if matched == nil {
		return "", "", false
	}

	specifier := strings.TrimSpace(matched[3])
	if strings.HasPrefix(specifier, "@") {
		return "", "", false
	}

	specifier = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(specifier, "("), ")"))
	specifier = strings.ReplaceAll(specifier, " ", "")

	return normalizePythonName(matched[1]), specifier, true
}

func (p RequirementsTxtParser) Parse(content []byte) (*depgraph.Graph, error) {
	g := depgraph.New(p.Ecosystem())

	for _, line := range requirementLines(content) {
		if isNotRequirementLine(line) {
			continue
		}

		name, specifier, ok := parseRequirement(line)
		if !ok {
			continue
		}

		addManifestDependency(g, name, specifier, exactPythonVersion, false)
	}

	return g, nil
}

var (
	_ Parser           = RequirementsTxtParser{}
	_ MatchedValidator = RequirementsTxtParser{}
)

//nolint:gochecknoinits
func init() {
	Register(RequirementsTxtParser{})
}
