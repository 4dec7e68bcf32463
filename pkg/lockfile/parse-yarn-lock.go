package lockfile

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/depscan/depscan/internal/cachedregexp"
	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

const FormatYarnLock models.Format = "yarn.lock"

type yarnPackage struct {
	specifiers   []string
	name         string
	version      string
	dependencies [][2]string
}

func (y yarnPackage) isWorkspace() bool {
	for _, spec := range y.specifiers {
		if strings.Contains(spec, "@workspace:") {
			return true
		}
	}

	return strings.HasSuffix(y.version, "-use.local")
}

type YarnLockParser struct{}

func (YarnLockParser) Format() models.Format       { return FormatYarnLock }
func (YarnLockParser) Ecosystem() models.Ecosystem { return models.EcosystemNPM }
func (YarnLockParser) Kind() Kind                  { return KindLockfile }

func (YarnLockParser) MatchesFilename(name string) bool {
	return name == "yarn.lock"
}

func (YarnLockParser) Validate(content []byte) bool {
	if bytes.Contains(content, []byte("# yarn lockfile v1")) {
		return true
	}

	return bytes.HasPrefix(content, []byte("__metadata:")) || bytes.Contains(content, []byte("\n__metadata:"))
}

func shouldSkipYarnLine(line string) bool {
	return strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#")
}

func groupYarnPackageLines(scanner *bufio.Scanner) [][]string {
	var groups [][]string
	var group []string

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if shouldSkipYarnLine(line) {
			continue
		}

		// represents the start of a new dependency
		if !strings.HasPrefix(line, " ") {
			if len(group) > 0 {
				groups = append(groups, group)
			}
			group = make([]string, 0)
		}

		group = append(group, line)
	}

	if len(group) > 0 {
		groups = append(groups, group)
	}

	return groups
}

func extractYarnPackageName(str string) string {
	str = strings.TrimPrefix(str, "\"")

	isScoped := strings.HasPrefix(str, "@")

	if isScoped {
		str = strings.TrimPrefix(str, "@")
	}

	name := strings.SplitN(str, "@", 2)[0]

	if isScoped {
		name = "@" + name
	}

	return name
}

// normalizeYarnSpecifier turns both "lodash@^4.0.0" and berry's
// "lodash@npm:^4.0.0" into the same lookup key.
func normalizeYarnSpecifier(name, rng string) string {
	return name + "@" + strings.TrimPrefix(rng, "npm:")
}

func parseYarnSpecifiers(header string) []string {
	header = strings.TrimSuffix(header, ":")

	var specs []string
	for _, spec := range strings.Split(header, ",") {
		spec = strings.Trim(strings.TrimSpace(spec), `"`)
		if spec == "" {
			continue
		}

		name := extractYarnPackageName(spec)
		specs = append(specs, normalizeYarnSpecifier(name, strings.TrimPrefix(spec, name+"@")))
	}

	return specs
}

// parseYarnDependencyLine handles both `name "range"` and berry's `name: range`.
func parseYarnDependencyLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)

	var name, rest string
	if strings.HasPrefix(line, `"`) {
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			return "", "", false
		}
		name, rest = line[1:end+1], line[end+2:]
	} else {
		i := strings.IndexAny(line, " :")
		if i < 0 {
			return "", "", false
		}
		name, rest = line[:i], line[i:]
	}

	rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
	rng := strings.Trim(strings.TrimSpace(rest), `"`)

	return name, rng, name != "" && rng != ""
}

func parseYarnPackageGroup(group []string) yarnPackage {
	versionRe := cachedregexp.MustCompile(`^ {2}version:? "?([^"\s]+)"?$`)

	pkg := yarnPackage{specifiers: parseYarnSpecifiers(group[0])}
	pkg.name = extractYarnPackageName(strings.TrimSpace(group[0]))

	inDependencies := false
	for _, line := range group[1:] {
		if !strings.HasPrefix(line, "    ") {
			trimmed := strings.TrimSpace(line)
			inDependencies = trimmed == "dependencies:" || trimmed == "optionalDependencies:"

			if matched := versionRe.FindStringSubmatch(line); matched != nil {
				pkg.version = matched[1]
			}

			continue
		}

		if !inDependencies {
			continue
		}

		if name, rng, ok := parseYarnDependencyLine(line); ok {
			pkg.dependencies = append(pkg.dependencies, [2]string{name, rng})
		}
	}

	return pkg
}

func (p YarnLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	groups := groupYarnPackageLines(scanner)

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	packages := make([]yarnPackage, 0, len(groups))
	for _, group := range groups {
		if group[0] == "__metadata:" {
			continue
		}

		if !strings.HasSuffix(group[0], ":") {
			return nil, &ParseError{Section: group[0], Reason: "expected a package header ending with ':'"}
		}

		packages = append(packages, parseYarnPackageGroup(group))
	}

	g := depgraph.New(p.Ecosystem())
	ids := make([]depgraph.NodeID, len(packages))

	for i, pkg := range packages {
		if pkg.isWorkspace() {
			continue
		}

		if pkg.version == "" {
			cmdlogger.Warnf("Failed to determine version of %s while parsing a yarn.lock", pkg.name)

			continue
		}

		ids[i] = g.AddPackage(pkg.name, pkg.version)
		for _, spec := range pkg.specifiers {
			g.AddSpecifier(spec, ids[i])
		}
	}

	for i, pkg := range packages {
		isWorkspace := pkg.isWorkspace()
		if !isWorkspace && pkg.version == "" {
			continue
		}

		for _, dep := range pkg.dependencies {
			to, ok := g.ResolveSpecifier(normalizeYarnSpecifier(dep[0], dep[1]))
			if !ok {
				continue
			}

			if isWorkspace {
				g.AddRoot(to, false)
			} else {
				g.AddEdge(ids[i], to)
			}
		}
	}

	return g, nil
}

var _ Parser = YarnLockParser{}

//nolint:gochecknoinits
func init() {
	Register(YarnLockParser{})
}
