package lockfile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/depscan/depscan/internal/cachedregexp"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
	"gopkg.in/yaml.v3"
)

const FormatPnpmLock models.Format = "pnpm-lock.yaml"

// pnpmDependencyRef is either a bare version (v5) or a specifier/version pair (v6+).
type pnpmDependencyRef struct {
	Specifier string `yaml:"specifier"`
	Version   string `yaml:"version"`
}

func (r *pnpmDependencyRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Version = value.Value

		return nil
	}

	type plain pnpmDependencyRef

	return value.Decode((*plain)(r))
}

type pnpmDependencies map[string]pnpmDependencyRef

type pnpmImporter struct {
	Dependencies         pnpmDependencies `yaml:"dependencies,omitempty"`
	OptionalDependencies pnpmDependencies `yaml:"optionalDependencies,omitempty"`
	DevDependencies      pnpmDependencies `yaml:"devDependencies,omitempty"`
}

type pnpmPackage struct {
	Name                 string            `yaml:"name"`
	Version              string            `yaml:"version"`
	Dependencies         map[string]string `yaml:"dependencies"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies"`
	Dev                  bool              `yaml:"dev"`
}

type pnpmSnapshot struct {
	Dependencies         map[string]string `yaml:"dependencies"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies"`
}

type pnpmLockfile struct {
	Version   any                     `yaml:"lockfileVersion"`
	Importers map[string]pnpmImporter `yaml:"importers,omitempty"`
	// lockfiles before v9 without workspaces keep the root importer at the top level
	Root      pnpmImporter            `yaml:",inline"`
	Packages  map[string]pnpmPackage  `yaml:"packages,omitempty"`
	Snapshots map[string]pnpmSnapshot `yaml:"snapshots,omitempty"`
}

func (l pnpmLockfile) majorVersion() (int, error) {
	raw := strings.Trim(fmt.Sprint(l.Version), "'\"")

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lockfileVersion %q", raw)
	}

	return int(v), nil
}

type PnpmLockParser struct{}

func (PnpmLockParser) Format() models.Format       { return FormatPnpmLock }
func (PnpmLockParser) Ecosystem() models.Ecosystem { return models.EcosystemNPM }
func (PnpmLockParser) Kind() Kind                  { return KindLockfile }

func (PnpmLockParser) MatchesFilename(name string) bool {
	return name == "pnpm-lock.yaml" || name == "pnpm-lock.yml"
}

func (PnpmLockParser) Validate(content []byte) bool {
	// JSON is valid YAML, and package-lock.json also has a lockfileVersion
	if trimmed := bytes.TrimSpace(content); len(trimmed) == 0 || trimmed[0] == '{' {
		return false
	}

	var header struct {
		Version any `yaml:"lockfileVersion"`
	}

	if err := yaml.Unmarshal(content, &header); err != nil {
		return false
	}

	return header.Version != nil
}

func startsWithNumber(str string) bool {
	return cachedregexp.MatchString(`^\d`, str)
}

// cleanPnpmVersion drops the peer dependency suffix, which is "_peer@1.0.0"
// before v6 and "(peer@1.0.0)" since.
func cleanPnpmVersion(version string, major int) string {
	version, _, _ = strings.Cut(version, "(")
	if major < 6 {
		version, _, _ = strings.Cut(version, "_")
	}

	return version
}

// parsePnpmPackageKey extracts the name and version encoded in a package key,
// which is "/name/version" before v6, "/name@version" in v6 and
// "name@version" since v9.
func parsePnpmPackageKey(key string, major int) (string, string) {
	key = strings.Trim(key, "'")

	if major < 6 && strings.HasPrefix(key, "/") {
		parts := strings.Split(strings.TrimPrefix(key, "/"), "/")

		if strings.HasPrefix(parts[0], "@") && len(parts) >= 3 {
			return parts[0] + "/" + parts[1], cleanPnpmVersion(parts[2], major)
		}
		if len(parts) >= 2 {
			return parts[0], cleanPnpmVersion(parts[1], major)
		}

		return "", ""
	}

	key = strings.TrimPrefix(key, "/")
	if len(key) < 2 {
		return "", ""
	}

	i := strings.Index(key[1:], "@")
	if i < 0 {
		return "", ""
	}
	i++

	return key[:i], cleanPnpmVersion(key[i+1:], major)
}

// resolvePnpmReference works out which package a dependency entry refers to.
// Most entries are just a version, but aliases and v5/v6 entries can name a
// package key instead.
func resolvePnpmReference(name, ref string, major int) (string, string, bool) {
	switch {
	case strings.HasPrefix(ref, "link:"), strings.HasPrefix(ref, "file:"):
		return "", "", false
	case strings.HasPrefix(ref, "/"):
		name, ref = parsePnpmPackageKey(ref, major)
	case startsWithNumber(ref):
		ref = cleanPnpmVersion(ref, major)
	default:
		name, ref = parsePnpmPackageKey(ref, major)
	}

	if name == "" || !startsWithNumber(ref) {
		return "", "", false
	}

	return name, ref, true
}

func (p PnpmLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	var lockfile pnpmLockfile
	if err := yaml.Unmarshal(content, &lockfile); err != nil {
		return nil, err
	}

	if lockfile.Version == nil {
		return nil, &ParseError{Section: "lockfileVersion", Reason: "missing lockfileVersion"}
	}

	major, err := lockfile.majorVersion()
	if err != nil {
		return nil, &ParseError{Section: "lockfileVersion", Reason: err.Error()}
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	for _, key := range sortedKeys(lockfile.Packages) {
		pkg := lockfile.Packages[key]
		name, version := parsePnpmPackageKey(key, major)

		// "name" and "version" are only present when they are not in the key
		if pkg.Name != "" {
			name = pkg.Name
		}
		if pkg.Version != "" && startsWithNumber(pkg.Version) {
			version = pkg.Version
		}

		if name == "" || !startsWithNumber(version) {
			continue
		}

		g.SetDevHint(g.AddPackage(name, version), pkg.Dev)
	}

	link := func(from depgraph.NodeID, deps map[string]string) {
		for _, depName := range sortedKeys(deps) {
			name, version, ok := resolvePnpmReference(depName, deps[depName], major)
			if !ok {
				continue
			}
			g.AddEdge(from, g.AddPackage(name, version))
		}
	}

	if major >= 9 {
		for _, key := range sortedKeys(lockfile.Snapshots) {
			name, version := parsePnpmPackageKey(key, major)
			if name == "" || !startsWithNumber(version) {
				continue
			}

			from := g.AddPackage(name, version)
			link(from, lockfile.Snapshots[key].Dependencies)
			link(from, lockfile.Snapshots[key].OptionalDependencies)
		}
	} else {
		for _, key := range sortedKeys(lockfile.Packages) {
			pkg := lockfile.Packages[key]
			name, version := parsePnpmPackageKey(key, major)
			if pkg.Name != "" {
				name = pkg.Name
			}
			if pkg.Version != "" && startsWithNumber(pkg.Version) {
				version = pkg.Version
			}

			from, ok := g.Lookup(name, version)
			if !ok {
				continue
			}
			link(from, pkg.Dependencies)
			link(from, pkg.OptionalDependencies)
		}
	}

	importers := lockfile.Importers
	if len(importers) == 0 {
		importers = map[string]pnpmImporter{".": lockfile.Root}
	}

	for _, path := range sortedKeys(importers) {
		importer := importers[path]

		addRoots := func(deps pnpmDependencies, dev bool) {
			for _, depName := range sortedKeys(deps) {
				name, version, ok := resolvePnpmReference(depName, deps[depName].Version, major)
				if !ok {
					continue
				}
				g.AddRoot(g.AddPackage(name, version), dev)
			}
		}

		addRoots(importer.Dependencies, false)
		addRoots(importer.OptionalDependencies, false)
		addRoots(importer.DevDependencies, true)
	}

	return g, nil
}

var _ Parser = PnpmLockParser{}

//nolint:gochecknoinits
func init() {
	Register(PnpmLockParser{})
}
