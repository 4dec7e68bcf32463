package lockfile

import (
	"encoding/json"
	"strings"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
	"github.com/tidwall/gjson"
)

const FormatPackageJSON models.Format = "package.json"

type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

type PackageJSONParser struct{}

func (PackageJSONParser) Format() models.Format       { return FormatPackageJSON }
func (PackageJSONParser) Ecosystem() models.Ecosystem { return models.EcosystemNPM }
func (PackageJSONParser) Kind() Kind                  { return KindManifest }

func (PackageJSONParser) MatchesFilename(name string) bool {
	return name == "package.json"
}

func (PackageJSONParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}

	result := gjson.ParseBytes(content)
	if !result.IsObject() || result.Get("lockfileVersion").Exists() {
		return false
	}

	for _, key := range []string{"name", "version", "dependencies", "devDependencies", "optionalDependencies"} {
		if result.Get(key).Exists() {
			return true
		}
	}

	return false
}

// npmRegistrySpec extracts the real package name and version range from a
// package.json dependency entry, skipping entries that are not fetched from
// the registry (local paths, git urls, tarballs, workspaces).
func npmRegistrySpec(name, spec string) (string, string, bool) {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(spec, "npm:"); ok {
		// aliased: "npm:real-name@range"
		i := strings.LastIndex(rest, "@")
		if i <= 0 {
			return rest, anyVersion, true
		}

		return rest[:i], rest[i+1:], true
	}

	for _, prefix := range []string{"file:", "link:", "workspace:", "portal:", "git", "http:", "https:", "github:"} {
		if strings.HasPrefix(spec, prefix) {
			return "", "", false
		}
	}

	// "user/repo" is a github shorthand
	if strings.Contains(spec, "/") {
		return "", "", false
	}

	return name, spec, true
}

func (p PackageJSONParser) Parse(content []byte) (*depgraph.Graph, error) {
	var manifest packageJSON
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	add := func(deps map[string]string, dev bool) {
		for _, name := range sortedKeys(deps) {
			realName, constraint, ok := npmRegistrySpec(name, deps[name])
			if !ok {
				continue
			}
			addManifestDependency(g, realName, constraint, exactNpmVersion, dev)
		}
	}

	add(manifest.Dependencies, false)
	add(manifest.OptionalDependencies, false)
	add(manifest.DevDependencies, true)

	return g, nil
}

var _ Parser = PackageJSONParser{}

//nolint:gochecknoinits
func init() {
	Register(PackageJSONParser{})
}
