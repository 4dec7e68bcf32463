package lockfile

import (
	"encoding/json"
	"strings"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
	"github.com/tidwall/gjson"
)

const FormatPipfileLock models.Format = "Pipfile.lock"

type pipenvPackage struct {
	Version string `json:"version"`
}

type pipenvLock struct {
	Packages    map[string]pipenvPackage `json:"default"`
	PackagesDev map[string]pipenvPackage `json:"develop"`
}

type PipfileLockParser struct{}

func (PipfileLockParser) Format() models.Format       { return FormatPipfileLock }
func (PipfileLockParser) Ecosystem() models.Ecosystem { return models.EcosystemPyPI }
func (PipfileLockParser) Kind() Kind                  { return KindLockfile }

func (PipfileLockParser) MatchesFilename(name string) bool {
	return name == "Pipfile.lock"
}

func (PipfileLockParser) Validate(content []byte) bool {
	if !gjson.ValidBytes(content) {
		return false
	}

	result := gjson.ParseBytes(content)

	return result.Get("_meta").IsObject() && (result.Get("default").Exists() || result.Get("develop").Exists())
}

// Parse treats every locked package as direct, since Pipfile.lock is flat.
func (p PipfileLockParser) Parse(content []byte) (*depgraph.Graph, error) {
	var lock pipenvLock
	if err := json.Unmarshal(content, &lock); err != nil {
		return nil, err
	}

	g := depgraph.New(p.Ecosystem())
	g.HasDevInfo = true

	add := func(packages map[string]pipenvPackage, dev bool) {
		for _, name := range sortedKeys(packages) {
			version := strings.TrimPrefix(packages[name].Version, "==")
			if version == "" {
				continue
			}

			g.AddRoot(g.AddPackage(normalizePythonName(name), version), dev)
		}
	}

	add(lock.Packages, false)
	add(lock.PackagesDev, true)

	return g, nil
}

var _ Parser = PipfileLockParser{}

//nolint:gochecknoinits
func init() {
	Register(PipfileLockParser{})
}
