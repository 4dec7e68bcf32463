package lockfile

import (
	"strings"

	"github.com/depscan/depscan/internal/cmdlogger"
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

const FormatGoMod models.Format = "go.mod"

type GoModParser struct{}

func (GoModParser) Format() models.Format       { return FormatGoMod }
func (GoModParser) Ecosystem() models.Ecosystem { return models.EcosystemGo }
func (GoModParser) Kind() Kind                  { return KindManifest }

func (GoModParser) MatchesFilename(name string) bool {
	return name == "go.mod"
}

func (GoModParser) Validate(content []byte) bool {
	f, err := modfile.ParseLax("go.mod", content, nil)

	return err == nil && f.Module != nil
}

func defaultNonCanonicalVersions(path, version string) (string, error) {
	resolvedVersion := module.CanonicalVersion(version)

	// If the resolvedVersion is not canonical, we try to find the major resolvedVersion in the path and report that
	if resolvedVersion == "" {
		_, pathMajor, ok := module.SplitPathVersion(path)
		if ok {
			resolvedVersion = module.PathMajorPrefix(pathMajor)
		}
	}

	if resolvedVersion == "" {
		cmdlogger.Warnf("%s@%s is not a canonical version, defaulting to v0.0.0", path, version)

		return "v0.0.0", nil
	}

	return resolvedVersion, nil
}

// Parse reads requirements as exact versions. Replace directives are
// applied, and modules replaced by a local path are dropped.
func (p GoModParser) Parse(content []byte) (*depgraph.Graph, error) {
	f, err := modfile.Parse("go.mod", content, defaultNonCanonicalVersions)
	if err != nil {
		return nil, err
	}

	type requirement struct {
		path, version string
	}

	requires := make([]requirement, 0, len(f.Require))
	for _, r := range f.Require {
		requires = append(requires, requirement{path: r.Mod.Path, version: r.Mod.Version})
	}

	for _, replace := range f.Replace {
		for i, r := range requires {
			if r.path != replace.Old.Path {
				continue
			}
			// a replace with a version on the left only applies to that version
			if replace.Old.Version != "" && replace.Old.Version != r.version {
				continue
			}

			requires[i] = requirement{path: replace.New.Path, version: replace.New.Version}
		}
	}

	g := depgraph.New(p.Ecosystem())

	for _, r := range requires {
		// there is no version when replaced by a local directory
		if r.version == "" {
			continue
		}
		g.AddRoot(g.AddPackage(r.path, strings.TrimPrefix(r.version, "v")), false)
	}

	return g, nil
}

var _ Parser = GoModParser{}

//nolint:gochecknoinits
func init() {
	Register(GoModParser{})
}
