package lockfile_test

import (
	"strings"
	"testing"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/lockfile"
	"github.com/depscan/depscan/pkg/models"
)

// pinListParser reads "name version" lines, and is built only from the
// exported API the way a parser outside this module would be.
type pinListParser struct{}

func (pinListParser) Format() models.Format            { return "pins.list" }
func (pinListParser) Ecosystem() models.Ecosystem      { return models.EcosystemPyPI }
func (pinListParser) Kind() lockfile.Kind              { return lockfile.KindLockfile }
func (pinListParser) MatchesFilename(name string) bool { return name == "pins.list" }

func (pinListParser) Validate(content []byte) bool {
	return strings.HasPrefix(string(content), "# pins\n")
}

func (p pinListParser) Parse(content []byte) (*depgraph.Graph, error) {
	g := depgraph.New(p.Ecosystem())

	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || strings.HasPrefix(line, "#") {
			continue
		}
		g.AddRoot(g.AddPackage(fields[0], fields[1]), false)
	}

	return g, nil
}

var _ lockfile.Parser = pinListParser{}

func TestParse_ParserFromAnotherPackage(t *testing.T) {
	t.Parallel()

	deps, err := lockfile.ParseDependencies(pinListParser{}, "pins.list", []byte("# pins\nrequests 2.31.0\nflask 3.0.0\n"))
	if err != nil {
		t.Fatalf("ParseDependencies() error = %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d: %+v", len(deps), deps)
	}
	for _, dep := range deps {
		if !dep.IsDirect || dep.Source != "pins.list" || dep.Ecosystem != models.EcosystemPyPI {
			t.Errorf("unexpected dependency %+v", dep)
		}
	}
}
