package lockfile_test

import (
	"cmp"
	"testing"

	"github.com/depscan/depscan/pkg/lockfile"
	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// dep is the subset of a dependency the parser tests compare on.
type dep struct {
	Name       string
	Version    string
	Path       []string
	IsDev      bool
	Unresolved bool
}

func parseDeps(t *testing.T, p lockfile.Parser, content string) []dep {
	t.Helper()

	deps, err := lockfile.ParseDependencies(p, "test", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make([]dep, 0, len(deps))
	for _, d := range deps {
		if d.Ecosystem != p.Ecosystem() {
			t.Errorf("%s has ecosystem %q, want %q", d.Name, d.Ecosystem, p.Ecosystem())
		}
		if d.IsDirect != (len(d.Path) == 1) {
			t.Errorf("%s: IsDirect = %v with path %v", d.Name, d.IsDirect, d.Path)
		}
		got = append(got, dep{
			Name:       d.Name,
			Version:    d.Version,
			Path:       d.Path,
			IsDev:      d.IsDev,
			Unresolved: d.Unresolved,
		})
	}

	return got
}

func expectDeps(t *testing.T, p lockfile.Parser, content string, want []dep) {
	t.Helper()

	got := parseDeps(t, p, content)

	sortDeps := cmpopts.SortSlices(func(a, b dep) bool {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Version, b.Version)) < 0
	})

	if diff := gocmp.Diff(want, got, sortDeps, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}
