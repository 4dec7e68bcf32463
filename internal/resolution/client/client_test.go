package client_test

import (
	"context"
	"errors"
	"testing"

	pb "deps.dev/api/v3"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/internal/resolution/client"
	"github.com/depscan/depscan/internal/resolution/datasource"
	"github.com/depscan/depscan/pkg/models"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
)

type fakeNpmRegistry map[string]datasource.NpmPackageDetails

func (f fakeNpmRegistry) Package(_ context.Context, name string) (datasource.NpmPackageDetails, error) {
	d, ok := f[name]
	if !ok {
		return datasource.NpmPackageDetails{}, errors.New("404 Not Found")
	}

	return d, nil
}

func TestNpmResolver(t *testing.T) {
	t.Parallel()

	reg := fakeNpmRegistry{
		"express": {
			Versions: map[string]datasource.NpmDependencies{
				"4.18.0": {},
				"4.19.2": {
					Dependencies: map[string]string{
						"body-parser": "1.20.2",
						"debug":       "2.6.9",
						"local":       "file:../local",
						"forked":      "github:someone/forked",
						"aliased":     "npm:real-name@^2.0.0",
					},
					OptionalDependencies: map[string]string{"fsevents": "~2.3.2"},
				},
				"5.0.0-beta.3": {},
			},
			Tags: map[string]string{"latest": "4.19.2", "next": "5.0.0-beta.3"},
		},
	}
	r := client.NpmResolver{Registry: reg}

	tests := []struct {
		name       string
		constraint string
		want       client.Resolved
		wantErr    bool
	}{
		{
			name:       "range_prefers_latest_tag",
			constraint: "^4.0.0",
			want: client.Resolved{
				Version: "4.19.2",
				Dependencies: []client.Requirement{
					{Name: "body-parser", Constraint: "1.20.2"},
					{Name: "debug", Constraint: "2.6.9"},
					{Name: "fsevents", Constraint: "~2.3.2"},
					{Name: "real-name", Constraint: "^2.0.0"},
				},
			},
		},
		{
			name:       "exact",
			constraint: "4.18.0",
			want:       client.Resolved{Version: "4.18.0"},
		},
		{
			name:       "dist_tag",
			constraint: "next",
			want:       client.Resolved{Version: "5.0.0-beta.3"},
		},
		{
			name:       "unsatisfiable",
			constraint: "^9.0.0",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.ResolveRange(context.Background(), models.EcosystemNPM, "express", tt.constraint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ResolveRange() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type fakePyPI struct {
	versions map[string][]string
	requires map[string][]string
}

func (f fakePyPI) Versions(_ context.Context, name string) ([]string, error) {
	v, ok := f.versions[name]
	if !ok {
		return nil, errors.New("404 Not Found")
	}

	return v, nil
}

func (f fakePyPI) RequiresDist(_ context.Context, name, version string) ([]string, error) {
	return f.requires[name+"=="+version], nil
}

func TestPyPIResolver(t *testing.T) {
	t.Parallel()

	idx := fakePyPI{
		versions: map[string][]string{"flask": {"1.1.4", "2.0.0", "2.3.3"}},
		requires: map[string][]string{
			"flask==2.3.3": {
				"Werkzeug>=2.3.7",
				"Jinja2>=3.1.2",
				`asgiref>=3.2; extra == "async"`,
			},
		},
	}
	r := client.PyPIResolver{Index: idx}

	got, err := r.ResolveRange(context.Background(), models.EcosystemPyPI, "flask", ">=2.0")
	if err != nil {
		t.Fatalf("ResolveRange() error = %v", err)
	}

	want := client.Resolved{
		Version: "2.3.3",
		Dependencies: []client.Requirement{
			{Name: "jinja2", Constraint: ">=3.1.2"},
			{Name: "werkzeug", Constraint: ">=2.3.7"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveRange() mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.ResolveRange(context.Background(), models.EcosystemPyPI, "missing", "*"); err == nil {
		t.Error("ResolveRange(missing) expected an error")
	}
}

type fakeInsights struct{}

func (fakeInsights) GetPackage(_ context.Context, in *pb.GetPackageRequest, _ ...grpc.CallOption) (*pb.Package, error) {
	key := in.GetPackageKey()
	var versions []string
	switch key.GetName() {
	case "serde":
		versions = []string{"1.0.100", "1.0.200", "2.0.0"}
	case "golang.org/x/text":
		versions = []string{"v0.13.0", "v0.14.0"}
	default:
		return nil, errors.New("package not found")
	}

	pkg := &pb.Package{PackageKey: key}
	for _, v := range versions {
		pkg.Versions = append(pkg.Versions, &pb.Package_Version{
			VersionKey: &pb.VersionKey{System: key.GetSystem(), Name: key.GetName(), Version: v},
		})
	}

	return pkg, nil
}

func (fakeInsights) GetDependencies(_ context.Context, in *pb.GetDependenciesRequest, _ ...grpc.CallOption) (*pb.Dependencies, error) {
	vk := in.GetVersionKey()
	if vk.GetName() != "serde" {
		return &pb.Dependencies{Nodes: []*pb.Dependencies_Node{{VersionKey: vk}}}, nil
	}

	return &pb.Dependencies{
		Nodes: []*pb.Dependencies_Node{
			{VersionKey: vk},
			{VersionKey: &pb.VersionKey{System: pb.System_CARGO, Name: "serde_derive", Version: "1.0.200"}},
			{VersionKey: &pb.VersionKey{System: pb.System_CARGO, Name: "proc-macro2", Version: "1.0.80"}},
		},
		Edges: []*pb.Dependencies_Edge{
			{FromNode: 0, ToNode: 1, Requirement: "=1.0.200"},
			// transitive edges are not direct requirements
			{FromNode: 1, ToNode: 2, Requirement: "^1.0"},
		},
	}, nil
}

func TestDepsDevResolver(t *testing.T) {
	t.Parallel()

	r := client.DepsDevResolver{Client: fakeInsights{}}

	got, err := r.ResolveRange(context.Background(), models.EcosystemCratesIO, "serde", "^1.0")
	if err != nil {
		t.Fatalf("ResolveRange() error = %v", err)
	}
	want := client.Resolved{
		Version:      "1.0.200",
		Dependencies: []client.Requirement{{Name: "serde_derive", Constraint: "1.0.200"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveRange() mismatch (-want +got):\n%s", diff)
	}

	got, err = r.ResolveRange(context.Background(), models.EcosystemGo, "golang.org/x/text", "0.13.0")
	if err != nil {
		t.Fatalf("ResolveRange(go) error = %v", err)
	}
	if diff := cmp.Diff(client.Resolved{Version: "0.13.0"}, got); diff != "" {
		t.Errorf("ResolveRange(go) mismatch (-want +got):\n%s", diff)
	}
}

type stubResolver struct {
	res client.Resolved
	err error
}

func (s stubResolver) ResolveRange(context.Context, models.Ecosystem, string, string) (client.Resolved, error) {
	return s.res, s.err
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	d := client.NewDispatcher()
	d.Metrics = m
	d.Register(stubResolver{res: client.Resolved{Version: "1.0.0"}}, models.EcosystemNPM)
	d.Register(stubResolver{err: errors.New("boom")}, models.EcosystemPyPI)

	ctx := context.Background()

	if !d.Supports(models.EcosystemNPM) || d.Supports(models.EcosystemGo) {
		t.Error("Supports() reported the wrong ecosystems")
	}

	got, err := d.ResolveRange(ctx, models.EcosystemNPM, "a", "^1")
	if err != nil || got.Version != "1.0.0" {
		t.Errorf("ResolveRange(npm) = %v, %v", got, err)
	}

	_, err = d.ResolveRange(ctx, models.EcosystemPyPI, "b", ">=1")
	var resErr *client.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("ResolveRange(pypi) error = %v, want a ResolutionError", err)
	}
	if resErr.Name != "b" || resErr.Range != ">=1" || resErr.Ecosystem != models.EcosystemPyPI {
		t.Errorf("ResolutionError = %+v", resErr)
	}

	_, err = d.ResolveRange(ctx, models.EcosystemGo, "c", "1.0.0")
	if !errors.Is(err, client.ErrUnsupportedEcosystem) || !errors.As(err, &resErr) {
		t.Errorf("ResolveRange(go) error = %v, want ErrUnsupportedEcosystem", err)
	}

	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues(string(models.EcosystemNPM), "ok")); got != 1 {
		t.Errorf("npm success resolutions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues(string(models.EcosystemPyPI), "error")); got != 1 {
		t.Errorf("pypi failed resolutions = %v, want 1", got)
	}
}
