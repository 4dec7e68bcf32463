package client

import (
	"errors"
	"testing"

	"deps.dev/util/semver"
)

func TestPickVersion(t *testing.T) {
	t.Parallel()

	npmVersions := []string{"1.0.0", "1.2.0", "1.10.1", "2.0.0-beta.1", "2.0.0", "3.0.0-rc.1"}

	tests := []struct {
		name       string
		sys        semver.System
		constraint string
		versions   []string
		want       string
		wantErr    error
	}{
		{name: "caret", sys: semver.NPM, constraint: "^1.0.0", versions: npmVersions, want: "1.10.1"},
		{name: "exact", sys: semver.NPM, constraint: "1.2.0", versions: npmVersions, want: "1.2.0"},
		{name: "exact_prerelease", sys: semver.NPM, constraint: "2.0.0-beta.1", versions: npmVersions, want: "2.0.0-beta.1"},
		{name: "any_skips_prereleases", sys: semver.NPM, constraint: "*", versions: npmVersions, want: "2.0.0"},
		{name: "empty_is_any", sys: semver.NPM, constraint: "", versions: npmVersions, want: "2.0.0"},
		{name: "none_match", sys: semver.NPM, constraint: "^4.0.0", versions: npmVersions, wantErr: ErrNoMatchingVersion},
		{name: "pypi_specifier_set", sys: semver.PyPI, constraint: ">=2.0,<2.32", versions: []string{"1.9", "2.0.1", "2.31.0", "2.32.3"}, want: "2.31.0"},
		{name: "cargo_caret", sys: semver.Cargo, constraint: "^1.0", versions: []string{"0.9.0", "1.0.5", "1.4.2", "2.0.0"}, want: "1.4.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := pickVersion(tt.sys, tt.constraint, tt.versions)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("pickVersion() error = %v, want %v", err, tt.wantErr)
				}

				return
			}
			if err != nil {
				t.Fatalf("pickVersion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("pickVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRequiresDist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		want   Requirement
		wantOK bool
	}{
		{line: "charset-normalizer<4,>=2", want: Requirement{Name: "charset-normalizer", Constraint: "<4,>=2"}, wantOK: true},
		{line: "idna (<4,>=2.5)", want: Requirement{Name: "idna", Constraint: "<4,>=2.5"}, wantOK: true},
		{line: "Typing_Extensions[all] >= 4.0 ; python_version < \"3.11\"", want: Requirement{Name: "typing-extensions", Constraint: ">=4.0"}, wantOK: true},
		{line: "certifi", want: Requirement{Name: "certifi", Constraint: "*"}, wantOK: true},
		{line: `PySocks!=1.5.7,>=1.5.6; extra == "socks"`, wantOK: false},
		{line: "pkg @ https://example.com/pkg.whl", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()

			got, ok := parseRequiresDist(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("parseRequiresDist() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseRequiresDist() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
