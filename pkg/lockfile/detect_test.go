package lockfile_test

import (
	"errors"
	"testing"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/lockfile"
	"github.com/depscan/depscan/pkg/models"
)

const npmLockV3 = `{
  "name": "app",
  "lockfileVersion": 3,
  "requires": true,
  "packages": {
    "": {
      "name": "app",
      "dependencies": { "express": "^4.18.0" },
      "devDependencies": { "jest": "^29.0.0" }
    },
    "node_modules/express": {
      "version": "4.18.2",
      "dependencies": { "debug": "2.6.9" }
    },
    "node_modules/debug": { "version": "2.6.9" },
    "node_modules/jest": { "version": "29.7.0", "dev": true }
  }
}`

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
		want     models.Format
	}{
		{name: "package_lock", filename: "package-lock.json", content: npmLockV3, want: lockfile.FormatNpmLock},
		{name: "renamed_package_lock", filename: "deps.json", content: npmLockV3, want: lockfile.FormatNpmLock},
		{name: "package_lock_named_as_manifest", filename: "package.json", content: npmLockV3, want: lockfile.FormatNpmLock},
		{name: "package_json", filename: "package.json", content: `{"dependencies":{"lodash":"4.17.15"}}`, want: lockfile.FormatPackageJSON},
		{name: "yarn_classic", filename: "yarn.lock", content: "# yarn lockfile v1\n\nlodash@^4.0.0:\n  version \"4.17.21\"\n", want: lockfile.FormatYarnLock},
		{name: "yarn_berry_renamed", filename: "lock", content: "__metadata:\n  version: 6\n\n\"lodash@npm:^4.0.0\":\n  version: 4.17.21\n", want: lockfile.FormatYarnLock},
		{name: "pnpm", filename: "pnpm-lock.yaml", content: "lockfileVersion: '9.0'\n", want: lockfile.FormatPnpmLock},
		{name: "requirements", filename: "requirements.txt", content: "requests==2.25.1\n", want: lockfile.FormatRequirementsTxt},
		{name: "requirements_dev", filename: "requirements-dev.txt", content: "pytest>=7\n", want: lockfile.FormatRequirementsTxt},
		{name: "requirements_renamed", filename: "deps", content: "# pinned\nrequests==2.25.1\nflask>=1.0,<2\n", want: lockfile.FormatRequirementsTxt},
		{name: "pipfile", filename: "Pipfile", content: "[packages]\nrequests = \"*\"\n", want: lockfile.FormatPipfile},
		{name: "pipfile_lock", filename: "Pipfile.lock", content: `{"_meta":{},"default":{}}`, want: lockfile.FormatPipfileLock},
		{name: "pyproject", filename: "pyproject.toml", content: "[project]\nname = \"x\"\n", want: lockfile.FormatPyprojectTOML},
		{name: "poetry_lock", filename: "poetry.lock", content: "[[package]]\nname = \"a\"\nversion = \"1\"\n\n[metadata]\ncontent-hash = \"abc\"\n", want: lockfile.FormatPoetryLock},
		{name: "cargo_lock", filename: "Cargo.lock", content: "version = 3\n\n[[package]]\nname = \"serde\"\nversion = \"1.0.0\"\n", want: lockfile.FormatCargoLock},
		{name: "cargo_toml", filename: "Cargo.toml", content: "[package]\nname = \"x\"\n\n[dependencies]\nserde = \"1\"\n", want: lockfile.FormatCargoTOML},
		{name: "go_mod", filename: "go.mod", content: "module example.com/x\n\ngo 1.22\n", want: lockfile.FormatGoMod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := lockfile.Detect(tt.filename, []byte(tt.content))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetect_RequirementsTxtVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		content  string
		want     models.Format
	}{
		{name: "generated_hashes", filename: "requirements.txt", content: "requests==2.25.1 \\\n    --hash=sha256:abc \\\n    --hash=sha256:def\n", want: lockfile.FormatRequirementsTxt},
		{name: "inline_hash", filename: "requirements.txt", content: "requests==2.25.1 --hash=sha256:abc\n", want: lockfile.FormatRequirementsTxt},
		{name: "url_line", filename: "requirements.txt", content: "https://example.com/pkg-1.0.tar.gz\nflask==1.1.4\n", want: lockfile.FormatRequirementsTxt},
		{name: "vcs_line", filename: "requirements.txt", content: "git+https://github.com/org/pkg.git\nflask==1.1.4\n", want: lockfile.FormatRequirementsTxt},
		{name: "direct_reference", filename: "requirements.txt", content: "pkg @ git+https://github.com/org/pkg.git\nflask==1.1.4\n", want: lockfile.FormatRequirementsTxt},
		{name: "local_path", filename: "requirements.txt", content: "./vendored/pkg\nflask==1.1.4\n", want: lockfile.FormatRequirementsTxt},
		{name: "markers", filename: "requirements.txt", content: "pywin32==306; sys_platform == \"win32\"\n", want: lockfile.FormatRequirementsTxt},
		{name: "only_comments", filename: "requirements.txt", content: "# nothing pinned yet\n", want: lockfile.FormatRequirementsTxt},
		{name: "only_includes", filename: "requirements.txt", content: "-r base.txt\n-c constraints.txt\n", want: lockfile.FormatRequirementsTxt},
		{name: "empty", filename: "requirements.txt", content: "", want: lockfile.FormatRequirementsTxt},
		{name: "renamed_with_hashes", filename: "deps", content: "requests==2.25.1 --hash=sha256:abc\n", want: lockfile.FormatRequirementsTxt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := lockfile.Detect(tt.filename, []byte(tt.content))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetect_RequirementsTxtNeedsTheFilename(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"# notes\n", "-r base.txt\n", "https://example.com/pkg.whl\n"} {
		if got, err := lockfile.Detect("notes.md", []byte(content)); !errors.Is(err, lockfile.ErrUnknownFormat) {
			t.Errorf("Detect(%q) = %q, %v; want ErrUnknownFormat", content, got, err)
		}
	}
}

func TestDetect_Unknown(t *testing.T) {
	t.Parallel()

	inputs := map[string][]byte{
		"binary":     {0x00, 0xff, 0xfe, 0x13, 0x37, '{', '[', 0x00},
		"empty":      {},
		"prose":      []byte("This is just a README.\nNothing to see here!\n"),
		"json_array": []byte(`[1, 2, 3]`),
	}

	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := lockfile.Detect("README", content)
			if !errors.Is(err, lockfile.ErrUnknownFormat) {
				t.Errorf("Detect() error = %v, want ErrUnknownFormat", err)
			}
			if got != models.FormatUnknown {
				t.Errorf("Detect() = %q, want unknown", got)
			}
		})
	}
}

func TestParse_MalformedContentIsAParseError(t *testing.T) {
	t.Parallel()

	p, ok := lockfile.Get(lockfile.FormatNpmLock)
	if !ok {
		t.Fatalf("npm lock parser is not registered")
	}

	_, err := lockfile.Parse(p, "package-lock.json", []byte("{\n  \"lockfileVersion\": 3,\n  \"packages\": [\n}"))

	var perr *lockfile.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a *ParseError, got %v", err)
	}
	if perr.Source != "package-lock.json" || perr.Format != lockfile.FormatNpmLock {
		t.Errorf("unexpected error details: %+v", perr)
	}
	if perr.Line != 4 {
		t.Errorf("Line = %d, want 4", perr.Line)
	}
}

type panickingParser struct {
	lockfile.NpmLockParser
}

func (panickingParser) Parse([]byte) (*depgraph.Graph, error) {
	panic("boom")
}

func TestParse_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(panickingParser{}, "package-lock.json", []byte(npmLockV3))

	var perr *lockfile.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a *ParseError, got %v", err)
	}
	if perr.Reason != "parser panicked: boom" {
		t.Errorf("Reason = %q", perr.Reason)
	}
}

func TestList_LockfilesFirst(t *testing.T) {
	t.Parallel()

	parsers := lockfile.List()
	seenManifest := false

	for _, p := range parsers {
		switch p.Kind() {
		case lockfile.KindManifest:
			seenManifest = true
		case lockfile.KindLockfile:
			if seenManifest {
				t.Errorf("lockfile parser %s listed after a manifest parser", p.Format())
			}
		}
	}

	if len(parsers) != 12 {
		t.Errorf("expected 12 registered parsers, got %d", len(parsers))
	}
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected registering a duplicate format to panic")
		}
	}()

	lockfile.Register(lockfile.NpmLockParser{})
}
