package lockfile_test

import (
	"testing"

	"github.com/depscan/depscan/pkg/lockfile"
)

func TestYarnLockParser_Classic(t *testing.T) {
	t.Parallel()

	expectDeps(t, lockfile.YarnLockParser{}, `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1


"@babel/code-frame@^7.0.0", "@babel/code-frame@^7.10.4":
  version "7.12.13"
  resolved "https://registry.yarnpkg.com/@babel/code-frame/-/code-frame-7.12.13.tgz"
  dependencies:
    "@babel/highlight" "^7.12.13"

"@babel/highlight@^7.12.13":
  version "7.13.10"
  dependencies:
    js-tokens "^4.0.0"

js-tokens@^4.0.0:
  version "4.0.0"

express@^4.18.0:
  version "4.18.2"
  dependencies:
    debug "2.6.9"

debug@2.6.9:
  version "2.6.9"
`, []dep{
		{Name: "@babel/code-frame", Version: "7.12.13", Path: []string{"@babel/code-frame"}},
		{Name: "@babel/highlight", Version: "7.13.10", Path: []string{"@babel/code-frame", "@babel/highlight"}},
		{Name: "debug", Version: "2.6.9", Path: []string{"express", "debug"}},
		{Name: "express", Version: "4.18.2", Path: []string{"express"}},
		{Name: "js-tokens", Version: "4.0.0", Path: []string{"@babel/code-frame", "@babel/highlight", "js-tokens"}},
	})
}

func TestYarnLockParser_Berry(t *testing.T) {
	t.Parallel()

	content := `# This file is generated by running "yarn install" inside your project.

__metadata:
  version: 6
  cacheKey: 8

"app@workspace:.":
  version: 0.0.0-use.local
  resolution: "app@workspace:."
  dependencies:
    express: ^4.18.0
    jest: ^29.0.0
  languageName: unknown
  linkType: soft

"express@npm:^4.18.0":
  version: 4.18.2
  resolution: "express@npm:4.18.2"
  dependencies:
    debug: 2.6.9
  checksum: abc
  languageName: node
  linkType: hard

"debug@npm:2.6.9":
  version: 2.6.9
  resolution: "debug@npm:2.6.9"
  languageName: node
  linkType: hard

"jest@npm:^29.0.0":
  version: 29.7.0
  resolution: "jest@npm:29.7.0"
  languageName: node
  linkType: hard
`

	expectDeps(t, lockfile.YarnLockParser{}, content, []dep{
		{Name: "debug", Version: "2.6.9", Path: []string{"express", "debug"}},
		{Name: "express", Version: "4.18.2", Path: []string{"express"}},
		{Name: "jest", Version: "29.7.0", Path: []string{"jest"}},
	})

	g, err := lockfile.Parse(lockfile.YarnLockParser{}, "yarn.lock", []byte(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.HasRoots() {
		t.Errorf("expected the workspace entry to declare roots")
	}
	if g.HasDevInfo {
		t.Errorf("expected yarn.lock to not carry dev information")
	}
}

func TestYarnLockParser_InvalidHeader(t *testing.T) {
	t.Parallel()

	_, err := lockfile.Parse(lockfile.YarnLockParser{}, "yarn.lock", []byte("# yarn lockfile v1\n\nnot a header\n  version \"1.0.0\"\n"))
	if err == nil {
		t.Fatalf("expected an error")
	}
}
