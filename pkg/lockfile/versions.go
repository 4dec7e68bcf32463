package lockfile

import (
	"strings"

	"github.com/depscan/depscan/internal/cachedregexp"
)

// anyVersion is the placeholder used when a manifest puts no constraint on a
// dependency at all.
const anyVersion = "*"

const semverPattern = `\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?`

// exactNpmVersion returns the single version an npm range names, if it names one.
func exactNpmVersion(constraint string) (string, bool) {
	c := strings.TrimSpace(constraint)
	c = strings.TrimPrefix(c, "=")
	c = strings.TrimPrefix(c, "v")

	if cachedregexp.MatchString(`^`+semverPattern+`$`, c) {
		return c, true
	}

	return "", false
}

// exactPythonVersion returns the version pinned by a PEP 440 specifier set
// such as "==1.2.3", if it pins exactly one.
func exactPythonVersion(specifier string) (string, bool) {
	s := strings.TrimSpace(specifier)
	if strings.Contains(s, ",") {
		return "", false
	}

	var v string
	switch {
	case strings.HasPrefix(s, "==="):
		v = strings.TrimSpace(s[3:])
	case strings.HasPrefix(s, "=="):
		v = strings.TrimSpace(s[2:])
	default:
		return "", false
	}

	if v == "" || strings.Contains(v, "*") {
		return "", false
	}

	return v, true
}

// exactPoetryVersion handles Poetry's convention that a bare version is an
// exact pin, in addition to PEP 440 specifiers.
func exactPoetryVersion(constraint string) (string, bool) {
	c := strings.TrimSpace(constraint)
	if cachedregexp.MatchString(`^\d+(?:\.\d+)*(?:[a-zA-Z0-9.+-]*)$`, c) {
		return c, true
	}

	return exactPythonVersion(c)
}

// exactCargoVersion only treats "=x.y.z" as exact; Cargo reads a bare version as a caret range.
func exactCargoVersion(constraint string) (string, bool) {
	c := strings.TrimSpace(constraint)
	if !strings.HasPrefix(c, "=") {
		return "", false
	}

	c = strings.TrimSpace(c[1:])
	if cachedregexp.MatchString(`^`+semverPattern+`$`, c) {
		return c, true
	}

	return "", false
}

// normalizePythonName normalizes a distribution name per PEP 503.
func normalizePythonName(name string) string {
	name, _, _ = strings.Cut(name, "[")
	name = cachedregexp.MustCompile(`[-_.]+`).ReplaceAllString(strings.TrimSpace(name), "-")

	return strings.ToLower(name)
}

func orAnyVersion(constraint string) string {
	if strings.TrimSpace(constraint) == "" {
		return anyVersion
	}

	return strings.TrimSpace(constraint)
}
