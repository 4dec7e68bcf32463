// Package cachedregexp compiles each regular expression once per process,
// so patterns can be written inline where they are used.
package cachedregexp

import (
	"regexp"
	"sync"
)

var cache sync.Map

func MustCompile(exp string) *regexp.Regexp {
	if compiled, ok := cache.Load(exp); ok {
		return compiled.(*regexp.Regexp)
	}

	compiled, _ := cache.LoadOrStore(exp, regexp.MustCompile(exp))

	return compiled.(*regexp.Regexp)
}

// MatchString reports whether s contains a match of the pattern exp.
func MatchString(exp, s string) bool {
	return MustCompile(exp).MatchString(s)
}

// FindStringSubmatch returns the leftmost match of exp in s and its groups.
func FindStringSubmatch(exp, s string) []string {
	return MustCompile(exp).FindStringSubmatch(s)
}
