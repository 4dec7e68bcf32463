// Package lockfile detects and parses dependency manifests and lockfiles
// into dependency graphs.
package lockfile

import (
	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

// Kind separates human-authored manifests from machine-generated lockfiles.
type Kind string

const (
	KindManifest Kind = "manifest"
	KindLockfile Kind = "lockfile"
)

// Priority returns the source-of-truth score of a kind of file.
func (k Kind) Priority() int {
	switch k {
	case KindLockfile:
		return models.PriorityLockfile
	case KindManifest:
		return models.PriorityManifest
	}

	return models.PriorityUnknown
}

// Parser turns the content of one file format into a dependency graph.
//
// Parse must not retain or mutate anything outside of the graph it returns,
// and must either return a complete graph or an error.
type Parser interface {
	Format() models.Format
	Ecosystem() models.Ecosystem
	Kind() Kind
	// MatchesFilename reports whether a file with the given base name is
	// conventionally of this format.
	MatchesFilename(name string) bool
	// Validate reports whether content structurally looks like this format.
	Validate(content []byte) bool
	Parse(content []byte) (*depgraph.Graph, error)
}

// MatchedValidator is implemented by parsers that accept more content once
// the filename is already known to be theirs. Detection by content alone
// still goes through Validate.
type MatchedValidator interface {
	ValidateMatched(content []byte) bool
}
