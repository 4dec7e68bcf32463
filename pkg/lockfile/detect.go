package lockfile

import (
	"fmt"
	"path/filepath"

	"github.com/depscan/depscan/pkg/depgraph"
	"github.com/depscan/depscan/pkg/models"
)

// DetectParser picks the parser for a file.
//
// Parsers whose conventional filename matches are tried first, and must
// also accept the content, through ValidateMatched when they have it. Failing that, every parser's content signature
// is tried with lockfiles ahead of manifests, so a renamed lockfile is still
// recognized as one.
func DetectParser(filename string, content []byte) (Parser, error) {
	parsers := List()
	base := filepath.Base(filename)

	for _, p := range parsers {
		if p.MatchesFilename(base) && validateMatched(p, content) {
			return p, nil
		}
	}

	for _, p := range parsers {
		if validate(p, content) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", filename, ErrUnknownFormat)
}

// Detect classifies content as one of the registered formats.
func Detect(filename string, content []byte) (models.Format, error) {
	p, err := DetectParser(filename, content)
	if err != nil {
		return models.FormatUnknown, err
	}

	return p.Format(), nil
}

func validateMatched(p Parser, content []byte) (ok bool) {
	mv, isMatched := p.(MatchedValidator)
	if !isMatched {
		return validate(p, content)
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	return mv.ValidateMatched(content)
}

func validate(p Parser, content []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	return p.Validate(content)
}

// Parse runs a parser over content from the named source, converting any
// failure (including a panic) into a *ParseError.
func Parse(p Parser, source string, content []byte) (g *depgraph.Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = &ParseError{
				Format: p.Format(),
				Source: source,
				Reason: fmt.Sprintf("parser panicked: %v", r),
			}
		}
	}()

	g, err = p.Parse(content)
	if err != nil {
		perr := asParseError(p.Format(), err, content)
		perr.Source = source

		return nil, perr
	}

	g.Source = source

	return g, nil
}

// ParseDependencies parses content and flattens the resulting graph.
func ParseDependencies(p Parser, source string, content []byte) ([]models.Dependency, error) {
	g, err := Parse(p, source, content)
	if err != nil {
		return nil, err
	}

	return g.Dependencies(), nil
}

func asParseError(format models.Format, err error, content []byte) *ParseError {
	if perr, ok := err.(*ParseError); ok {
		clone := *perr
		if clone.Format == "" {
			clone.Format = format
		}

		return &clone
	}

	return newParseError(format, err, content)
}
