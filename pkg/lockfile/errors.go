package lockfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/depscan/depscan/pkg/models"
)

// ErrUnknownFormat is returned when no registered parser recognizes a file.
var ErrUnknownFormat = errors.New("unknown manifest or lockfile format")

// ParseError describes why a file could not be parsed.
type ParseError struct {
	Format models.Format
	Source string
	// Line is 1-based, or 0 if not known.
	Line    int
	Section string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	var sb strings.Builder

	if e.Source != "" {
		sb.WriteString(e.Source)
		sb.WriteString(": ")
	}

	fmt.Fprintf(&sb, "could not parse as %s: %s", e.Format, e.Reason)

	if e.Line > 0 {
		fmt.Fprintf(&sb, " (line %d)", e.Line)
	}
	if e.Section != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Section)
	}

	return sb.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(format models.Format, err error, content []byte) *ParseError {
	return &ParseError{
		Format: format,
		Line:   errorLine(err, content),
		Reason: err.Error(),
		Err:    err,
	}
}

// errorLine works out the line an underlying decoder error refers to.
func errorLine(err error, content []byte) int {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tomlErr toml.ParseError

	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	case errors.As(err, &tomlErr):
		return tomlErr.Position.Line
	}

	if offset < 0 {
		return 0
	}
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}

	return bytes.Count(content[:offset], []byte("\n")) + 1
}
