package cmdlogger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// invalidConfigPrefix marks error records caused by an unusable config file.
const invalidConfigPrefix = "Invalid config file"

type Handler struct {
	mu                 *sync.Mutex
	stdout             io.Writer
	stderr             io.Writer
	attrs              []slog.Attr
	state              *handlerState
	everythingToStderr bool
	Level              slog.Leveler
}

type handlerState struct {
	hasErrored                     bool
	hasErroredBecauseInvalidConfig bool
	warnings                       int
}

// SendEverythingToStderr tells the logger to send all logs to stderr regardless
// of their level.
//
// This is useful if we're expecting to output structured data to stdout such
// as JSON, which cannot be mixed with other output.
func (c *Handler) SendEverythingToStderr() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.everythingToStderr = true
}

func (c *Handler) SetLevel(level slog.Leveler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Level = level
}

func (c *Handler) writer(level slog.Level) io.Writer {
	if c.everythingToStderr || level >= slog.LevelWarn {
		return c.stderr
	}

	return c.stdout
}

func (c *Handler) Enabled(_ context.Context, level slog.Level) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if level >= slog.LevelError {
		c.state.hasErrored = true
	}

	return level >= c.Level.Level()
}

func (c *Handler) Handle(_ context.Context, record slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case record.Level >= slog.LevelError:
		c.state.hasErrored = true

		if strings.HasPrefix(record.Message, invalidConfigPrefix) {
			c.state.hasErroredBecauseInvalidConfig = true
		}
	case record.Level >= slog.LevelWarn:
		c.state.warnings++
	}

	var sb strings.Builder
	sb.WriteString(record.Message)

	writeAttr := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Resolve())

		return true
	}

	for _, a := range c.attrs {
		writeAttr(a)
	}
	record.Attrs(writeAttr)
	sb.WriteString("\n")

	_, err := io.WriteString(c.writer(record.Level), sb.String())

	return err
}

// HasErrored returns true if there have been any calls to Handle with
// a level of [slog.LevelError]
func (c *Handler) HasErrored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.hasErrored
}

// HasErroredBecauseInvalidConfig returns true if there have been any calls to
// Handle with a level of [slog.LevelError] due to a config file being invalid
func (c *Handler) HasErroredBecauseInvalidConfig() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.hasErroredBecauseInvalidConfig
}

// Warnings returns how many records at [slog.LevelWarn] have been handled.
func (c *Handler) Warnings() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.warnings
}

// WithAttrs returns a handler sharing this handler's outputs and error state
// which appends attrs to every record as key=value pairs.
func (c *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := *c
	clone.attrs = append(append([]slog.Attr{}, c.attrs...), attrs...)

	return &clone
}

func (c *Handler) WithGroup(_ string) slog.Handler {
	return c
}

var _ CmdLogger = &Handler{}

func New(stdout, stderr io.Writer) CmdLogger {
	return &Handler{
		mu:     &sync.Mutex{},
		stdout: stdout,
		stderr: stderr,
		state:  &handlerState{},
		Level:  slog.LevelInfo,
	}
}
