package cmdlogger

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

var levels = []slog.Level{
	slog.LevelError,
	slog.LevelWarn,
	slog.LevelInfo,
	slog.LevelDebug,
}

// Levels lists the accepted verbosity names, most quiet first.
func Levels() []string {
	names := make([]string, 0, len(levels))
	for _, lvl := range levels {
		names = append(names, strings.ToLower(lvl.String()))
	}

	return names
}

// ParseLevel accepts one of Levels, in any case. Offsets such as "info+2"
// are not accepted.
func ParseLevel(text string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(text)); err != nil || !slices.Contains(levels, lvl) || strings.ContainsAny(text, "+-") {
		return slog.LevelInfo, fmt.Errorf("invalid verbosity level \"%s\" - must be one of: %s", text, strings.Join(Levels(), ", "))
	}

	return lvl, nil
}
