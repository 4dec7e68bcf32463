package lockfile

import (
	"maps"
	"slices"
)

// sortedKeys keeps graph construction deterministic regardless of map order.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
