package lockfile

import (
	"strings"

	"github.com/BurntSushi/toml"
)

// decodeTOML decodes content, ignoring keys the target does not declare.
func decodeTOML(content []byte, v any) error {
	_, err := toml.Decode(string(content), v)

	return err
}

// tomlTableHas reports whether the top-level table contains all the given
// dotted keys, e.g. "tool.poetry".
func tomlTableHas(doc map[string]any, dotted string) bool {
	cur := doc
	parts := strings.Split(dotted, ".")

	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			return true
		}

		next, ok := v.(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}

	return false
}

// tomlConstraint extracts the version constraint from a dependency entry
// that is either a string or a table with a "version" key. ok is false when
// the entry does not come from a registry, such as git or path sources.
func tomlConstraint(entry any) (string, bool) {
	switch v := entry.(type) {
	case string:
		return v, true
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return version, true
		}
		for _, key := range []string{"git", "path", "url", "file"} {
			if _, ok := v[key]; ok {
				return "", false
			}
		}

		return "", true
	case []map[string]any:
		// multiple constraints, e.g. per python version; the first one wins
		if len(v) > 0 {
			return tomlConstraint(v[0])
		}
	case []any:
		if len(v) > 0 {
			return tomlConstraint(v[0])
		}
	}

	return "", false
}
