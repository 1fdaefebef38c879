// Package gate decides whether a buffer should be formatted before it is saved.
package gate

import (
	"strings"
)

// Decision is the outcome of evaluating the on_save setting for a path.
type Decision int

const (
	// Run means the buffer should be formatted before saving.
	Run Decision = iota
	// Skip means the buffer should be saved as is.
	Skip
	// Invalid means on_save is malformed. The buffer is saved as is and the problem reported.
	Invalid
)

func (d Decision) String() string {
	switch d {
	case Run:
		return "run"
	case Skip:
		return "skip"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

const (
	keyIncluding = "including"
	keyExcluding = "excluding"
)

// Decide evaluates onSave for path.
// onSave is the decoded on_save setting: a bool, or a table with optional `including` and `excluding` lists of
// strings which are matched as substrings of path. A nil onSave means the setting is absent and defaults to Run.
func Decide(onSave any, path string) Decision {
	switch v := onSave.(type) {
	case nil:
		return Run
	case bool:
		if v {
			return Run
		}

		return Skip
	case map[string]any:
		return decideFilter(func(key string) (any, bool) {
			value, ok := v[key]

			return value, ok
		}, path)
	case map[string][]string:
		return decideFilter(func(key string) (any, bool) {
			value, ok := v[key]

			return value, ok
		}, path)
	default:
		return Invalid
	}
}

func decideFilter(lookup func(key string) (any, bool), path string) Decision {
	included, includedOK := matchAny(lookup, keyIncluding, path, true)
	excluded, excludedOK := matchAny(lookup, keyExcluding, path, false)

	if !includedOK || !excludedOK {
		return Invalid
	}

	if included && !excluded {
		return Run
	}

	return Skip
}

// matchAny reports whether path contains any of the strings listed under key, or def when key is absent.
// ok is false when the value under key is not a list of strings.
func matchAny(lookup func(key string) (any, bool), key string, path string, def bool) (matched bool, ok bool) {
	value, present := lookup(key)
	if !present {
		return def, true
	}

	patterns, ok := stringList(value)
	if !ok {
		return false, false
	}

	for _, pattern := range patterns {
		if strings.Contains(path, pattern) {
			return true, true
		}
	}

	return false, true
}

func stringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		list := make([]string, len(v))

		for idx, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}

			list[idx] = s
		}

		return list, true
	default:
		return nil, false
	}
}
