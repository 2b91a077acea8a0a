package espnow

import (
	"fmt"
	"strconv"
	"strings"
)

// notFound is the no-update sentinel nodes send when a reading failed.
const notFound = "not_found"

// slug lowercases s and replaces spaces and hyphens with underscores.
func slug(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(s))
}

// truthy reports the truth value of a decoded scalar or container.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case Object:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// asNumber returns v as float64 when it is numeric.
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// sameValue compares decoded values, treating numbers by value so that
// payloads restored from a snapshot compare equal to freshly decoded ones.
func sameValue(a, b any) bool {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}

	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !sameValue(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !sameValue(at[i], bt[i]) {
				return false
			}
		}
		return true
	case Object:
		return sameValue(at.Map(), plain(b))
	default:
		if _, ok := b.(Object); ok {
			return false
		}
		return a == b
	}
}

// formatValue renders a payload value for human-readable text.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
