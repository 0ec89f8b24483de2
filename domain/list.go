package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ListValues flattens a single value, a comma separated string or a sequence of
// (possibly comma separated) values into trimmed, non-empty, de-duplicated
// strings. Insertion order is kept. A nil value yields an empty slice.
func ListValues(v any) []string {
	out := []string{}
	seen := map[string]struct{}{}
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}

	switch val := v.(type) {
	case nil:
	case []string:
		for _, s := range val {
			add(s)
		}
	case []any:
		for _, item := range val {
			if item == nil {
				continue
			}
			add(stringify(item))
		}
	default:
		add(stringify(val))
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
