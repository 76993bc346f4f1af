package intent

// NormalizeArguments coerces a raw arguments value into a flat argument map.
// It never fails:
//
//   - a map is returned as is (nil becomes an empty map)
//   - a non-empty list whose first element is a map yields that map
//   - anything else yields an empty map
func NormalizeArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		if a != nil {
			return a
		}
	case []any:
		if len(a) > 0 {
			if m, ok := a[0].(map[string]any); ok && m != nil {
				return m
			}
		}
	case []map[string]any:
		if len(a) > 0 && a[0] != nil {
			return a[0]
		}
	}
	return map[string]any{}
}
