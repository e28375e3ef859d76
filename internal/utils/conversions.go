package utils

// ToStringSlice converts a decoded JSON claim into strings. A single string becomes a
// one element slice; non-string members of an array are dropped.
func ToStringSlice(v any) []string {
	stringSlice := make([]string, 0)
	switch t := v.(type) {
	case string:
		stringSlice = append(stringSlice, t)
	case []string:
		stringSlice = append(stringSlice, t...)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}

// Unique returns values without duplicates, keeping first-seen order.
func Unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
