package fields

import "strings"

// RawMap is the sparse result of extraction: canonical field name to the
// trimmed captured string. A field with no match is absent.
type RawMap map[string]string

// Get returns the raw value and whether the field matched.
func (m RawMap) Get(field string) (string, bool) {
	v, ok := m[field]
	return v, ok
}

// Extract runs every rule once over text and keeps the first match of each.
// A capture that is empty after trimming counts as no match.
func Extract(text string, rules []Rule) RawMap {
	out := make(RawMap, len(rules))
	if text == "" {
		return out
	}
	for _, r := range rules {
		m := r.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			out[r.Field] = v
		}
	}
	return out
}
