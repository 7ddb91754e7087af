package configlet

import (
	"regexp"
	"sort"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// ResolveVariables replaces all {{var}} placeholders in s with values from
// vars. Placeholders without a value are left in place.
func ResolveVariables(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct variable names referenced by s, sorted.
func Placeholders(s string) []string {
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		seen[m[1]] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MergeVars overlays each map onto the previous one; later maps win.
func MergeVars(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// normalizeBody trims the blank lines YAML block scalars tend to carry and
// guarantees a single trailing newline.
func normalizeBody(s string) string {
	return strings.Trim(s, "\n") + "\n"
}
