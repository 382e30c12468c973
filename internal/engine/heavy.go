package engine

import (
	"regexp"
	"slices"
	"strings"
)

// DefaultHeavyImports is the watch-list of modules that are slow to load.
var DefaultHeavyImports = []string{
	"numpy",
	"pandas",
	"matplotlib",
	"scipy",
	"sklearn",
	"seaborn",
	"plotly",
	"torch",
	"tensorflow",
}

var loadPattern = regexp.MustCompile(`\bload\(\s*["']([^"']+)["']`)

// ScanHeavyImports returns the watched modules loaded by text, in order of
// first appearance. A module path matches on its last element with any
// ".star" suffix removed.
func ScanHeavyImports(text string, watch []string) []string {
	var found []string
	for _, m := range loadPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if i := strings.LastIndexAny(name, "/:"); i >= 0 {
			name = name[i+1:]
		}
		name = strings.TrimSuffix(name, ".star")
		if slices.Contains(watch, name) && !slices.Contains(found, name) {
			found = append(found, name)
		}
	}
	return found
}
