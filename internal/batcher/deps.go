package batcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultMarkers are the phrases that introduce a dependency reference in
// free text, e.g. "Depends on #12"
var DefaultMarkers = []string{"Depends on", "依赖", "Blocked by", "Part of"}

// Extractor pulls dependency ids out of a job's free text. Implementations
// must not return jobID itself.
type Extractor func(jobID int, text string) []int

// MarkerExtractor returns an Extractor matching "<marker> #N" for any of the
// given markers, case-insensitively. With no markers DefaultMarkers is used.
func MarkerExtractor(markers ...string) Extractor {
	quoted := quoteMarkers(markers)
	if len(quoted) == 0 {
		quoted = quoteMarkers(DefaultMarkers)
	}
	re := regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\s*#(\d+)`)

	return func(jobID int, text string) []int {
		seen := make(map[int]bool)
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			dep, err := strconv.Atoi(m[1])
			if err != nil || dep <= 0 || dep == jobID {
				continue
			}
			seen[dep] = true
		}
		deps := make([]int, 0, len(seen))
		for d := range seen {
			deps = append(deps, d)
		}
		sort.Ints(deps)
		return deps
	}
}

func quoteMarkers(markers []string) []string {
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(m))
	}
	return quoted
}

// NoExtraction ignores free text entirely; only structured dependencies count
func NoExtraction(int, string) []int { return nil }
