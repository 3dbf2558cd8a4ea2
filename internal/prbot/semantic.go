package prbot

import (
	"regexp"
)

// Category is the kind of change a pull request makes, used to steer the
// review
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryMigrations   Category = "migrations"
	CategoryArchitecture Category = "architecture"
	CategoryRoutine      Category = "routine"
)

var (
	securityPatterns = compileAll(
		`(?i)auth`,
		`(?i)password`,
		`(?i)credential`,
		`(?i)secret`,
		`(?i)token`,
		`(?i)encrypt`,
		`(?i)permission`,
		`(?i)oauth`,
	)

	migrationPatterns = compileAll(
		`migrations/`,
		`(?i)CREATE\s+TABLE`,
		`(?i)ALTER\s+TABLE`,
		`(?i)DROP\s+TABLE`,
	)

	architecturePatterns = compileAll(
		`go\.mod`,
		`package\.json`,
		`pyproject\.toml`,
		`requirements\.txt`,
		`(?i)\.github/workflows/`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// AnalyzeDiff categorizes a diff by its content
func AnalyzeDiff(diff string) Category {
	// Check in order of priority
	switch {
	case matchesAny(diff, securityPatterns):
		return CategorySecurity
	case matchesAny(diff, migrationPatterns):
		return CategoryMigrations
	case matchesAny(diff, architecturePatterns):
		return CategoryArchitecture
	}
	return CategoryRoutine
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ReviewFocus returns an extra review instruction for a category, or ""
func ReviewFocus(c Category) string {
	switch c {
	case CategorySecurity:
		return "The change touches authentication or secrets handling; check it for security issues first."
	case CategoryMigrations:
		return "The change contains a database migration; check that it is reversible and safe on existing data."
	case CategoryArchitecture:
		return "The change modifies dependencies or CI configuration; check that it is intended and minimal."
	}
	return ""
}
