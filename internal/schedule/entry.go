// Package schedule triggers runs of configured input documents on cron
// expressions.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/config"
)

// DefaultMaxDuration bounds a scheduled run when the config sets no limit
const DefaultMaxDuration = 4 * time.Hour

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Entry is one scheduled input document
type Entry struct {
	Name        string
	Cron        string
	Input       string
	MaxDuration time.Duration
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Validate checks the entry and fills in defaults
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("schedule %s: cron expression is required", e.Name)
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("schedule %s: invalid cron expression: %w", e.Name, err)
	}
	if e.Input == "" {
		return fmt.Errorf("schedule %s: input is required", e.Name)
	}
	if e.MaxDuration <= 0 {
		e.MaxDuration = DefaultMaxDuration
	}
	return nil
}

// FromConfig converts the [[schedule]] tables of a config
func FromConfig(cfgs []config.ScheduleConfig) []Entry {
	entries := make([]Entry, 0, len(cfgs))
	for _, c := range cfgs {
		entries = append(entries, Entry{
			Name:        c.Name,
			Cron:        c.Cron,
			Input:       c.Input,
			MaxDuration: c.MaxDuration.Duration,
		})
	}
	return entries
}
