// Package notify sends the end-of-run summary to the desktop and to Slack.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/report"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Time    time.Time
	Details []Detail
}

// Detail is a labelled value shown by notifiers that support it
type Detail struct {
	Label string
	Value string
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers, joining their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

// RunFinished builds the notification for a finished run
func RunFinished(runID string, s report.Summary, interrupted bool) Notification {
	n := Notification{RunID: runID, Time: time.Now()}

	switch {
	case interrupted:
		n.Type = NotifyWarning
		n.Title = "gh-implement run interrupted"
	case s.AllCompleted():
		n.Type = NotifySuccess
		n.Title = "gh-implement run completed"
	case len(s.Completed) == 0:
		n.Type = NotifyError
		n.Title = "gh-implement run failed"
	default:
		n.Type = NotifyWarning
		n.Title = "gh-implement run finished with failures"
	}

	parts := []string{fmt.Sprintf("%d/%d completed", len(s.Completed), s.Total())}
	if len(s.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", len(s.Failed)))
	}
	if len(s.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", len(s.Skipped)))
	}
	if len(s.Interrupted) > 0 {
		parts = append(parts, fmt.Sprintf("%d interrupted", len(s.Interrupted)))
	}
	if s.TotalRetries > 0 {
		parts = append(parts, fmt.Sprintf("%d retries", s.TotalRetries))
	}
	n.Message = strings.Join(parts, ", ")

	n.Details = []Detail{
		{Label: "Completed", Value: fmt.Sprintf("%d/%d", len(s.Completed), s.Total())},
		{Label: "Failed", Value: fmt.Sprintf("%d", len(s.Failed))},
		{Label: "Retries", Value: fmt.Sprintf("%d", s.TotalRetries)},
		{Label: "Job time", Value: domain.FormatDuration(s.TotalElapsed)},
	}
	return n
}
