package notify

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/proc"
)

// DesktopNotifier sends desktop notifications
type DesktopNotifier struct {
	enabled bool
	runner  proc.Runner
	goos    string
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool, runner proc.Runner) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled, runner: runner, goos: runtime.GOOS}
}

// Send sends a desktop notification
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	var cmd proc.Command
	switch d.goos {
	case "darwin":
		script := `display notification "` + appleScriptQuote(n.Message) + `" with title "` + appleScriptQuote(n.Title) + `"`
		cmd = proc.Command{Name: "osascript", Args: []string{"-e", script}}
	case "linux":
		cmd = proc.Command{Name: "notify-send", Args: []string{"--icon", IconForType(n.Type), n.Title, n.Message}}
	default:
		return nil // Unsupported
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res := d.runner.Run(ctx, cmd)
	if res.NotFound() {
		return nil
	}
	if !res.OK() {
		return fmt.Errorf("%s: %s", cmd.Name, res.Detail())
	}
	return nil
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// IconForType returns an icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}
