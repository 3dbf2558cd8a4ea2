package workspace

import (
	"context"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
)

// ReleaseFunc removes one resource and reports the outcome
type ReleaseFunc func(ctx context.Context) domain.CleanupOutcome

// ReleaseWithFallback runs graceful and, only if it fails, forced. The
// failure detail of both steps is kept when forced fails as well.
func ReleaseWithFallback(ctx context.Context, graceful, forced ReleaseFunc) domain.CleanupOutcome {
	first := graceful(ctx)
	if first.OK {
		return first
	}

	second := forced(ctx)
	second.Forced = true
	if !second.OK {
		second.Detail = first.Detail + "; forced: " + second.Detail
	}
	return second
}
