package executor

import (
	"context"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/prbot"
)

// ReviewGate is the Artifacts implementation backed by GitHub pull requests:
// the artifact of job N is the open PR from branch issue-N, reviewed by the
// agent and merged with gh
type ReviewGate struct {
	prs        *prbot.PRBot
	agent      *Agent
	skipReview bool
}

// NewReviewGate creates a ReviewGate
func NewReviewGate(prs *prbot.PRBot, agent *Agent) *ReviewGate {
	return &ReviewGate{prs: prs, agent: agent}
}

// SetSkipReview disables the agent review; pull requests are merged as soon
// as they are found
func (g *ReviewGate) SetSkipReview(skip bool) {
	g.skipReview = skip
}

// Find implements Artifacts
func (g *ReviewGate) Find(ctx context.Context, jobID int) (int, error) {
	return g.prs.FindPR(ctx, jobID)
}

// Review implements Artifacts. The diff, when available, decides whether
// the review prompt gets an extra focus instruction.
func (g *ReviewGate) Review(ctx context.Context, jobID, pr int, dir string) WorkResult {
	if g.skipReview {
		return WorkResult{}
	}
	var focus string
	if diff, err := g.prs.GetDiff(ctx, pr); err == nil {
		focus = prbot.ReviewFocus(prbot.AnalyzeDiff(diff))
	}
	return g.agent.Review(ctx, jobID, pr, dir, focus)
}

// Integrate implements Artifacts
func (g *ReviewGate) Integrate(ctx context.Context, pr int) error {
	return g.prs.MergePR(ctx, pr)
}
