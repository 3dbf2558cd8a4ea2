package executor

import (
	"strings"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/domain"
	"github.com/wscffaa/claude-gh-skills-sub000/internal/prompts"
)

// SanitizeTitle removes carriage returns and NUL bytes from a title
func SanitizeTitle(title string) string {
	return strings.NewReplacer("\r", "", "\x00", "").Replace(title)
}

func taskData(job *domain.Job) prompts.TaskData {
	return prompts.TaskData{
		ID:     job.ID,
		Title:  SanitizeTitle(job.Title),
		Branch: job.Branch(),
		Body:   job.Body,
	}
}
