// Package prompts renders the task and review texts handed to the coding
// agent, with per-repository and per-user overrides.
package prompts

import "embed"

//go:embed templates/*.md
var embeddedFS embed.FS
