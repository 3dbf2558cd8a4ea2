package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template names
const (
	TaskTemplate   = "task.md"
	ReviewTemplate = "review.md"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // checked in order, first match wins
	cache        map[string]*template.Template
	metaCache    map[string]*TemplateMeta
	mu           sync.RWMutex
}

// TemplateMeta is the optional frontmatter of an override template
type TemplateMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// TaskData holds the variables of the task template
type TaskData struct {
	ID     int
	Title  string
	Branch string
	Body   string
}

// ReviewData holds the variables of the review template. Focus is an
// optional extra instruction.
type ReviewData struct {
	PR    int
	Focus string
}

// NewLoader creates a loader with the given override directories.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
		metaCache:    make(map[string]*TemplateMeta),
	}
}

// DefaultLoader creates a loader with standard override paths:
// 1. Repository: <repoDir>/.gh-implement/prompts/
// 2. User config: ~/.config/gh-implement/prompts/
func DefaultLoader(repoDir string) *Loader {
	home, _ := os.UserHomeDir()
	var dirs []string
	if repoDir != "" {
		dirs = append(dirs, filepath.Join(repoDir, ".gh-implement", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "gh-implement", "prompts"))
	return NewLoader(dirs...)
}

func (l *Loader) loadContent(name string) ([]byte, error) {
	for _, dir := range l.overrideDirs {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return data, nil
		}
	}
	return fs.ReadFile(embeddedFS, path.Join("templates", name))
}

// parseFrontmatter splits content into frontmatter and body.
func parseFrontmatter(content []byte) (*TemplateMeta, string, error) {
	str := string(content)

	if !strings.HasPrefix(str, "---\n") {
		return nil, str, nil
	}

	end := strings.Index(str[4:], "\n---\n")
	if end == -1 {
		return nil, str, nil // malformed, treat as no frontmatter
	}

	frontmatter := str[4 : 4+end]
	body := str[4+end+5:]

	var meta TemplateMeta
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}

	return &meta, body, nil
}

// LoadTemplate loads and parses a template by name, e.g. "task.md"
func (l *Loader) LoadTemplate(name string) (*template.Template, *TemplateMeta, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[name]; ok {
		meta := l.metaCache[name]
		l.mu.RUnlock()
		return tmpl, meta, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(name)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", name, err)
	}

	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("compile template %s: %w", name, err)
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.metaCache[name] = meta
	l.mu.Unlock()

	return tmpl, meta, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(name string, data any) (string, error) {
	tmpl, _, err := l.LoadTemplate(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// BuildTaskPrompt renders the task template
func (l *Loader) BuildTaskPrompt(data TaskData) (string, error) {
	return l.Execute(TaskTemplate, data)
}

// BuildReviewPrompt renders the review template
func (l *Loader) BuildReviewPrompt(data ReviewData) (string, error) {
	return l.Execute(ReviewTemplate, data)
}
