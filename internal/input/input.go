// Package input loads the job list document, either a flat issue list or
// the batched output of an upstream planner, as JSON or YAML.
package input

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wscffaa/claude-gh-skills-sub000/internal/batcher"
)

var (
	// ErrInvalidDocument is returned when the document cannot be parsed
	// or does not match the job list schema
	ErrInvalidDocument = errors.New("invalid job document")
	// ErrNoJobs is returned when the document holds no usable job
	ErrNoJobs = errors.New("no jobs in input")
	// ErrNoInput is returned when neither a file nor piped stdin is given
	ErrNoInput = errors.New("no input: pass --input or pipe a document on stdin")
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "mem://gh-implement/jobs.schema.json"

var documentSchema = jsonschema.MustCompileString(schemaURL, schemaJSON)

// Document is a loaded job list
type Document struct {
	Entries []batcher.Entry
	// Warnings holds upstream warnings verbatim, followed by warnings about
	// entries that were dropped while loading
	Warnings []string
}

// Load reads the document at path. An empty path or "-" reads stdin.
func Load(path string, stdin io.Reader) (*Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		if stdin == nil {
			return nil, ErrNoInput
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoInput
	}
	return Parse(data)
}

// Parse decodes and validates a job document
func Parse(data []byte) (*Document, error) {
	raw, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := documentSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	top := raw.(map[string]any)
	doc := &Document{}
	for _, w := range asSlice(top["warnings"]) {
		if s, ok := w.(string); ok {
			doc.Warnings = append(doc.Warnings, s)
		}
	}

	if issues, ok := top["issues"]; ok {
		for _, item := range asSlice(issues) {
			doc.add(item, nil, false)
		}
	}
	for _, b := range asSlice(top["batches"]) {
		batch, _ := b.(map[string]any)
		prio, hasPrio := batch["priority"]
		for _, item := range asSlice(batch["issues"]) {
			doc.add(item, prio, hasPrio)
		}
	}

	if len(doc.Entries) == 0 {
		return doc, ErrNoJobs
	}
	return doc, nil
}

// add converts one issue entry. Batched entries inherit the batch priority
// unless they carry their own.
func (d *Document) add(item any, batchPrio any, hasBatchPrio bool) {
	var e batcher.Entry
	if hasBatchPrio {
		e.Priority = batchPrio
	}

	switch v := item.(type) {
	case map[string]any:
		id, ok := intValue(v["number"])
		if !ok {
			id, ok = intValue(v["id"])
		}
		if !ok || id <= 0 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("invalid entry: %v has no positive number, skipped", compact(v)))
			return
		}
		e.ID = id
		e.Title, _ = v["title"].(string)
		e.Body, _ = v["body"].(string)
		if p, ok := v["priority"]; ok {
			e.Priority = p
		}
		for _, dep := range asSlice(v["dependencies"]) {
			if n, ok := intValue(dep); ok && n > 0 {
				e.Dependencies = append(e.Dependencies, n)
			}
		}
	default:
		id, ok := intValue(v)
		if !ok || id <= 0 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("invalid entry: %v is not a positive job number, skipped", v))
			return
		}
		e.ID = id
	}

	d.Entries = append(d.Entries, e)
}

// decode parses JSON, or YAML when the data is not JSON. Numbers come out
// as json.Number so the schema sees exact integers.
func decode(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return v, nil
		}
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	// round trip so YAML values take the same shape as JSON ones
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.Atoi(n.String())
		return i, err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(n), "#"))
		return i, err == nil
	}
	return 0, false
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
