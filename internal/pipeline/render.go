package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Renderer writes stage artifacts as indented JSON files under one
// output directory.
type Renderer struct {
	dir string
}

// NewRenderer creates a renderer writing into dir.
func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// WriteJSON marshals v and writes it to <dir>/<name>.
func (r *Renderer) WriteJSON(name string, v interface{}) (string, error) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// ReadJSON loads <dir>/<name> into v, for stages resuming from a previous
// run's artifacts.
func (r *Renderer) ReadJSON(name string, v interface{}) error {
	path := filepath.Join(r.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Artifact file names, one per stage.
const (
	ExtractionsFile = "extractions.json"
	IssuesFile      = "integrity_issues.json"
	AggregationFile = "aggregation.json"
	AxesFile        = "persona_axes.json"
	PersonasFile    = "personas.json"
	ComparisonFile  = "comparison.json"
)
