package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Sink writes report artifacts. Reports are never deleted by this
// process; cleanup is the operator's business.
type Sink struct {
	dir string
	now func() time.Time
}

// NewSink creates a sink writing under dir (os.TempDir when empty).
func NewSink(dir string) *Sink {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Sink{dir: dir, now: time.Now}
}

// Write stores the full markdown report and returns its path.
func (s *Sink) Write(tool, content string) (string, error) {
	name := fmt.Sprintf("%s_%s.md", tool, s.now().Format("2006-01-02T15-04-05"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing report %s: %w", path, err)
	}
	return path, nil
}

// WriteHTML stores a terminal envelope's html_content at the path the
// orchestrator named.
func (s *Sink) WriteHTML(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing html report %s: %w", path, err)
	}
	return nil
}
