package filereader

import (
	"os"
)

// Package filereader exposes local file contents to the orchestrator.
// It is the one locally-executed tool: everything else routes through
// the Central Orchestrator.

// LargeFileThreshold is the size above which the orchestration loop
// defers loading until just before the analyze call, carrying the path
// forward instead of shipping content through the directive payload.
const LargeFileThreshold = 50 * 1024

// Result is the success shape of a file read.
type Result struct {
	Content   string `json:"content"`
	FilePath  string `json:"file_path"`
	SizeBytes int    `json:"size_bytes"`
}

// Read returns the file's content, or an error structure usable as a
// tool result.
func Read(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return map[string]interface{}{
			"error":     err.Error(),
			"file_path": path,
		}, err
	}
	return map[string]interface{}{
		"content":    string(raw),
		"file_path":  path,
		"size_bytes": len(raw),
	}, nil
}

// IsLarge reports whether a file exceeds LargeFileThreshold. Missing
// files are not large; the read error surfaces later.
func IsLarge(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > LargeFileThreshold
}
