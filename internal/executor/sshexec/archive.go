package sshexec

import (
	"regexp"
	"strings"
)

// Multi-file archive format: a remote aggregation command emits many
// files as one stream, each section introduced by a marker
//
//	=== FILE: <filename> ===
//
// followed by that file's content. The marker is matched wherever it
// occurs, not only at line starts: a body without a trailing newline
// leaves the next marker mid-line, and concatenations must still
// reconstruct exactly. A stream with no markers is one pseudo-file
// named combined.log.

// FileSection is one parsed section of a multi-file archive.
type FileSection struct {
	Filename  string `json:"filename"`
	NodeIP    string `json:"node_ip"`
	NodeType  string `json:"node_type"`
	Content   string `json:"content"`
	LineCount int    `json:"line_count"`
	SizeBytes int    `json:"size_bytes"`
}

var fileMarker = regexp.MustCompile(`=== FILE: ([^\n]*) ===\n`)

// ParseArchive splits archive content on section markers. Content
// between markers is preserved byte for byte.
func ParseArchive(content, nodeIP, nodeType string) []FileSection {
	matches := fileMarker.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []FileSection{newSection("combined.log", nodeIP, nodeType, content)}
	}

	sections := make([]FileSection, 0, len(matches))
	for i, m := range matches {
		name := content[m[2]:m[3]]
		start := m[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, newSection(name, nodeIP, nodeType, content[start:end]))
	}
	return sections
}

func newSection(name, nodeIP, nodeType, content string) FileSection {
	lines := 0
	if content != "" {
		lines = strings.Count(content, "\n")
		if !strings.HasSuffix(content, "\n") {
			lines++
		}
	}
	return FileSection{
		Filename:  name,
		NodeIP:    nodeIP,
		NodeType:  nodeType,
		Content:   content,
		LineCount: lines,
		SizeBytes: len(content),
	}
}
