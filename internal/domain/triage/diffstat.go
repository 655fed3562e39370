package triage

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// DiffStats summarizes a unified diff.
type DiffStats struct {
	FilesChanged int `json:"files_changed"`
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
}

// ComputeDiffStats parses a unified or format-patch diff. Mail headers before
// the first file header are ignored.
func ComputeDiffStats(content string) (DiffStats, error) {
	body := stripMailHeader(content)
	if strings.TrimSpace(body) == "" {
		return DiffStats{}, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(body)).ReadAllFiles()
	if err != nil {
		return DiffStats{}, fmt.Errorf("parse diff: %w", err)
	}

	stats := DiffStats{FilesChanged: len(fileDiffs)}
	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					stats.LinesAdded++
				case strings.HasPrefix(line, "-"):
					stats.LinesRemoved++
				}
			}
		}
	}
	return stats, nil
}

func stripMailHeader(content string) string {
	if strings.HasPrefix(content, "diff ") || strings.HasPrefix(content, "--- ") {
		return content
	}
	for _, marker := range []string{"\ndiff --git ", "\n--- "} {
		if idx := strings.Index(content, marker); idx >= 0 {
			return content[idx+1:]
		}
	}
	return ""
}
