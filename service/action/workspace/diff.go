package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrNoChange is returned by GenerateDiff for identical contents.
var ErrNoChange = errors.New("no change between old and new")

// DiffStats summarizes a unified diff.
type DiffStats struct {
	FilesChanged int `json:"filesChanged"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
	Hunks        int `json:"hunks"`
}

func (s DiffStats) String() string {
	return fmt.Sprintf("%d file(s) changed, +%d -%d", s.FilesChanged, s.Insertions, s.Deletions)
}

// Add accumulates other into s.
func (s *DiffStats) Add(other DiffStats) {
	s.FilesChanged += other.FilesChanged
	s.Insertions += other.Insertions
	s.Deletions += other.Deletions
	s.Hunks += other.Hunks
}

// DiffResult is a unified diff with its statistics.
type DiffResult struct {
	Patch string    `json:"patch,omitempty"`
	Stats DiffStats `json:"stats"`
}

// GenerateDiff produces a unified diff between old and new contents of location.
func GenerateDiff(old, new []byte, location string, contextLines int) (*DiffResult, error) {
	if bytes.Equal(old, new) {
		return nil, ErrNoChange
	}
	if location == "" {
		location = "file"
	}
	if contextLines <= 0 {
		contextLines = 3
	}
	unified := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(new)),
		FromFile: "a/" + location,
		ToFile:   "b/" + location,
		Context:  contextLines,
	}
	patch, err := difflib.GetUnifiedDiffString(unified)
	if err != nil {
		return nil, fmt.Errorf("diff generation: %w", err)
	}
	return &DiffResult{Patch: patch, Stats: Stats(patch)}, nil
}

// Stats counts files, hunks and changed lines of a unified diff.
func Stats(patch string) DiffStats {
	var stats DiffStats
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"):
			stats.FilesChanged++
		case strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "@@"):
			stats.Hunks++
		case strings.HasPrefix(line, "+"):
			stats.Insertions++
		case strings.HasPrefix(line, "-"):
			stats.Deletions++
		}
	}
	return stats
}
