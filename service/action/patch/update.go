package patch

import (
	"fmt"
	"strings"
)

// normalize drops whitespace so that indentation differences do not block a match.
func normalize(line string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r':
			return -1
		}
		return r
	}, line)
}

func normalizeAll(lines []string) []string {
	ret := make([]string, len(lines))
	for i, line := range lines {
		ret[i] = normalize(line)
	}
	return ret
}

// indexOf returns the first index >= from where needle occurs in hay, or -1.
func indexOf(hay, needle []string, from int) int {
outer:
	for i := from; i <= len(hay)-len(needle); i++ {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// applyChunks applies chunks in order; each chunk must be found after the
// previous one, or after its @@ context line when given.
func applyChunks(previous []byte, chunks []Chunk) ([]byte, error) {
	text := string(previous)
	trailingNewline := text == "" || strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if text == "" {
		lines = nil
	}
	position := 0
	for i, chunk := range chunks {
		normalized := normalizeAll(lines)
		if chunk.Context != "" {
			anchor := indexOf(normalized, []string{normalize(chunk.Context)}, position)
			if anchor < 0 {
				return nil, fmt.Errorf("chunk %d: context %q not found", i+1, chunk.Context)
			}
			position = anchor + 1
		}
		needle := normalizeAll(chunk.OldLines)
		start := -1
		if chunk.EOF {
			if candidate := len(lines) - len(needle); candidate >= position && indexOf(normalized, needle, candidate) == candidate {
				start = candidate
			}
		}
		if start < 0 {
			start = indexOf(normalized, needle, position)
		}
		if start < 0 {
			return nil, fmt.Errorf("chunk %d: lines not found", i+1)
		}
		replaced := make([]string, 0, len(lines)-len(chunk.OldLines)+len(chunk.NewLines))
		replaced = append(replaced, lines[:start]...)
		replaced = append(replaced, chunk.NewLines...)
		replaced = append(replaced, lines[start+len(chunk.OldLines):]...)
		lines = replaced
		position = start + len(chunk.NewLines)
	}
	result := strings.Join(lines, "\n")
	if trailingNewline && len(lines) > 0 {
		result += "\n"
	}
	return []byte(result), nil
}
