package patch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	sgdiff "github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// IsUnified reports whether text looks like a unified diff.
func IsUnified(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "--- ") || strings.HasPrefix(text, "diff ") || strings.Contains(text, "\n--- ")
}

// ApplyUnified applies a (multi-file) unified diff within session.
func ApplyUnified(ctx context.Context, session *Session, text string) error {
	fileDiffs, err := sgdiff.ParseMultiFileDiff([]byte(text))
	if err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}
	if len(fileDiffs) == 0 {
		return fmt.Errorf("parse patch: no file changes")
	}
	for _, fileDiff := range fileDiffs {
		origName := strings.TrimPrefix(fileDiff.OrigName, "a/")
		newName := strings.TrimPrefix(fileDiff.NewName, "b/")
		switch {
		case fileDiff.OrigName == devNull:
			var buf bytes.Buffer
			if err = applyHunks(nil, fileDiff.Hunks, &buf); err != nil {
				return fmt.Errorf("%s: %w", newName, err)
			}
			err = session.Add(ctx, newName, buf.Bytes())
		case fileDiff.NewName == devNull:
			err = session.Delete(ctx, origName)
		default:
			var previous []byte
			if previous, err = session.Read(ctx, origName); err != nil {
				return fmt.Errorf("%s: %w", origName, err)
			}
			var buf bytes.Buffer
			if err = applyHunks(previous, fileDiff.Hunks, &buf); err != nil {
				return fmt.Errorf("%s: %w", origName, err)
			}
			if origName != newName {
				err = session.Move(ctx, origName, newName, buf.Bytes())
			} else {
				err = session.Update(ctx, origName, buf.Bytes())
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// applyHunks walks original lines in order, verifying context and deleted
// lines and emitting additions. Any mismatch aborts.
func applyHunks(previous []byte, hunks []*sgdiff.Hunk, w io.Writer) error {
	lines := strings.SplitAfter(string(previous), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	index := 0
	for _, hunk := range hunks {
		start := int(hunk.OrigStartLine) - 1
		if start < 0 {
			start = 0
		}
		if start < index {
			return fmt.Errorf("patch failed: overlapping hunk at line %d", hunk.OrigStartLine)
		}
		for ; index < start && index < len(lines); index++ {
			if _, err := io.WriteString(w, lines[index]); err != nil {
				return err
			}
		}
		for _, line := range strings.SplitAfter(string(hunk.Body), "\n") {
			if line == "" {
				continue
			}
			tag, text := line[0], line[1:]
			switch tag {
			case ' ', '-':
				if index >= len(lines) || !sameLine(lines[index], text) {
					return fmt.Errorf("patch failed: mismatch at original line %d", index+1)
				}
				if tag == ' ' {
					if _, err := io.WriteString(w, lines[index]); err != nil {
						return err
					}
				}
				index++
			case '+':
				if _, err := io.WriteString(w, text); err != nil {
					return err
				}
			case '\\':
			default:
				return fmt.Errorf("patch failed: unexpected hunk tag %q", tag)
			}
		}
	}
	for ; index < len(lines); index++ {
		if _, err := io.WriteString(w, lines[index]); err != nil {
			return err
		}
	}
	return nil
}

func sameLine(a, b string) bool {
	return strings.TrimRight(a, "\r\n") == strings.TrimRight(b, "\r\n")
}
