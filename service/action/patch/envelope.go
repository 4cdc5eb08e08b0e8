package patch

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Operation is a single file operation of a patch envelope.
type Operation interface{ operation() }

// AddFile creates Path with Contents.
type AddFile struct {
	Path     string
	Contents string
}

// DeleteFile removes Path.
type DeleteFile struct {
	Path string
}

// UpdateFile edits Path, optionally renaming it to MovePath.
type UpdateFile struct {
	Path     string
	MovePath string
	Chunks   []Chunk
}

func (AddFile) operation()    {}
func (DeleteFile) operation() {}
func (UpdateFile) operation() {}

// Chunk is a contiguous edit; OldLines and NewLines include context lines.
type Chunk struct {
	Context  string
	OldLines []string
	NewLines []string
	EOF      bool
}

const envelopeBegin = "*** Begin Patch"

const (
	beginCode = iota + 1
	endCode
	addCode
	deleteCode
	updateCode
	moveCode
	chunkCode
	whitespaceCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "whitespace", matcher.NewWhiteSpace())
	beginToken      = parsly.NewToken(beginCode, "begin", matcher.NewFragment(envelopeBegin))
	endToken        = parsly.NewToken(endCode, "end", matcher.NewFragment("*** End Patch"))
	addToken        = parsly.NewToken(addCode, "add", matcher.NewFragment("*** Add File:"))
	deleteToken     = parsly.NewToken(deleteCode, "delete", matcher.NewFragment("*** Delete File:"))
	updateToken     = parsly.NewToken(updateCode, "update", matcher.NewFragment("*** Update File:"))
	moveToken       = parsly.NewToken(moveCode, "move", matcher.NewFragment("*** Move to:"))
	chunkToken      = parsly.NewToken(chunkCode, "chunk", matcher.NewFragment("@@"))
)

// IsEnvelope reports whether text is a "*** Begin Patch" envelope.
func IsEnvelope(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), envelopeBegin)
}

// Parse parses a patch envelope.
func Parse(text string) ([]Operation, error) {
	cursor := parsly.NewCursor("patch", []byte(strings.TrimSpace(text)), 0)
	if cursor.MatchOne(beginToken).Code != beginCode {
		return nil, cursor.NewError(beginToken)
	}
	restOfLine(cursor)
	var ret []Operation
	for {
		match := cursor.MatchAfterOptional(whitespaceToken, endToken, addToken, deleteToken, updateToken)
		switch match.Code {
		case endCode:
			restOfLine(cursor)
			if strings.TrimSpace(string(cursor.Input[cursor.Pos:])) != "" {
				return nil, fmt.Errorf("unexpected content after '*** End Patch'")
			}
			return ret, nil
		case addCode:
			ret = append(ret, parseAdd(cursor))
		case deleteCode:
			ret = append(ret, DeleteFile{Path: strings.TrimSpace(restOfLine(cursor))})
		case updateCode:
			update, err := parseUpdate(cursor)
			if err != nil {
				return nil, err
			}
			ret = append(ret, update)
		case parsly.EOF:
			return nil, fmt.Errorf("unexpected EOF: missing '*** End Patch'")
		default:
			return nil, cursor.NewError(addToken, deleteToken, updateToken, endToken)
		}
	}
}

func parseAdd(cursor *parsly.Cursor) AddFile {
	ret := AddFile{Path: strings.TrimSpace(restOfLine(cursor))}
	var builder strings.Builder
	for line := peekLine(cursor); strings.HasPrefix(line, "+"); line = peekLine(cursor) {
		builder.WriteString(restOfLine(cursor)[1:])
		builder.WriteByte('\n')
	}
	ret.Contents = builder.String()
	return ret
}

func parseUpdate(cursor *parsly.Cursor) (UpdateFile, error) {
	ret := UpdateFile{Path: strings.TrimSpace(restOfLine(cursor))}
	if strings.HasPrefix(peekLine(cursor), "*** Move to:") {
		cursor.MatchOne(moveToken)
		ret.MovePath = strings.TrimSpace(restOfLine(cursor))
	}
	for first := true; ; first = false {
		line := peekLine(cursor)
		if strings.HasPrefix(line, "***") && !strings.HasPrefix(line, "*** End of File") {
			break
		}
		chunk := Chunk{}
		if strings.HasPrefix(line, "@@") {
			cursor.MatchOne(chunkToken)
			chunk.Context = strings.TrimSpace(restOfLine(cursor))
		} else if !first {
			return ret, fmt.Errorf("expected @@ header in update of %s", ret.Path)
		}
	lines:
		for cursor.Pos < cursor.InputSize {
			line = peekLine(cursor)
			switch {
			case strings.HasPrefix(line, "*** End of File"):
				chunk.EOF = true
				restOfLine(cursor)
				break lines
			case strings.HasPrefix(line, "@@"), strings.HasPrefix(line, "***"):
				break lines
			case line == "":
				restOfLine(cursor)
				chunk.OldLines = append(chunk.OldLines, "")
				chunk.NewLines = append(chunk.NewLines, "")
			case line[0] == '+':
				chunk.NewLines = append(chunk.NewLines, restOfLine(cursor)[1:])
			case line[0] == '-':
				chunk.OldLines = append(chunk.OldLines, restOfLine(cursor)[1:])
			case line[0] == ' ':
				text := restOfLine(cursor)[1:]
				chunk.OldLines = append(chunk.OldLines, text)
				chunk.NewLines = append(chunk.NewLines, text)
			default:
				return ret, fmt.Errorf("invalid line in update of %s: %q", ret.Path, line)
			}
		}
		if len(chunk.OldLines) == 0 && len(chunk.NewLines) == 0 {
			return ret, fmt.Errorf("empty update chunk for %s", ret.Path)
		}
		ret.Chunks = append(ret.Chunks, chunk)
		if !strings.HasPrefix(peekLine(cursor), "@@") {
			break
		}
	}
	return ret, nil
}

// restOfLine consumes input up to and including the next newline.
func restOfLine(cursor *parsly.Cursor) string {
	start := cursor.Pos
	for cursor.Pos < cursor.InputSize {
		if cursor.Input[cursor.Pos] == '\n' {
			text := string(cursor.Input[start:cursor.Pos])
			cursor.Pos++
			return strings.TrimSuffix(text, "\r")
		}
		cursor.Pos++
	}
	return strings.TrimSuffix(string(cursor.Input[start:]), "\r")
}

func peekLine(cursor *parsly.Cursor) string {
	end := cursor.Pos
	for end < cursor.InputSize && cursor.Input[end] != '\n' {
		end++
	}
	return strings.TrimSuffix(string(cursor.Input[cursor.Pos:end]), "\r")
}

// ApplyEnvelope applies a parsed envelope within session.
func ApplyEnvelope(ctx context.Context, session *Session, text string) error {
	operations, err := Parse(text)
	if err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}
	for _, operation := range operations {
		switch actual := operation.(type) {
		case AddFile:
			err = session.Add(ctx, actual.Path, []byte(actual.Contents))
		case DeleteFile:
			err = session.Delete(ctx, actual.Path)
		case UpdateFile:
			var previous []byte
			if previous, err = session.Read(ctx, actual.Path); err != nil {
				return fmt.Errorf("%s: %w", actual.Path, err)
			}
			var updated []byte
			if updated, err = applyChunks(previous, actual.Chunks); err != nil {
				return fmt.Errorf("%s: %w", actual.Path, err)
			}
			if actual.MovePath != "" && actual.MovePath != actual.Path {
				err = session.Move(ctx, actual.Path, actual.MovePath, updated)
			} else {
				err = session.Update(ctx, actual.Path, updated)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}
