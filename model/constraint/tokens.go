package constraint

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes
const (
	whitespaceCode = iota + 1
	identifierCode
	eqCode
	neCode
	leCode
	ltCode
	geCode
	gtCode
	prefixCode
	globCode
	notInCode
	inCode
	openSquareBracketCode
	closeSquareBracketCode
	commaCode
	rangeCode
	quotedCode
	wordCode
)

var (
	whitespaceToken         = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	identifierToken         = parsly.NewToken(identifierCode, "Identifier", &identifierMatcher{})
	eqToken                 = parsly.NewToken(eqCode, "==", matcher.NewFragment("=="))
	neToken                 = parsly.NewToken(neCode, "!=", matcher.NewFragment("!="))
	leToken                 = parsly.NewToken(leCode, "<=", matcher.NewFragment("<="))
	ltToken                 = parsly.NewToken(ltCode, "<", matcher.NewByte('<'))
	geToken                 = parsly.NewToken(geCode, ">=", matcher.NewFragment(">="))
	gtToken                 = parsly.NewToken(gtCode, ">", matcher.NewByte('>'))
	prefixToken             = parsly.NewToken(prefixCode, "^=", matcher.NewFragment("^="))
	notInToken              = parsly.NewToken(notInCode, "not in", &notInMatcher{})
	globToken               = parsly.NewToken(globCode, "~", matcher.NewByte('~'))
	inToken                 = parsly.NewToken(inCode, "in", &keywordMatcher{keyword: "in"})
	openSquareBracketToken  = parsly.NewToken(openSquareBracketCode, "[", matcher.NewByte('['))
	closeSquareBracketToken = parsly.NewToken(closeSquareBracketCode, "]", matcher.NewByte(']'))
	commaToken              = parsly.NewToken(commaCode, ",", matcher.NewByte(','))
	rangeToken              = parsly.NewToken(rangeCode, "Range", &rangeMatcher{})
	quotedToken             = parsly.NewToken(quotedCode, "Quoted", &quoteMatcher{})
	wordToken               = parsly.NewToken(wordCode, "Word", &wordMatcher{})
)

// identifierMatcher matches parameter names: letters, digits, '_', '.', '-'
// starting with a letter or underscore.
type identifierMatcher struct{}

func (m *identifierMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	if pos >= size || !(isLetter(input[pos]) || input[pos] == '_') {
		return 0
	}
	matched := 1
	for i := pos + 1; i < size && isIdentifierByte(input[i]); i++ {
		matched++
	}
	return matched
}

// keywordMatcher matches a keyword not followed by an identifier byte.
type keywordMatcher struct {
	keyword string
}

func (m *keywordMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	end := pos + len(m.keyword)
	if end > size || string(input[pos:end]) != m.keyword {
		return 0
	}
	if end < size && isIdentifierByte(input[end]) {
		return 0
	}
	return len(m.keyword)
}

// notInMatcher matches "not" and "in" keywords separated by whitespace.
type notInMatcher struct{}

func (m *notInMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	if pos+3 > size || string(input[pos:pos+3]) != "not" {
		return 0
	}
	i := pos + 3
	for i < size && (input[i] == ' ' || input[i] == '\t') {
		i++
	}
	if i == pos+3 || i+2 > size || string(input[i:i+2]) != "in" {
		return 0
	}
	if i+2 < size && isIdentifierByte(input[i+2]) {
		return 0
	}
	return i + 2 - pos
}

// rangeMatcher matches [number]..[number] with at least one bound.
type rangeMatcher struct{}

func (m *rangeMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	i := pos + numberLen(input[pos:size])
	lower := i > pos
	if i+1 >= size || input[i] != '.' || input[i+1] != '.' {
		return 0
	}
	i += 2
	upper := numberLen(input[i:size])
	if !lower && upper == 0 {
		return 0
	}
	return i + upper - pos
}

// quoteMatcher matches a single or double quoted literal, honouring backslash escapes.
type quoteMatcher struct{}

func (m *quoteMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	if pos >= size || (input[pos] != '"' && input[pos] != '\'') {
		return 0
	}
	quote := input[pos]
	for i := pos + 1; i < size; i++ {
		switch input[i] {
		case '\\':
			i++
		case quote:
			return i - pos + 1
		}
	}
	return 0
}

// wordMatcher matches a bare literal up to whitespace, ',' or ']'.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	input, pos, size := cursor.Input, cursor.Pos, cursor.InputSize
	matched := 0
	for i := pos; i < size; i++ {
		switch input[i] {
		case ' ', '\t', '\n', '\r', ',', ']', '[':
			return matched
		}
		matched++
	}
	return matched
}

func numberLen(input []byte) int {
	i := 0
	if i < len(input) && (input[i] == '-' || input[i] == '+') {
		i++
	}
	digits := 0
	for i < len(input) && isDigit(input[i]) {
		i++
		digits++
	}
	if i+1 < len(input) && input[i] == '.' && isDigit(input[i+1]) {
		i++
		for i < len(input) && isDigit(input[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	return i
}

func isIdentifierByte(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c == '.' || c == '-'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
