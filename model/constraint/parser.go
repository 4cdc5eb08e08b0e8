package constraint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/parsly"
)

// Parse parses a constraint expression:
//
//	name == value
//	name != value
//	name < 10, name <= 10, name > 10, name >= 10
//	name ~ pattern
//	name ^= prefix
//	name in [a, "b c", 3]
//	name not in [a, b]
//	name in 1..10   (either bound may be omitted)
func Parse(expr string) (*Constraint, error) {
	cursor := parsly.NewCursor("", []byte(strings.TrimSpace(expr)), 0)
	ret := &Constraint{}

	matched := cursor.MatchAfterOptional(whitespaceToken, identifierToken)
	if matched.Code != identifierCode {
		return nil, cursor.NewError(identifierToken)
	}
	ret.Param = matched.Text(cursor)

	operators := []*parsly.Token{eqToken, neToken, leToken, ltToken, geToken, gtToken, prefixToken, globToken, notInToken, inToken}
	// the cursor reuses its match, so the code is read before any further matching
	code := cursor.MatchAfterOptional(whitespaceToken, operators...).Code
	switch code {
	case eqCode, neCode, globCode, prefixCode:
		value, err := parseLiteral(cursor)
		if err != nil {
			return nil, err
		}
		ret.Kind, ret.Value = literalKinds[code], value
	case leCode, ltCode, geCode, gtCode:
		value, err := parseLiteral(cursor)
		if err != nil {
			return nil, err
		}
		number, err := strconv.ParseFloat(fmt.Sprint(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in constraint %q", value, expr)
		}
		ret.Kind, ret.Value = literalKinds[code], number
	case inCode:
		if err := parseIn(cursor, ret); err != nil {
			return nil, err
		}
	case notInCode:
		if err := parseSet(cursor, ret); err != nil {
			return nil, err
		}
		ret.Kind = KindNotIn
	default:
		return nil, cursor.NewError(operators...)
	}

	cursor.MatchOne(whitespaceToken)
	if cursor.HasMore() {
		return nil, fmt.Errorf("unexpected %q at %d in constraint %q", cursor.Input[cursor.Pos:], cursor.Pos, expr)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// MustParse parses expr or panics; intended for static rule tables.
func MustParse(expr string) *Constraint {
	ret, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return ret
}

func parseIn(cursor *parsly.Cursor, ret *Constraint) error {
	matched := cursor.MatchAfterOptional(whitespaceToken, rangeToken, openSquareBracketToken)
	switch matched.Code {
	case rangeCode:
		bounds := strings.SplitN(matched.Text(cursor), "..", 2)
		ret.Kind = KindRange
		var err error
		if ret.Min, err = parseBound(bounds[0]); err != nil {
			return err
		}
		if ret.Max, err = parseBound(bounds[1]); err != nil {
			return err
		}
		return nil
	case openSquareBracketCode:
		ret.Kind = KindIn
		return parseValues(cursor, ret)
	}
	return cursor.NewError(rangeToken, openSquareBracketToken)
}

func parseSet(cursor *parsly.Cursor, ret *Constraint) error {
	if cursor.MatchAfterOptional(whitespaceToken, openSquareBracketToken).Code != openSquareBracketCode {
		return cursor.NewError(openSquareBracketToken)
	}
	return parseValues(cursor, ret)
}

// parseValues reads list items up to the closing bracket.
func parseValues(cursor *parsly.Cursor, ret *Constraint) error {
	for {
		if cursor.MatchAfterOptional(whitespaceToken, closeSquareBracketToken).Code == closeSquareBracketCode {
			return nil
		}
		value, err := parseLiteral(cursor)
		if err != nil {
			return err
		}
		ret.Values = append(ret.Values, value)
		switch cursor.MatchAfterOptional(whitespaceToken, commaToken, closeSquareBracketToken).Code {
		case commaCode:
		case closeSquareBracketCode:
			return nil
		default:
			return cursor.NewError(commaToken, closeSquareBracketToken)
		}
	}
}

var literalKinds = map[int]Kind{
	eqCode:     KindEq,
	neCode:     KindNe,
	globCode:   KindGlob,
	prefixCode: KindPrefix,
	ltCode:     KindLt,
	leCode:     KindLe,
	gtCode:     KindGt,
	geCode:     KindGe,
}

func parseLiteral(cursor *parsly.Cursor) (interface{}, error) {
	matched := cursor.MatchAfterOptional(whitespaceToken, quotedToken, wordToken)
	switch matched.Code {
	case quotedCode:
		text := matched.Text(cursor)
		if text[0] == '\'' {
			return strings.ReplaceAll(text[1:len(text)-1], `\'`, `'`), nil
		}
		unquoted, err := strconv.Unquote(text)
		if err != nil {
			return nil, fmt.Errorf("invalid quoted literal %s: %w", text, err)
		}
		return unquoted, nil
	case wordCode:
		return matched.Text(cursor), nil
	}
	return nil, cursor.NewError(quotedToken, wordToken)
}

func parseBound(text string) (*float64, error) {
	if text == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid range bound %q: %w", text, err)
	}
	return &v, nil
}
