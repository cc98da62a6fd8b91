package token

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	directiveInsert = "insert"
	directiveIf     = "if"
	directiveElseIf = "elseif"
	directiveElse   = "else"
	directiveEach   = "each"
)

var eachPattern = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)\s+in\s+(\S.*)$`)

// ParseDirective recognises the text inside `${{ }}` as a directive.
// ok is false when text is an ordinary expression. A recognised keyword with
// malformed arguments returns an error.
func ParseDirective(src *Source, text string) (Expression, bool, error) {
	text = strings.TrimSpace(text)
	keyword, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	switch keyword {
	case directiveInsert:
		if rest != "" {
			return nil, true, fmt.Errorf("the directive 'insert' does not support arguments")
		}
		return NewInsertExpression(src), true, nil
	case directiveElse:
		if rest != "" {
			return nil, true, fmt.Errorf("the directive 'else' does not support arguments")
		}
		return NewElse(src), true, nil
	case directiveIf:
		if rest == "" {
			return nil, true, fmt.Errorf("the directive 'if' requires a condition")
		}
		return NewIf(src, rest), true, nil
	case directiveElseIf:
		if rest == "" {
			return nil, true, fmt.Errorf("the directive 'elseif' requires a condition")
		}
		return NewElseIf(src, rest), true, nil
	case directiveEach:
		m := eachPattern.FindStringSubmatch(rest)
		if m == nil {
			return nil, true, fmt.Errorf("the directive 'each' requires the form 'each <name> in <expression>'")
		}
		return NewEach(src, m[1], strings.TrimSpace(m[2])), true, nil
	}
	return nil, false, nil
}

// directiveText is the inverse of ParseDirective.
func directiveText(e Expression) string {
	switch d := e.(type) {
	case *InsertExpression:
		return directiveInsert
	case *Else:
		return directiveElse
	case *If:
		return directiveIf + " " + d.Condition
	case *ElseIf:
		return directiveElseIf + " " + d.Condition
	case *Each:
		return directiveEach + " " + d.Variable + " in " + d.Collection
	}
	return ""
}
