package convert

import (
	"math"

	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// converter carries the context of one conversion pass. In early mode
// fields that still hold expressions are accepted without further checks.
type converter struct {
	ctx   *template.Context
	early bool
}

func (c *converter) errorf(at token.Token, code, format string, args ...any) {
	c.ctx.ErrorAt(at, code, format, args...)
}

func (c *converter) unexpected(at token.Token) {
	c.errorf(at, workflow.CodeUnexpectedValue, "Unexpected value '%s'", at.String())
}

// deferred reports whether t is an expression that cannot be checked yet.
// In late mode an expression is an error.
func (c *converter) deferred(t token.Token) bool {
	if !token.IsExpression(t) {
		return false
	}
	if !c.early {
		c.errorf(t, workflow.CodeType, "Unexpected expression '%s'. Expressions must be resolved before conversion", t.String())
	}
	return true
}

func (c *converter) noExpression(t token.Token) bool {
	if token.IsExpression(t) {
		c.errorf(t, workflow.CodeSyntax, "A template expression is not allowed in this context")
		return false
	}
	return true
}

func (c *converter) mapping(t token.Token, what string) (*token.Mapping, bool) {
	m, ok := t.(*token.Mapping)
	if !ok {
		c.errorf(t, workflow.CodeType, "Expected a mapping for '%s'", what)
	}
	return m, ok
}

func (c *converter) sequence(t token.Token, what string) (*token.Sequence, bool) {
	s, ok := t.(*token.Sequence)
	if !ok {
		c.errorf(t, workflow.CodeType, "Expected a sequence for '%s'", what)
	}
	return s, ok
}

func (c *converter) str(t token.Token, what string) (string, bool) {
	switch v := t.(type) {
	case *token.String:
		return v.Value, true
	case *token.Boolean, *token.Number:
		return v.String(), true
	case *token.Null:
		return "", true
	}
	c.errorf(t, workflow.CodeType, "Expected a string for '%s'", what)
	return "", false
}

func (c *converter) boolean(t token.Token, what string) (bool, bool) {
	if b, ok := t.(*token.Boolean); ok {
		return b.Value, true
	}
	c.errorf(t, workflow.CodeType, "Expected a boolean for '%s'", what)
	return false, false
}

func (c *converter) number(t token.Token, what string) (float64, bool) {
	if n, ok := t.(*token.Number); ok && !math.IsNaN(n.Value) && !math.IsInf(n.Value, 0) {
		return n.Value, true
	}
	c.errorf(t, workflow.CodeType, "Expected a number for '%s'", what)
	return 0, false
}

// pairs iterates a mapping whose keys must be literal strings.
func (c *converter) pairs(m *token.Mapping, fn func(key *token.String, value token.Token)) {
	for k, v := range m.All() {
		if !c.noExpression(k) {
			continue
		}
		key, ok := k.(*token.String)
		if !ok {
			key = token.NewString(k.Source(), k.String())
		}
		fn(key, v)
	}
}

// stringMap checks a mapping of names to scalar values. Expressions are
// allowed for the mapping itself and for its values.
func (c *converter) stringMap(t token.Token, what string) token.Token {
	if c.deferred(t) {
		return t
	}
	m, ok := c.mapping(t, what)
	if !ok {
		return nil
	}
	c.pairs(m, func(key *token.String, v token.Token) {
		if token.IsExpression(v) {
			return
		}
		if _, isLit := v.(token.Literal); !isLit {
			c.errorf(v, workflow.CodeType, "Expected a string for '%s.%s'", what, key.Value)
		}
	})
	return m
}

func hasExpressions(t token.Token) bool {
	for tok := range token.Traverse(t, false) {
		if token.IsExpression(tok) {
			return true
		}
	}
	return false
}
