package convert

import (
	"github.com/bgricker/workflowc/internal/expression"
	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// ConditionKind selects the named values and functions an `if` may use.
type ConditionKind int

const (
	ConditionJob ConditionKind = iota
	ConditionStep
	ConditionSnapshot
)

const defaultCondition = expression.FuncSuccess + "()"

var (
	jobNamedValues      = []string{"github", "needs", "vars", "inputs"}
	stepNamedValues     = []string{"github", "needs", "strategy", "matrix", "steps", "job", "runner", "env", "vars", "inputs"}
	snapshotNamedValues = []string{"github", "needs", "vars", "inputs", "strategy", "matrix"}
)

func (k ConditionKind) allowed() (namedValues, functions []string) {
	functions = append([]string(nil), expression.StatusFunctions...)
	switch k {
	case ConditionStep:
		return stepNamedValues, append(functions, expression.FuncHashFiles)
	case ConditionSnapshot:
		return snapshotNamedValues, functions
	}
	return jobNamedValues, functions
}

// NormalizeCondition validates an `if` expression and guards it with
// success() unless it already calls a status function. An empty condition
// becomes success().
func NormalizeCondition(ctx *template.Context, text string, kind ConditionKind) string {
	c := &converter{ctx: ctx}
	return c.normalize(nil, text, kind)
}

func (c *converter) condition(t token.Token, kind ConditionKind) string {
	if t == nil {
		return defaultCondition
	}
	var text string
	switch v := t.(type) {
	case *token.String:
		text = v.Value
	case *token.BasicExpression:
		text = v.Expression
	case *token.Boolean, *token.Number:
		text = v.String()
	case *token.Null:
	default:
		c.errorf(t, workflow.CodeType, "Expected a string for 'if'")
		return defaultCondition
	}
	return c.normalize(t, text, kind)
}

func (c *converter) normalize(at token.Token, text string, kind ConditionKind) string {
	if text == "" {
		return defaultCondition
	}
	namedValues, functions := kind.allowed()
	tree, err := c.ctx.Expressions().Parse(text, namedValues, functions)
	if err != nil {
		c.errorf(at, workflow.CodeExpression, "%v", err)
		return text
	}
	if expression.UsesFunction(tree, expression.StatusFunctions...) {
		return text
	}
	return defaultCondition + " && (" + text + ")"
}
