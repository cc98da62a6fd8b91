// Package expression adapts the `${{ }}` expression language for the template
// converter. Parsing is delegated to the actionlint expression parser; the
// converter only needs to restrict named values and functions, detect status
// functions and evaluate simple predicates over token values.
package expression

import (
	"fmt"
	"strings"

	"github.com/bgricker/workflowc/internal/token"
	"github.com/rhysd/actionlint"
)

// Status functions decide whether a job or step runs after upstream failure.
const (
	FuncAlways    = "always"
	FuncCancelled = "cancelled"
	FuncFailure   = "failure"
	FuncSuccess   = "success"
	FuncHashFiles = "hashFiles"
)

// StatusFunctions lists the functions that opt a condition out of the
// implicit success() guard.
var StatusFunctions = []string{FuncAlways, FuncCancelled, FuncFailure, FuncSuccess}

var builtinFunctions = []string{"contains", "startsWith", "endsWith", "format", "join", "toJSON", "fromJSON"}

// Kind is the runtime type of an evaluated value.
type Kind int

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBoolean:
		return "Boolean"
	case KindNumber:
		return "Number"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindObject:
		return "Object"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tree is a parsed expression.
type Tree interface {
	Text() string
	// NamedValues returns the referenced named values, lower-cased.
	NamedValues() []string
	// Functions returns the called function names, lower-cased.
	Functions() []string
}

// Result is the outcome of evaluating a Tree.
type Result struct {
	Value  token.Token
	Kind   Kind
	Truthy bool
}

// Function is a host-provided function such as success() or hashFiles().
type Function func(args []token.Token) (token.Token, error)

// Context supplies named values and extra functions to Evaluate.
// Named value and function names are matched case-insensitively.
type Context struct {
	NamedValues map[string]token.Token
	Functions   map[string]Function
}

// Engine parses and evaluates expressions.
type Engine interface {
	// Parse checks text and restricts it to the given named values and
	// functions. A nil list leaves that dimension unrestricted.
	Parse(text string, namedValues, functions []string) (Tree, error)
	Evaluate(tree Tree, ctx *Context) (Result, error)
}

// UsesFunction reports whether tree calls any of names.
func UsesFunction(tree Tree, names ...string) bool {
	for _, called := range tree.Functions() {
		for _, name := range names {
			if strings.EqualFold(called, name) {
				return true
			}
		}
	}
	return false
}

// Interpreter is the default Engine.
type Interpreter struct{}

// NewInterpreter returns the default expression engine.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

type tree struct {
	text        string
	root        actionlint.ExprNode
	namedValues []string
	functions   []string
}

func (t *tree) Text() string          { return t.text }
func (t *tree) NamedValues() []string { return t.namedValues }
func (t *tree) Functions() []string   { return t.functions }

// Parse implements Engine.
func (*Interpreter) Parse(text string, namedValues, functions []string) (Tree, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("an expression was expected")
	}
	root, perr := actionlint.NewExprParser().Parse(actionlint.NewExprLexer(text + "}}"))
	if perr != nil {
		return nil, fmt.Errorf("%s. Located at position %d within expression: %s", strings.TrimSuffix(perr.Message, "."), perr.Offset+1, text)
	}

	t := &tree{text: text, root: root}
	seenValues := map[string]bool{}
	seenFuncs := map[string]bool{}
	actionlint.VisitExprNode(root, func(n, _ actionlint.ExprNode, entering bool) {
		if !entering {
			return
		}
		switch node := n.(type) {
		case *actionlint.VariableNode:
			name := strings.ToLower(node.Name)
			if !seenValues[name] {
				seenValues[name] = true
				t.namedValues = append(t.namedValues, name)
			}
		case *actionlint.FuncCallNode:
			name := strings.ToLower(node.Callee)
			if !seenFuncs[name] {
				seenFuncs[name] = true
				t.functions = append(t.functions, name)
			}
		}
	})

	if namedValues != nil {
		for _, name := range t.namedValues {
			if !containsFold(namedValues, name) {
				return nil, fmt.Errorf("Unrecognized named-value: '%s'. Located within expression: %s", name, text)
			}
		}
	}
	if functions != nil {
		for _, name := range t.functions {
			if !containsFold(builtinFunctions, name) && !containsFold(functions, name) {
				return nil, fmt.Errorf("Unrecognized function: '%s'. Located within expression: %s", name, text)
			}
		}
	}
	return t, nil
}

// Evaluate implements Engine.
func (*Interpreter) Evaluate(t Tree, ctx *Context) (Result, error) {
	parsed, ok := t.(*tree)
	if !ok {
		return Result{}, fmt.Errorf("evaluate: tree %T was not produced by this engine", t)
	}
	ev := newEvaluator(ctx)
	v, err := ev.eval(parsed.root)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %q: %w", parsed.text, err)
	}
	tok := v.token()
	return Result{Value: tok, Kind: kindOf(tok), Truthy: truthy(tok)}, nil
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
