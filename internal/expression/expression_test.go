package expression

import (
	"strings"
	"testing"

	"github.com/bgricker/workflowc/internal/token"
)

func mustParse(t *testing.T, text string) Tree {
	t.Helper()
	tree, err := NewInterpreter().Parse(text, nil, nil)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	return tree
}

func eval(t *testing.T, text string, ctx *Context) Result {
	t.Helper()
	res, err := NewInterpreter().Evaluate(mustParse(t, text), ctx)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", text, err)
	}
	return res
}

func TestParseRestrictsNamedValues(t *testing.T) {
	in := NewInterpreter()
	if _, err := in.Parse("github.ref == 'main'", []string{"github"}, []string{}); err != nil {
		t.Fatalf("expected allowed named value, got %v", err)
	}
	_, err := in.Parse("secrets.token", []string{"github"}, nil)
	if err == nil || !strings.Contains(err.Error(), "Unrecognized named-value: 'secrets'") {
		t.Fatalf("expected unrecognized named-value error, got %v", err)
	}
}

func TestParseRestrictsFunctions(t *testing.T) {
	in := NewInterpreter()
	if _, err := in.Parse("contains(github.ref, 'x')", nil, []string{}); err != nil {
		t.Fatalf("builtins must always be allowed: %v", err)
	}
	_, err := in.Parse("hashFiles('**/go.sum')", nil, []string{"success"})
	if err == nil || !strings.Contains(err.Error(), "Unrecognized function: 'hashfiles'") {
		t.Fatalf("expected unrecognized function error, got %v", err)
	}
	if _, err := in.Parse("HASHFILES('x')", nil, []string{FuncHashFiles}); err != nil {
		t.Fatalf("function names are case-insensitive: %v", err)
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := NewInterpreter().Parse("github.ref ==", nil, nil); err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, err := NewInterpreter().Parse("   ", nil, nil); err == nil {
		t.Fatalf("expected error for empty expression")
	}
}

func TestUsesFunction(t *testing.T) {
	if !UsesFunction(mustParse(t, "failure() || github.ref == 'x'"), StatusFunctions...) {
		t.Fatalf("expected status function detected")
	}
	if UsesFunction(mustParse(t, "github.event_name == 'push'"), StatusFunctions...) {
		t.Fatalf("unexpected status function")
	}
}

func TestEvaluateMatrixFilter(t *testing.T) {
	cell := token.NewMapping(nil)
	cell.Add(token.NewString(nil, "OS"), token.NewString(nil, "Linux"))
	cell.Add(token.NewString(nil, "node"), token.NewNumber(nil, 18))
	ctx := &Context{NamedValues: map[string]token.Token{"matrix": cell}}

	cases := map[string]bool{
		"matrix['os'] == 'linux'":                         true,
		"matrix['os'] == 'windows'":                       false,
		"matrix['node'] == 18 && matrix['os'] == 'LINUX'": true,
		"matrix['node'] == '18'":                          true,
		"matrix['missing'] == null":                       true,
		"matrix.node > 16":                                true,
		"!matrix.os":                                      false,
	}
	for expr, want := range cases {
		if got := eval(t, expr, ctx).Truthy; got != want {
			t.Fatalf("%s = %v, want %v", expr, got, want)
		}
	}
}

func TestEvaluateLogicalOperatorsReturnOperands(t *testing.T) {
	res := eval(t, "'' || 'fallback'", nil)
	if res.Kind != KindString || res.Value.String() != "fallback" {
		t.Fatalf("unexpected result %+v", res)
	}
	res = eval(t, "0 && 'never'", nil)
	if res.Kind != KindNumber || res.Truthy {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEvaluateBuiltins(t *testing.T) {
	cases := map[string]string{
		"format('{0}-{1}', 'a', 1)":                "a-1",
		"format('{{0}}', 'x')":                     "{0}",
		"join(fromJSON('[1,2,3]'), '+')":           "1+2+3",
		"toJSON(fromJSON('{\"b\":1,\"a\":true}'))": "{\n  \"b\": 1,\n  \"a\": true\n}",
		"contains('Hello', 'ELL')":                 "true",
		"startsWith('refs/heads/main', 'refs/')":   "true",
		"endsWith('file.yml', '.YAML')":            "false",
	}
	for expr, want := range cases {
		if got := eval(t, expr, nil).Value.String(); got != want {
			t.Fatalf("%s = %q, want %q", expr, got, want)
		}
	}
}

func TestEvaluateArrayFilter(t *testing.T) {
	res := eval(t, "contains(fromJSON('[{\"n\":\"a\"},{\"n\":\"b\"}]').*.n, 'b')", nil)
	if !res.Truthy {
		t.Fatalf("expected object filter to match, got %+v", res)
	}
}

func TestEvaluateHostFunctions(t *testing.T) {
	called := false
	ctx := &Context{Functions: map[string]Function{
		FuncSuccess: func([]token.Token) (token.Token, error) {
			called = true
			return token.NewBoolean(nil, true), nil
		},
	}}
	if !eval(t, "success()", ctx).Truthy || !called {
		t.Fatalf("expected host function to be called")
	}
	if _, err := NewInterpreter().Evaluate(mustParse(t, "always()"), nil); err == nil {
		t.Fatalf("expected error for function without host implementation")
	}
}

func TestEvaluateNaNNeverEqual(t *testing.T) {
	if eval(t, "'abc' == 0", nil).Truthy {
		t.Fatalf("non-numeric string must not equal 0")
	}
	if !eval(t, "'' == 0", nil).Truthy {
		t.Fatalf("empty string coerces to 0")
	}
}

func TestEvaluateIndexOutOfRange(t *testing.T) {
	for _, expr := range []string{
		"fromJSON('[1,2]')['Infinity']",
		"fromJSON('[1,2]')['-Infinity']",
		"fromJSON('[1,2]')['1e300']",
		"fromJSON('[1,2]')[2]",
		"fromJSON('[1,2]')['-1']",
	} {
		res := eval(t, expr, nil)
		if _, ok := res.Value.(*token.Null); !ok {
			t.Fatalf("%s = %v, want null", expr, res.Value)
		}
	}
	if got := eval(t, "fromJSON('[1,2]')[1.7]", nil).Value.String(); got != "2" {
		t.Fatalf("fractional index = %q, want 2", got)
	}
}
