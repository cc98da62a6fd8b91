package matrix

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
	"github.com/google/go-cmp/cmp"
)

func stringSeq(values ...string) *token.Sequence {
	seq := token.NewSequence(nil)
	for _, v := range values {
		seq.Add(token.NewString(nil, v))
	}
	return seq
}

func filter(pairs ...any) *token.Mapping {
	m := token.NewMapping(nil)
	for i := 0; i < len(pairs); i += 2 {
		var v token.Token
		switch x := pairs[i+1].(type) {
		case string:
			v = token.NewString(nil, x)
		case bool:
			v = token.NewBoolean(nil, x)
		case token.Token:
			v = x
		}
		m.Add(token.NewString(nil, pairs[i].(string)), v)
	}
	return m
}

func seqOf(items ...token.Token) *token.Sequence {
	seq := token.NewSequence(nil)
	for _, it := range items {
		seq.Add(it)
	}
	return seq
}

func base(ctx *template.Context) *Builder {
	b := New(ctx, "build")
	b.AddVector("arch", stringSeq("x64", "x86"))
	b.AddVector("os", stringSeq("linux", "windows"))
	return b
}

func ids(configs []workflow.StrategyConfiguration) []string {
	out := make([]string, 0, len(configs))
	for _, c := range configs {
		out = append(out, c.ID)
	}
	return out
}

func noErrors(t *testing.T, ctx *template.Context) {
	t.Helper()
	if ctx.HasErrors() {
		t.Fatalf("unexpected errors %v", ctx.Errors())
	}
}

func TestCrossProduct(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	configs := base(ctx).Build()
	noErrors(t, ctx)
	want := []string{"x64_linux", "x64_windows", "x86_linux", "x86_windows"}
	if diff := cmp.Diff(want, ids(configs)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if configs[1].Name != "build (x64, windows)" {
		t.Fatalf("unexpected name %q", configs[1].Name)
	}
	strategy := configs[2].ExpressionData[ContextStrategy].(*token.Mapping)
	idx, _ := strategy.Lookup("job-index")
	total, _ := strategy.Lookup("job-total")
	maxParallel, _ := strategy.Lookup("max-parallel")
	failFast, _ := strategy.Lookup("fail-fast")
	if idx.String() != "2" || total.String() != "4" || maxParallel.String() != "4" || failFast.String() != "true" {
		t.Fatalf("unexpected strategy context %v %v %v %v", idx, total, maxParallel, failFast)
	}
}

func TestExclude(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := base(ctx)
	b.Exclude(seqOf(filter("arch", "x86", "os", "linux")))
	configs := b.Build()
	noErrors(t, ctx)
	want := []string{"x64_linux", "x64_windows", "x86_windows"}
	if diff := cmp.Diff(want, ids(configs)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestIncludeAddsExtras(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := base(ctx)
	b.Include(seqOf(filter("arch", "x64", "os", "linux", "publish", true)))
	configs := b.Build()
	noErrors(t, ctx)
	if len(configs) != 4 {
		t.Fatalf("expected 4 configurations, got %d", len(configs))
	}
	cell := configs[0].ExpressionData[ContextMatrix].(*token.Mapping)
	publish, ok := cell.Lookup("publish")
	if !ok || publish.String() != "true" {
		t.Fatalf("expected publish on x64/linux, got %v", publish)
	}
	for _, c := range configs[1:] {
		if _, ok := c.ExpressionData[ContextMatrix].(*token.Mapping).Lookup("publish"); ok {
			t.Fatalf("publish leaked into %s", c.ID)
		}
	}
}

func TestIncludeLastMatchWins(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := base(ctx)
	b.Include(seqOf(
		filter("os", "linux", "runner", "small"),
		filter("arch", "x64", "runner", "large"),
	))
	configs := b.Build()
	noErrors(t, ctx)
	got := make([]string, 0, len(configs))
	for _, c := range configs {
		r, _ := c.ExpressionData[ContextMatrix].(*token.Mapping).Lookup("runner")
		if r == nil {
			got = append(got, "-")
			continue
		}
		got = append(got, r.String())
	}
	if diff := cmp.Diff([]string{"large", "large", "small", "-"}, got); diff != "" {
		t.Fatalf("runner mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmatchedIncludeAppends(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := base(ctx)
	b.Include(seqOf(filter("os", "macos"), filter("os", "freebsd")))
	configs := b.Build()
	noErrors(t, ctx)
	if len(configs) != 6 {
		t.Fatalf("expected 6 configurations, got %d", len(configs))
	}
	fifth := configs[4].ExpressionData[ContextMatrix].(*token.Mapping)
	if fifth.Len() != 1 || configs[4].ID != "macos" || configs[5].ID != "freebsd" {
		t.Fatalf("unexpected appended cells %v %v", ids(configs), fifth)
	}
}

func TestIncludeOnlyMatrix(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := New(ctx, "deploy")
	b.Include(seqOf(filter("env", "staging"), filter("env", "prod")))
	configs := b.Build()
	noErrors(t, ctx)
	if diff := cmp.Diff([]string{"staging", "prod"}, ids(configs)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrixErrors(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	New(ctx, "x").Build()
	if !ctx.HasErrors() {
		t.Fatalf("expected error for empty matrix")
	}

	ctx = template.NewContext(template.Options{})
	b := base(ctx)
	b.AddVector("empty", token.NewSequence(nil))
	b.Exclude(seqOf(filter("color", "red"), token.NewMapping(nil), filter("os", "linux")))
	configs := b.Build()
	errs := ctx.Errors()
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
	if !strings.Contains(errs[1].Message, "'color' does not match") {
		t.Fatalf("unexpected error %q", errs[1].Message)
	}
	if len(configs) != 2 {
		t.Fatalf("valid exclude filters still apply, got %v", ids(configs))
	}
}

func TestLongNamesAreTruncated(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := New(ctx, strings.Repeat("j", 90))
	b.AddVector("v", stringSeq(strings.Repeat("x", 30)))
	configs := b.Build()
	if len(configs[0].Name) != MaxNameLength || !strings.HasSuffix(configs[0].Name, "...") {
		t.Fatalf("unexpected name %q", configs[0].Name)
	}
}

func TestLongNamesKeepRunes(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := New(ctx, strings.Repeat("j", 80))
	b.AddVector("v", stringSeq(strings.Repeat("é", 30)))
	configs := b.Build()
	name := configs[0].Name
	if !utf8.ValidString(name) || len(name) > MaxNameLength || !strings.HasSuffix(name, "...") {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestConfigurationCeiling(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		values[i] = strconv.Itoa(i)
	}
	ctx := template.NewContext(template.Options{})
	b := New(ctx, "huge")
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		b.AddVector(name, stringSeq(values...))
	}
	if configs := b.Build(); configs != nil {
		t.Fatalf("expected no configurations, got %d", len(configs))
	}
	errs := ctx.Errors()
	if len(errs) != 1 || errs[0].Code != workflow.CodeLimit {
		t.Fatalf("expected a single limit error, got %v", errs)
	}

	ctx = template.NewContext(template.Options{})
	b = New(ctx, "edge")
	b.AddVector("a", stringSeq(values[:16]...))
	b.AddVector("b", stringSeq(values[:16]...))
	if configs := b.Build(); len(configs) != MaxConfigurations {
		t.Fatalf("expected %d configurations, got %d", MaxConfigurations, len(configs))
	}
	noErrors(t, ctx)
}

func TestNestedValuesCompile(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	b := New(ctx, "build")
	b.AddVector("cfg", seqOf(filter("os", "linux", "ver", "1"), filter("os", "mac", "ver", "2")))
	b.Exclude(seqOf(filter("cfg", filter("os", "MAC"))))
	configs := b.Build()
	noErrors(t, ctx)
	if diff := cmp.Diff([]string{"linux_1"}, ids(configs)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}
