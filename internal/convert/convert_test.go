package convert

import (
	"strings"
	"testing"

	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
	"github.com/google/go-cmp/cmp"
)

func convert(t *testing.T, doc string) (*workflow.Template, *template.Context) {
	t.Helper()
	ctx := template.NewContext(template.Options{})
	id := ctx.AddFile(".github/workflows/ci.yml")
	root, err := template.Read(ctx, id, []byte(doc))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return Convert(ctx, root), ctx
}

func countCode(errs []workflow.Error, code string) int {
	n := 0
	for _, e := range errs {
		if e.Code == code {
			n++
		}
	}
	return n
}

func TestNormalizeCondition(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ConditionKind
		want string
	}{
		{name: "empty", in: "", kind: ConditionJob, want: "success()"},
		{name: "guarded", in: "github.event_name == 'push'", kind: ConditionJob, want: "success() && (github.event_name == 'push')"},
		{name: "status function", in: "failure()", kind: ConditionJob, want: "failure()"},
		{name: "nested status function", in: "always() && github.ref == 'main'", kind: ConditionJob, want: "always() && github.ref == 'main'"},
		{name: "step hashFiles", in: "hashFiles('go.sum') != ''", kind: ConditionStep, want: "success() && (hashFiles('go.sum') != '')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := template.NewContext(template.Options{})
			got := NormalizeCondition(ctx, tt.in, tt.kind)
			if ctx.HasErrors() {
				t.Fatalf("unexpected errors %v", ctx.Errors())
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeConditionRejectsDisallowedNames(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	NormalizeCondition(ctx, "hashFiles('go.sum') != ''", ConditionJob)
	if countCode(ctx.Errors(), workflow.CodeExpression) != 1 {
		t.Fatalf("expected an expression error, got %v", ctx.Errors())
	}
	ctx = template.NewContext(template.Options{})
	NormalizeCondition(ctx, "steps.build.outcome == 'success'", ConditionJob)
	if !ctx.HasErrors() {
		t.Fatalf("expected steps to be rejected in a job condition")
	}
}

func graphJobs(pairs ...[]string) []workflow.JobItem {
	var jobs []workflow.JobItem
	for _, p := range pairs {
		jobs = append(jobs, &workflow.Job{ID: p[0], Needs: p[1:], Source: &token.Source{Line: 1, Column: 1}})
	}
	return jobs
}

func TestResolveGraph(t *testing.T) {
	tests := []struct {
		name  string
		jobs  []workflow.JobItem
		codes map[string]int
	}{
		{
			name:  "chain",
			jobs:  graphJobs([]string{"A"}, []string{"B", "A"}, []string{"C", "B"}),
			codes: map[string]int{},
		},
		{
			name:  "case insensitive",
			jobs:  graphJobs([]string{"Build"}, []string{"test", "build"}),
			codes: map[string]int{},
		},
		{
			name:  "two job cycle",
			jobs:  graphJobs([]string{"A", "B"}, []string{"B", "A"}),
			codes: map[string]int{workflow.CodeJobCycle: 1, workflow.CodeJobNoRoot: 1},
		},
		{
			name:  "cycle below a root",
			jobs:  graphJobs([]string{"root"}, []string{"A", "root", "B"}, []string{"B", "A"}, []string{"C", "A"}),
			codes: map[string]int{workflow.CodeJobCycle: 1},
		},
		{
			name:  "self dependency",
			jobs:  graphJobs([]string{"root"}, []string{"A", "A"}),
			codes: map[string]int{workflow.CodeJobCycle: 1},
		},
		{
			name:  "unknown dependency",
			jobs:  graphJobs([]string{"A", "Z"}),
			codes: map[string]int{workflow.CodeJobUnknownDependency: 1, workflow.CodeJobNoRoot: 1},
		},
		{
			name:  "two cycles",
			jobs:  graphJobs([]string{"root"}, []string{"A", "B"}, []string{"B", "A"}, []string{"C", "D"}, []string{"D", "C"}),
			codes: map[string]int{workflow.CodeJobCycle: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := template.NewContext(template.Options{})
			ResolveGraph(ctx, tt.jobs)
			got := map[string]int{}
			for _, e := range ctx.Errors() {
				got[e.Code]++
			}
			if diff := cmp.Diff(tt.codes, got); diff != "" {
				t.Fatalf("error codes mismatch (-want +got):\n%s\n%v", diff, ctx.Errors())
			}
		})
	}
}

func TestResolveGraphCycleMessageNamesJobs(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	ResolveGraph(ctx, graphJobs([]string{"A", "B"}, []string{"B", "A"}))
	for _, e := range ctx.Errors() {
		if e.Code == workflow.CodeJobCycle {
			if !strings.Contains(e.Message, "'A'") || !strings.Contains(e.Message, "'B'") {
				t.Fatalf("cycle error should name both jobs: %s", e.Message)
			}
			return
		}
	}
	t.Fatalf("no cycle error in %v", ctx.Errors())
}

func TestResolveGraphOrdersCyclesByFirstJob(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	// C reaches the A/B cycle before closing its own cycle with D.
	ResolveGraph(ctx, graphJobs([]string{"root"}, []string{"C", "A", "D"}, []string{"A", "B"}, []string{"B", "A"}, []string{"D", "C"}))
	var got []string
	for _, e := range ctx.Errors() {
		if e.Code == workflow.CodeJobCycle {
			got = append(got, e.Message)
		}
	}
	want := []string{
		"Jobs 'C', 'D' form a dependency cycle.",
		"Jobs 'A', 'B' form a dependency cycle.",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d cycle errors, got %v", len(want), ctx.Errors())
	}
	for i := range want {
		if !strings.HasSuffix(got[i], want[i]) {
			t.Fatalf("cycle %d = %q, want suffix %q", i, got[i], want[i])
		}
	}
}

const ciWorkflow = `name: CI
on:
  push:
    branches: [main]
permissions: read-all
jobs:
  build:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        os: [linux, windows]
    steps:
      - uses: actions/checkout@v4
      - uses: actions/checkout@v4
      - run: make
      - id: test
        run: make test
      - uses: docker://ghcr.io/org/alpine:3.8
      - uses: ./local/action
  deploy:
    needs: build
    if: github.ref == 'refs/heads/main'
    runs-on: ubuntu-latest
    permissions:
      contents: write
      future-scope: write
    steps:
      - run: ./deploy.sh
`

func TestConvertWorkflow(t *testing.T) {
	tmpl, _ := convert(t, ciWorkflow)
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors %v", tmpl.Errors)
	}
	if tmpl.Name != "CI" {
		t.Fatalf("unexpected name %q", tmpl.Name)
	}
	if _, ok := tmpl.Events.Lookup("push"); !ok {
		t.Fatalf("missing push event")
	}
	if len(tmpl.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(tmpl.Jobs))
	}

	build := tmpl.Jobs[0].(*workflow.Job)
	var ids []string
	for _, s := range build.Steps {
		ids = append(ids, s.Common().ID)
	}
	want := []string{"__actions_checkout", "__actions_checkout_2", "__run", "test", "__alpine", "__self"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("step ids mismatch (-want +got):\n%s", diff)
	}
	if build.If != "success()" {
		t.Fatalf("unexpected build condition %q", build.If)
	}
	if build.Strategy == nil || len(build.Strategy.Configurations) != 2 {
		t.Fatalf("expected 2 matrix configurations, got %+v", build.Strategy)
	}
	if build.Permissions.Level(workflow.ScopeContents) != workflow.Read {
		t.Fatalf("build should inherit read-all, got %s", build.Permissions)
	}
	if !build.InheritedPermissions {
		t.Fatalf("build permissions should be marked inherited")
	}

	deploy := tmpl.Jobs[1].(*workflow.Job)
	if deploy.If != "success() && (github.ref == 'refs/heads/main')" {
		t.Fatalf("unexpected deploy condition %q", deploy.If)
	}
	if deploy.Permissions.Level(workflow.ScopeContents) != workflow.Write {
		t.Fatalf("unexpected deploy permissions %s", deploy.Permissions)
	}
	if deploy.InheritedPermissions {
		t.Fatalf("deploy declares its own permissions")
	}
	if deploy.Permissions.Level(workflow.ScopeIssues) != workflow.NoAccess {
		t.Fatalf("unlisted scopes should be none, got %s", deploy.Permissions)
	}
}

func TestConvertReportsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code string
		msg  string
	}{
		{
			name: "missing on",
			doc:  "jobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "Required property is missing: on",
		},
		{
			name: "unknown root key",
			doc:  "on: push\nbogus: 1\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeUnexpectedValue,
			msg:  "line 2, col 1: Unexpected value 'bogus'",
		},
		{
			name: "unknown permission level",
			doc:  "on: push\npermissions:\n  contents: admin\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeUnexpectedValue,
			msg:  "Unexpected value 'admin' for permission 'contents'",
		},
		{
			name: "bad permission shorthand",
			doc:  "on: push\npermissions: read\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeUnexpectedValue,
			msg:  "Unexpected value 'read'",
		},
		{
			name: "reserved job id",
			doc:  "on: push\njobs:\n  __a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "are reserved",
		},
		{
			name: "reserved step id",
			doc:  "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - id: __run\n        run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "Invalid step id",
		},
		{
			name: "run and uses",
			doc:  "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n        uses: actions/checkout@v4\n",
			code: workflow.CodeSemantic,
			msg:  "'run' or 'uses' but not both",
		},
		{
			name: "bad action reference",
			doc:  "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - uses: checkout\n",
			code: workflow.CodeReference,
			msg:  "expected format {org}/{repo}[/path]@ref. Actual 'checkout'",
		},
		{
			name: "bad snapshot version",
			doc:  "on: push\njobs:\n  a:\n    runs-on: x\n    snapshot:\n      image-name: img\n      version: '1.2'\n    steps:\n      - run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "invalid snapshot version",
		},
		{
			name: "concurrency group too long",
			doc:  "on: push\nconcurrency: " + strings.Repeat("g", MaxConcurrencyGroupLength+1) + "\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "between 1 and 400 characters",
		},
		{
			name: "workflow call input without type",
			doc:  "on:\n  workflow_call:\n    inputs:\n      name:\n        required: true\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeSemantic,
			msg:  "Required property is missing: type",
		},
		{
			name: "workflow call default type",
			doc:  "on:\n  workflow_call:\n    inputs:\n      flag:\n        type: boolean\n        default: yes\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeType,
			msg:  "must be a boolean",
		},
		{
			name: "unknown needs",
			doc:  "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - run: echo\n  b:\n    needs: z\n    runs-on: x\n    steps:\n      - run: echo\n",
			code: workflow.CodeJobUnknownDependency,
			msg:  "Job 'b' depends on unknown job 'z'.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, _ := convert(t, tt.doc)
			for _, e := range tmpl.Errors {
				if e.Code == tt.code && strings.Contains(e.Message, tt.msg) {
					return
				}
			}
			t.Fatalf("expected %s error containing %q, got %v", tt.code, tt.msg, tmpl.Errors)
		})
	}
}

func TestConvertWorkflowCall(t *testing.T) {
	doc := `on:
  workflow_call:
    inputs:
      target:
        type: string
        required: true
      retries:
        type: number
        default: 3
    secrets:
      token:
        required: true
      optional:
    outputs:
      digest:
        value: ${{ jobs.build.outputs.digest }}
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo
`
	tmpl, _ := convert(t, doc)
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors %v", tmpl.Errors)
	}
	call := tmpl.WorkflowCall
	if call == nil {
		t.Fatalf("expected a workflow_call contract")
	}
	if len(call.Inputs) != 2 || call.Inputs[0].Name != "target" || !call.Inputs[0].Required || call.Inputs[1].Type != InputNumber {
		t.Fatalf("unexpected inputs %+v", call.Inputs)
	}
	if len(call.Secrets) != 2 || !call.Secrets[0].Required || call.Secrets[1].Required {
		t.Fatalf("unexpected secrets %+v", call.Secrets)
	}
	if len(call.Outputs) != 1 || !token.IsExpression(call.Outputs[0].Value) {
		t.Fatalf("unexpected outputs %+v", call.Outputs)
	}
}

func TestConvertReusableJob(t *testing.T) {
	doc := `on: push
jobs:
  call:
    uses: octo/shared/.github/workflows/build.yml@v1
    with:
      target: ${{ github.ref }}
    secrets: inherit
  local:
    needs: call
    uses: ./.github/workflows/deploy.yml
`
	tmpl, _ := convert(t, doc)
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors %v", tmpl.Errors)
	}
	call := tmpl.Jobs[0].(*workflow.ReusableWorkflowJob)
	if call.Ref.Repository != "octo/shared" || call.Ref.Version != "v1" || !call.InheritSecrets {
		t.Fatalf("unexpected reusable job %+v", call)
	}
	local := tmpl.Jobs[1].(*workflow.ReusableWorkflowJob)
	if !local.Ref.Local {
		t.Fatalf("expected a local reference, got %+v", local.Ref)
	}
}

func TestConvertEarlyToleratesExpressions(t *testing.T) {
	doc := `on: push
jobs:
  a:
    runs-on: ${{ matrix.os }}
    timeout-minutes: ${{ inputs.timeout }}
    continue-on-error: ${{ inputs.lenient }}
    strategy:
      matrix: ${{ fromJSON(inputs.matrix) }}
    container: ${{ inputs.image }}
    steps:
      - run: echo
`
	tmpl, _ := convert(t, doc)
	if tmpl.HasErrors() {
		t.Fatalf("unexpected errors %v", tmpl.Errors)
	}
	job := tmpl.Jobs[0].(*workflow.Job)
	if job.Strategy == nil || job.Strategy.Configurations != nil {
		t.Fatalf("expected a deferred strategy, got %+v", job.Strategy)
	}
}

func TestLateConversion(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	m := token.NewMapping(nil)
	m.Add(token.NewString(nil, "group"), token.NewString(nil, "deploy"))
	m.Add(token.NewString(nil, "cancel-in-progress"), token.NewBoolean(nil, true))
	got := ConvertToConcurrency(ctx, m)
	if diff := cmp.Diff(&workflow.Concurrency{Group: "deploy", CancelInProgress: true}, got); diff != "" {
		t.Fatalf("concurrency mismatch (-want +got):\n%s", diff)
	}

	if n, ok := ConvertToTimeout(ctx, token.NewNumber(nil, 30)); !ok || n != 30 {
		t.Fatalf("unexpected timeout %v %v", n, ok)
	}
	if b, ok := ConvertToContinueOnError(ctx, token.NewBoolean(nil, true)); !ok || !b {
		t.Fatalf("unexpected continue-on-error %v %v", b, ok)
	}
	if env := ConvertToEnvironment(ctx, token.NewString(nil, "prod")); env == nil || env.Name != "prod" {
		t.Fatalf("unexpected environment %+v", env)
	}
	if c := ConvertToContainer(ctx, token.NewString(nil, "node:20")); c == nil || c.Image != "node:20" {
		t.Fatalf("unexpected container %+v", c)
	}
	if ctx.HasErrors() {
		t.Fatalf("unexpected errors %v", ctx.Errors())
	}

	if _, ok := ConvertToTimeout(ctx, token.NewBasicExpression(nil, "inputs.timeout")); ok {
		t.Fatalf("an expression should not convert after substitution")
	}
	if _, ok := ConvertToTimeout(ctx, token.NewNumber(nil, -1)); ok {
		t.Fatalf("a negative timeout should be rejected")
	}
	if c := ConvertToContainer(ctx, token.NewString(nil, "")); c != nil {
		t.Fatalf("an empty image should be rejected")
	}
	if ctx.ErrorCount() != 3 {
		t.Fatalf("expected 3 errors, got %v", ctx.Errors())
	}
}

func TestLateStrategyRejectsExpressions(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	matrix := token.NewMapping(nil)
	matrix.Add(token.NewString(nil, "os"), token.NewBasicExpression(nil, "fromJSON(inputs.os)"))
	strategy := token.NewMapping(nil)
	strategy.Add(token.NewString(nil, "matrix"), matrix)
	ConvertToStrategy(ctx, strategy, "build")
	if countCode(ctx.Errors(), workflow.CodeType) != 1 {
		t.Fatalf("expected one type error, got %v", ctx.Errors())
	}
}

func TestLateStrategyExpandsMatrix(t *testing.T) {
	ctx := template.NewContext(template.Options{})
	os := token.NewSequence(nil)
	os.Add(token.NewString(nil, "linux"))
	os.Add(token.NewString(nil, "windows"))
	matrix := token.NewMapping(nil)
	matrix.Add(token.NewString(nil, "os"), os)
	strategy := token.NewMapping(nil)
	strategy.Add(token.NewString(nil, "fail-fast"), token.NewBoolean(nil, false))
	strategy.Add(token.NewString(nil, "matrix"), matrix)
	got := ConvertToStrategy(ctx, strategy, "build")
	if ctx.HasErrors() {
		t.Fatalf("unexpected errors %v", ctx.Errors())
	}
	if got.FailFast || len(got.Configurations) != 2 || got.Configurations[0].Name != "build (linux)" {
		t.Fatalf("unexpected strategy %+v", got)
	}
}
