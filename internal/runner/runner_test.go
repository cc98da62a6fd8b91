package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bgricker/workflowc/internal/filter"
	"github.com/bgricker/workflowc/internal/report"
)

const validWorkflow = `name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: make
  test:
    needs: build
    runs-on: ubuntu-latest
    steps:
      - run: make test
`

const invalidWorkflow = `on: push
jobs:
  a:
    needs: b
    runs-on: ubuntu-latest
    steps:
      - run: echo a
  b:
    needs: a
    runs-on: ubuntu-latest
    steps:
      - run: echo b
`

func writeWorkflow(t *testing.T, root, name, body string) string {
	t.Helper()
	rel := filepath.Join(".github", "workflows", name)
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return rel
}

func fixedClock() func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time { return now }
}

func TestValidateKeepsInputOrder(t *testing.T) {
	root := t.TempDir()
	paths := []string{
		writeWorkflow(t, root, "ci.yml", validWorkflow),
		writeWorkflow(t, root, "cycle.yml", invalidWorkflow),
		filepath.Join(".github", "workflows", "missing.yml"),
	}

	r := New(Options{Root: root, Concurrency: 2, Now: fixedClock()})
	results, summary, err := r.Validate(context.Background(), paths)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	wantStatus := []string{report.StatusValid, report.StatusInvalid, report.StatusFailed}
	for i, res := range results {
		if res.Path != paths[i] {
			t.Fatalf("result %d: path %q, want %q", i, res.Path, paths[i])
		}
		if res.Status != wantStatus[i] {
			t.Fatalf("result %d: status %q, want %q (%+v)", i, res.Status, wantStatus[i], res)
		}
	}
	if results[0].Name != "CI" || len(results[0].Jobs) != 2 {
		t.Fatalf("unexpected valid result: %+v", results[0])
	}
	if len(results[1].Errors) == 0 {
		t.Fatalf("expected diagnostics for the cycle")
	}
	if summary.TotalWorkflows != 3 || summary.Valid != 1 || summary.Invalid != 1 || summary.Failed != 1 || summary.ExitCode != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestValidateFiltersJobs(t *testing.T) {
	root := t.TempDir()
	other := writeWorkflow(t, root, "other.yml", `on: push
jobs:
  lint:
    runs-on: ubuntu-latest
    steps:
      - run: make lint
`)
	ci := writeWorkflow(t, root, "ci.yml", validWorkflow)

	patterns, err := filter.Compile([]string{"test"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	r := New(Options{Root: root, Concurrency: 1, Jobs: patterns})
	results, summary, err := r.Validate(context.Background(), []string{other, ci})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(results) != 1 || results[0].Path != ci {
		t.Fatalf("expected only %s, got %+v", ci, results)
	}
	if len(results[0].Jobs) != 1 || results[0].Jobs[0].ID != "test" {
		t.Fatalf("expected only the test job, got %+v", results[0].Jobs)
	}
	if summary.TotalWorkflows != 1 || summary.TotalJobs != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestValidateAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "external.yml")
	if err := os.WriteFile(path, []byte(validWorkflow), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	results, _, err := New(Options{Root: t.TempDir()}).Validate(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if results[0].Status != report.StatusValid {
		t.Fatalf("expected valid result, got %+v", results[0])
	}
}

func TestValidateCancelled(t *testing.T) {
	root := t.TempDir()
	path := writeWorkflow(t, root, "ci.yml", validWorkflow)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New(Options{Root: root}).Validate(ctx, []string{path}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
