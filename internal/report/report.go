// Package report holds the results produced by validating workflow files.
package report

import (
	"strings"
	"time"

	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// Workflow statuses.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

// Job kinds.
const (
	KindJob      = "job"
	KindReusable = "reusable"
)

// WorkflowResult captures the outcome of loading one workflow file.
type WorkflowResult struct {
	Path      string             `json:"path"`
	Name      string             `json:"name,omitempty"`
	Status    string             `json:"status"`
	Errors    []workflow.Error   `json:"errors,omitempty"`
	Failure   string             `json:"failure,omitempty"`
	Jobs      []JobSummary       `json:"jobs,omitempty"`
	Files     []string           `json:"files,omitempty"`
	Telemetry workflow.Telemetry `json:"telemetry"`
	Duration  time.Duration      `json:"-"`
	// DurationMS mirrors Duration for JSON consumers.
	DurationMS int64 `json:"duration_ms"`
}

// JobSummary describes a converted job for listings.
type JobSummary struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Kind           string       `json:"kind"`
	Needs          []string     `json:"needs,omitempty"`
	If             string       `json:"if,omitempty"`
	RunsOn         string       `json:"runs_on,omitempty"`
	Uses           string       `json:"uses,omitempty"`
	Configurations []string     `json:"configurations,omitempty"`
	Steps          []string     `json:"steps,omitempty"`
	Jobs           []JobSummary `json:"jobs,omitempty"`
}

// Summary aggregates validation results.
type Summary struct {
	TotalWorkflows int           `json:"total_workflows"`
	TotalJobs      int           `json:"total_jobs"`
	Valid          int           `json:"valid"`
	Invalid        int           `json:"invalid"`
	Failed         int           `json:"failed"`
	Errors         int           `json:"errors"`
	Duration       time.Duration `json:"-"`
	DurationMS     int64         `json:"duration_ms"`
	ExitCode       int           `json:"exit_code"`
}

// Result builds the result for a loaded template. err is a load failure
// that aborted the file.
func Result(path string, tmpl *workflow.Template, err error) WorkflowResult {
	res := WorkflowResult{Path: path, Status: StatusValid}
	if tmpl != nil {
		res.Name = tmpl.Name
		res.Errors = tmpl.Errors
		res.Jobs = Jobs(tmpl.Jobs)
		res.Files = tmpl.FileTable
		res.Telemetry = tmpl.Telemetry
		if tmpl.HasErrors() {
			res.Status = StatusInvalid
		}
	}
	if err != nil {
		res.Status = StatusFailed
		res.Failure = err.Error()
	}
	return res
}

// Summarize totals results. The exit code is 1 when any workflow is not valid.
func Summarize(results []WorkflowResult, elapsed time.Duration) Summary {
	s := Summary{TotalWorkflows: len(results), Duration: elapsed, DurationMS: elapsed.Milliseconds()}
	for _, r := range results {
		s.TotalJobs += countJobs(r.Jobs)
		s.Errors += len(r.Errors)
		switch r.Status {
		case StatusValid:
			s.Valid++
		case StatusInvalid:
			s.Invalid++
		default:
			s.Failed++
		}
	}
	if s.Invalid > 0 || s.Failed > 0 {
		s.ExitCode = 1
	}
	return s
}

func countJobs(jobs []JobSummary) int {
	n := 0
	for _, j := range jobs {
		n++
		n += countJobs(j.Jobs)
	}
	return n
}

// Jobs summarizes converted jobs, descending into loaded reusable workflows.
func Jobs(items []workflow.JobItem) []JobSummary {
	if len(items) == 0 {
		return nil
	}
	out := make([]JobSummary, 0, len(items))
	for _, item := range items {
		switch j := item.(type) {
		case *workflow.Job:
			js := JobSummary{
				ID:             j.ID,
				Name:           j.Name,
				Kind:           KindJob,
				Needs:          j.Needs,
				If:             j.If,
				RunsOn:         RunsOn(j.RunsOn),
				Configurations: configurations(j.Strategy),
			}
			for _, step := range j.Steps {
				js.Steps = append(js.Steps, step.Common().ID)
			}
			out = append(out, js)
		case *workflow.ReusableWorkflowJob:
			out = append(out, JobSummary{
				ID:             j.ID,
				Name:           j.Name,
				Kind:           KindReusable,
				Needs:          j.Needs,
				If:             j.If,
				Uses:           j.Ref.String(),
				Configurations: configurations(j.Strategy),
				Jobs:           Jobs(j.Jobs),
			})
		}
	}
	return out
}

func configurations(s *workflow.Strategy) []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Configurations))
	for _, c := range s.Configurations {
		names = append(names, c.Name)
	}
	return names
}

// RunsOn renders a `runs-on` value as a comma separated label list.
func RunsOn(t token.Token) string {
	switch v := t.(type) {
	case nil:
		return ""
	case *token.Sequence:
		labels := make([]string, 0, v.Len())
		for _, item := range v.All() {
			labels = append(labels, item.String())
		}
		return strings.Join(labels, ", ")
	case *token.Mapping:
		var parts []string
		if group, ok := v.Lookup("group"); ok {
			parts = append(parts, "group "+group.String())
		}
		if labels, ok := v.Lookup("labels"); ok {
			if l := RunsOn(labels); l != "" {
				parts = append(parts, l)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return v.String()
	}
}
