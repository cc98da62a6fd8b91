package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bgricker/workflowc/internal/report"
)

// PrettyRenderer renders results in a human-friendly format.
type PrettyRenderer struct {
	out     io.Writer
	verbose bool
}

// NewPretty creates a PrettyRenderer writing to the provided writer. Verbose
// output adds telemetry and the files each workflow pulled in.
func NewPretty(out io.Writer, verbose bool) *PrettyRenderer {
	return &PrettyRenderer{out: out, verbose: verbose}
}

// RenderList renders workflows and their jobs, including matrix
// configurations and reusable workflow callees.
func (p *PrettyRenderer) RenderList(results []report.WorkflowResult) error {
	var buf bytes.Buffer
	for _, res := range results {
		fmt.Fprintf(&buf, "Workflow %s\n", decorateName(res.Name, res.Path))
		writeJobs(&buf, res.Jobs, "  ")
		writeDiagnostics(&buf, res, "  ")
	}
	_, err := buf.WriteTo(p.out)
	return err
}

func writeJobs(buf *bytes.Buffer, jobs []report.JobSummary, pad string) {
	for _, job := range jobs {
		fmt.Fprintf(buf, "%sJob %s", pad, decorateName(job.Name, job.ID))
		switch {
		case job.Uses != "":
			fmt.Fprintf(buf, " uses %s", job.Uses)
		case job.RunsOn != "":
			fmt.Fprintf(buf, " on %s", job.RunsOn)
		}
		buf.WriteByte('\n')
		if len(job.Needs) > 0 {
			fmt.Fprintf(buf, "%s  needs: %s\n", pad, strings.Join(job.Needs, ", "))
		}
		if job.If != "" {
			fmt.Fprintf(buf, "%s  if: %s\n", pad, job.If)
		}
		for _, c := range job.Configurations {
			fmt.Fprintf(buf, "%s  • %s\n", pad, c)
		}
		for _, s := range job.Steps {
			fmt.Fprintf(buf, "%s  - %s\n", pad, s)
		}
		writeJobs(buf, job.Jobs, pad+"  ")
	}
}

// RenderResults shows validation outcomes with a summary.
func (p *PrettyRenderer) RenderResults(results []report.WorkflowResult, summary report.Summary) error {
	var buf bytes.Buffer
	for _, res := range results {
		fmt.Fprintf(&buf, "%s %s (%s)\n", statusGlyph(res.Status), decorateName(res.Name, res.Path), formatDuration(res.Duration))
		writeDiagnostics(&buf, res, "    ")
		if p.verbose {
			t := res.Telemetry
			fmt.Fprintf(&buf, "    files: %d, depth: %d, local refs: %d, remote refs: %d, anchors: %d, aliases: %d\n",
				t.FilesLoaded, t.MaxDepth, t.LocalReferences, t.RemoteReferences, t.Anchors, t.Aliases)
			for _, f := range res.Files {
				fmt.Fprintf(&buf, "      %s\n", f)
			}
		}
	}
	fmt.Fprintf(&buf, "SUMMARY: %d valid, %d invalid, %d failed, %d errors (%s)\n",
		summary.Valid, summary.Invalid, summary.Failed, summary.Errors, formatDuration(summary.Duration))
	_, err := buf.WriteTo(p.out)
	return err
}

func writeDiagnostics(buf *bytes.Buffer, res report.WorkflowResult, pad string) {
	for _, e := range res.Errors {
		fmt.Fprintf(buf, "%s[%s] %s\n", pad, e.Code, indentTail(e.Message, pad+"  "))
	}
	if res.Failure != "" {
		fmt.Fprintf(buf, "%serror: %s\n", pad, indentTail(res.Failure, pad+"  "))
	}
}

func decorateName(name, path string) string {
	if name == "" || name == path {
		return path
	}
	return fmt.Sprintf("%s (%s)", name, path)
}

func statusGlyph(status string) string {
	switch status {
	case report.StatusValid:
		return "✓"
	case report.StatusInvalid:
		return "✗"
	case report.StatusFailed:
		return "!"
	default:
		return "?"
	}
}

// indentTail pads every line after the first.
func indentTail(s, pad string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\n", "\n"+pad)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
