package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/workflowc/internal/report"
)

// JSONRenderer emits structured validation data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Report captures JSON output schema.
type Report struct {
	Workflows []report.WorkflowResult `json:"workflows"`
	Summary   *report.Summary         `json:"summary,omitempty"`
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(r Report) error {
	if r.Workflows == nil {
		r.Workflows = []report.WorkflowResult{}
	}
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RenderRaw encodes an already serialized document, indenting it.
func (j *JSONRenderer) RenderRaw(data []byte) error {
	var v json.RawMessage = data
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
