// Package convert turns template tokens into the typed workflow model.
//
// Conversion happens in two passes. The early pass runs when a file is
// parsed and tolerates fields that still hold expressions. The late pass
// (the ConvertTo functions) runs after substitution and requires concrete
// values.
package convert

import (
	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// Convert converts a workflow root into a Template. Diagnostics are recorded
// on ctx and copied into the result, so the result is always non-nil.
func Convert(ctx *template.Context, root token.Token) *workflow.Template {
	c := &converter{ctx: ctx, early: true}
	out := &workflow.Template{}
	c.template(root, out)
	out.Errors = ctx.Errors()
	out.FileTable = ctx.FileTable()
	out.Telemetry = ctx.Telemetry
	return out
}

func (c *converter) template(root token.Token, out *workflow.Template) {
	if root == nil {
		return
	}
	m, ok := c.mapping(root, "workflow")
	if !ok {
		return
	}

	var events, jobs token.Token
	c.pairs(m, func(key *token.String, v token.Token) {
		switch key.Value {
		case "name":
			if token.IsExpression(v) {
				out.Name = v.String()
				return
			}
			out.Name, _ = c.str(v, "name")
		case "run-name":
			if _, isLit := v.(token.Literal); !isLit && !token.IsExpression(v) {
				c.errorf(v, workflow.CodeType, "Expected a string for 'run-name'")
				return
			}
			out.RunName = v
		case "on":
			events = v
		case "env":
			out.Env = c.stringMap(v, "env")
		case "defaults":
			out.Defaults = c.defaults(v)
		case "concurrency":
			c.concurrency(v)
			out.Concurrency = v
		case "permissions":
			out.Permissions = c.permissions(v)
		case "jobs":
			jobs = v
		default:
			c.unexpected(key)
		}
	})

	if events == nil {
		c.errorf(m, workflow.CodeSemantic, "Required property is missing: on")
	} else {
		out.Events, out.WorkflowCall = c.events(events)
	}
	if jobs == nil {
		c.errorf(m, workflow.CodeSemantic, "Required property is missing: jobs")
		return
	}
	out.Jobs = c.jobs(jobs, out.Permissions)
	ResolveGraph(c.ctx, out.Jobs)
}

// defaults converts `defaults`, whose only section is `run`.
func (c *converter) defaults(t token.Token) *workflow.Defaults {
	if !c.noExpression(t) {
		return nil
	}
	m, ok := c.mapping(t, "defaults")
	if !ok {
		return nil
	}
	out := &workflow.Defaults{}
	c.pairs(m, func(key *token.String, v token.Token) {
		if key.Value != "run" {
			c.unexpected(key)
			return
		}
		run, ok := c.mapping(v, "defaults.run")
		if !ok {
			return
		}
		c.pairs(run, func(key *token.String, v token.Token) {
			switch key.Value {
			case "shell":
				out.Shell = c.defaultString(v, "shell")
			case "working-directory":
				out.WorkingDirectory = c.defaultString(v, "working-directory")
			default:
				c.unexpected(key)
			}
		})
	})
	return out
}

func (c *converter) defaultString(t token.Token, what string) string {
	if token.IsExpression(t) {
		return t.String()
	}
	s, _ := c.str(t, what)
	return s
}
