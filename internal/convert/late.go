package convert

import (
	"github.com/bgricker/workflowc/internal/matrix"
	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// MaxConcurrencyGroupLength bounds `concurrency.group`.
const MaxConcurrencyGroupLength = 400

// The ConvertTo functions convert a field after its expressions have been
// substituted. Any expression still present is reported as an error.

// ConvertToStrategy converts `strategy` and expands its matrix.
func ConvertToStrategy(ctx *template.Context, t token.Token, jobName string) *workflow.Strategy {
	c := &converter{ctx: ctx}
	return c.strategy(t, jobName)
}

// ConvertToConcurrency converts `concurrency`.
func ConvertToConcurrency(ctx *template.Context, t token.Token) *workflow.Concurrency {
	c := &converter{ctx: ctx}
	return c.concurrency(t)
}

// ConvertToContainer converts `container` or one service.
func ConvertToContainer(ctx *template.Context, t token.Token) *workflow.Container {
	c := &converter{ctx: ctx}
	return c.container(t)
}

// ConvertToEnvironment converts `environment`.
func ConvertToEnvironment(ctx *template.Context, t token.Token) *workflow.Environment {
	c := &converter{ctx: ctx}
	return c.environment(t)
}

// ConvertToTimeout converts `timeout-minutes` or `cancel-timeout-minutes`.
func ConvertToTimeout(ctx *template.Context, t token.Token) (float64, bool) {
	c := &converter{ctx: ctx}
	return c.timeout(t)
}

// ConvertToContinueOnError converts `continue-on-error`.
func ConvertToContinueOnError(ctx *template.Context, t token.Token) (bool, bool) {
	c := &converter{ctx: ctx}
	return c.continueOnError(t)
}

func (c *converter) strategy(t token.Token, jobName string) *workflow.Strategy {
	if t == nil {
		return nil
	}
	out := &workflow.Strategy{FailFast: true, Token: t}
	if c.deferred(t) {
		return out
	}
	m, ok := c.mapping(t, "strategy")
	if !ok {
		return nil
	}

	var matrixToken token.Token
	c.pairs(m, func(key *token.String, v token.Token) {
		switch key.Value {
		case "fail-fast":
			if c.deferred(v) {
				return
			}
			if b, ok := c.boolean(v, "fail-fast"); ok {
				out.FailFast = b
			}
		case "max-parallel":
			if c.deferred(v) {
				return
			}
			if n, ok := c.number(v, "max-parallel"); ok {
				if n < 1 {
					c.errorf(v, workflow.CodeSemantic, "'max-parallel' must be at least 1")
					return
				}
				out.MaxParallel = int(n)
			}
		case "matrix":
			matrixToken = v
		default:
			c.unexpected(key)
		}
	})

	if matrixToken == nil {
		return out
	}
	if hasExpressions(matrixToken) {
		if !c.early {
			c.errorf(matrixToken, workflow.CodeType, "Unexpected expression in 'matrix'. Expressions must be resolved before conversion")
		}
		return out
	}
	mm, ok := c.mapping(matrixToken, "matrix")
	if !ok {
		return out
	}

	b := matrix.New(c.ctx, jobName)
	b.FailFast = out.FailFast
	b.MaxParallel = out.MaxParallel
	c.pairs(mm, func(key *token.String, v token.Token) {
		if c.deferred(v) {
			return
		}
		seq, ok := c.sequence(v, "matrix."+key.Value)
		if !ok {
			return
		}
		switch key.Value {
		case "include":
			b.Include(seq)
		case "exclude":
			b.Exclude(seq)
		default:
			b.AddVector(key.Value, seq)
		}
	})
	out.Configurations = b.Build()
	return out
}

func (c *converter) concurrency(t token.Token) *workflow.Concurrency {
	if t == nil || c.deferred(t) {
		return nil
	}
	out := &workflow.Concurrency{}
	var group token.Token
	switch v := t.(type) {
	case *token.String:
		group = v
	case *token.Mapping:
		c.pairs(v, func(key *token.String, value token.Token) {
			switch key.Value {
			case "group":
				group = value
			case "cancel-in-progress":
				if c.deferred(value) {
					return
				}
				if b, ok := c.boolean(value, "cancel-in-progress"); ok {
					out.CancelInProgress = b
				}
			default:
				c.unexpected(key)
			}
		})
		if group == nil {
			c.errorf(v, workflow.CodeSemantic, "Required property is missing: group")
			return nil
		}
	default:
		c.errorf(t, workflow.CodeType, "Expected a string or mapping for 'concurrency'")
		return nil
	}

	if c.deferred(group) {
		return out
	}
	s, ok := c.str(group, "group")
	if !ok {
		return nil
	}
	if len(s) == 0 || len(s) > MaxConcurrencyGroupLength {
		c.errorf(group, workflow.CodeSemantic, "The concurrency group name must be between 1 and %d characters", MaxConcurrencyGroupLength)
		return nil
	}
	out.Group = s
	return out
}

func (c *converter) container(t token.Token) *workflow.Container {
	if t == nil || c.deferred(t) {
		return nil
	}
	out := &workflow.Container{}
	switch v := t.(type) {
	case *token.String:
		out.Image = v.Value
	case *token.Mapping:
		hasImage := false
		c.pairs(v, func(key *token.String, value token.Token) {
			switch key.Value {
			case "image":
				hasImage = true
				if c.deferred(value) {
					return
				}
				out.Image, _ = c.str(value, "image")
			case "options":
				if c.deferred(value) {
					return
				}
				out.Options, _ = c.str(value, "options")
			case "env":
				if c.deferred(value) {
					return
				}
				out.Env = c.flatStrings(value, "env")
			case "ports", "volumes":
				if c.deferred(value) {
					return
				}
				items := c.stringList(value, key.Value)
				if key.Value == "ports" {
					out.Ports = items
				} else {
					out.Volumes = items
				}
			case "credentials":
				if c.deferred(value) {
					return
				}
				creds := c.flatStrings(value, "credentials")
				if creds != nil {
					out.Credentials = &workflow.Credentials{Username: creds["username"], Password: creds["password"]}
				}
			default:
				c.unexpected(key)
			}
		})
		if !hasImage {
			c.errorf(v, workflow.CodeSemantic, "Required property is missing: image")
			return nil
		}
	default:
		c.errorf(t, workflow.CodeType, "Expected a string or mapping for 'container'")
		return nil
	}
	if out.Image == "" && !c.early {
		c.errorf(t, workflow.CodeSemantic, "Container image cannot be empty")
		return nil
	}
	return out
}

func (c *converter) environment(t token.Token) *workflow.Environment {
	if t == nil || c.deferred(t) {
		return nil
	}
	out := &workflow.Environment{}
	switch v := t.(type) {
	case *token.String:
		out.Name = v.Value
	case *token.Mapping:
		hasName := false
		c.pairs(v, func(key *token.String, value token.Token) {
			switch key.Value {
			case "name":
				hasName = true
				if c.deferred(value) {
					return
				}
				out.Name, _ = c.str(value, "name")
			case "url":
				out.URL = value
			default:
				c.unexpected(key)
			}
		})
		if !hasName {
			c.errorf(v, workflow.CodeSemantic, "Required property is missing: name")
			return nil
		}
	default:
		c.errorf(t, workflow.CodeType, "Expected a string or mapping for 'environment'")
		return nil
	}
	return out
}

func (c *converter) timeout(t token.Token) (float64, bool) {
	if t == nil || c.deferred(t) {
		return 0, false
	}
	n, ok := c.number(t, "timeout-minutes")
	if ok && n < 0 {
		c.errorf(t, workflow.CodeSemantic, "The timeout must not be negative")
		return 0, false
	}
	return n, ok
}

func (c *converter) continueOnError(t token.Token) (bool, bool) {
	if t == nil || c.deferred(t) {
		return false, false
	}
	return c.boolean(t, "continue-on-error")
}

func (c *converter) flatStrings(t token.Token, what string) map[string]string {
	m, ok := c.mapping(t, what)
	if !ok {
		return nil
	}
	out := make(map[string]string, m.Len())
	c.pairs(m, func(key *token.String, value token.Token) {
		if c.deferred(value) {
			out[key.Value] = value.String()
			return
		}
		if s, ok := c.str(value, what+"."+key.Value); ok {
			out[key.Value] = s
		}
	})
	return out
}

func (c *converter) stringList(t token.Token, what string) []string {
	seq, ok := c.sequence(t, what)
	if !ok {
		return nil
	}
	out := make([]string, 0, seq.Len())
	for _, item := range seq.All() {
		if c.deferred(item) {
			out = append(out, item.String())
			continue
		}
		if s, ok := c.str(item, what); ok {
			out = append(out, s)
		}
	}
	return out
}
