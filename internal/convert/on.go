package convert

import (
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

const eventWorkflowCall = "workflow_call"

// Input types accepted by `on.workflow_call.inputs`.
const (
	InputBoolean = "boolean"
	InputNumber  = "number"
	InputString  = "string"
)

// events normalises `on` into an ordered mapping of event name to
// configuration. The string and sequence forms map every event to null.
func (c *converter) events(t token.Token) (*token.Mapping, *workflow.WorkflowCall) {
	if !c.noExpression(t) {
		return nil, nil
	}
	out := token.NewMapping(t.Source())
	switch v := t.(type) {
	case *token.String:
		out.Add(v, token.NewNull(nil))
	case *token.Sequence:
		for _, item := range v.All() {
			s, ok := item.(*token.String)
			if !ok {
				c.errorf(item, workflow.CodeType, "Expected an event name")
				continue
			}
			out.Add(s, token.NewNull(nil))
		}
	case *token.Mapping:
		c.pairs(v, func(key *token.String, value token.Token) {
			if !c.noExpression(value) {
				return
			}
			switch value.(type) {
			case *token.Null, *token.Mapping, *token.Sequence:
				out.Add(key, value)
			default:
				c.errorf(value, workflow.CodeType, "Expected a mapping for event '%s'", key.Value)
			}
		})
	default:
		c.errorf(t, workflow.CodeType, "Expected a string, sequence or mapping for 'on'")
		return nil, nil
	}
	if out.Len() == 0 {
		c.errorf(t, workflow.CodeSemantic, "At least one event must be specified in 'on'")
	}

	var call *workflow.WorkflowCall
	for k, v := range out.All() {
		if k.String() == eventWorkflowCall {
			call = c.workflowCall(v)
			break
		}
	}
	return out, call
}

func (c *converter) workflowCall(t token.Token) *workflow.WorkflowCall {
	out := &workflow.WorkflowCall{}
	if _, isNull := t.(*token.Null); isNull {
		return out
	}
	m, ok := c.mapping(t, eventWorkflowCall)
	if !ok {
		return out
	}
	c.pairs(m, func(key *token.String, v token.Token) {
		switch key.Value {
		case "inputs":
			c.definitions(v, "inputs", func(name *token.String, def *token.Mapping) {
				out.Inputs = append(out.Inputs, c.inputDefinition(name, def))
			})
		case "secrets":
			c.definitions(v, "secrets", func(name *token.String, def *token.Mapping) {
				out.Secrets = append(out.Secrets, c.secretDefinition(name, def))
			})
		case "outputs":
			c.definitions(v, "outputs", func(name *token.String, def *token.Mapping) {
				if def == nil {
					c.errorf(name, workflow.CodeSemantic, "Required property is missing: value")
					return
				}
				out.Outputs = append(out.Outputs, c.outputDefinition(name, def))
			})
		default:
			c.unexpected(key)
		}
	})
	return out
}

// definitions walks a name-to-definition mapping. A null definition is
// passed as nil.
func (c *converter) definitions(t token.Token, what string, fn func(name *token.String, def *token.Mapping)) {
	if _, isNull := t.(*token.Null); isNull {
		return
	}
	m, ok := c.mapping(t, what)
	if !ok {
		return
	}
	c.pairs(m, func(name *token.String, v token.Token) {
		if _, isNull := v.(*token.Null); isNull {
			fn(name, nil)
			return
		}
		if def, ok := c.mapping(v, what+"."+name.Value); ok {
			fn(name, def)
		}
	})
}

func (c *converter) inputDefinition(name *token.String, def *token.Mapping) workflow.InputDefinition {
	in := workflow.InputDefinition{Name: name.Value}
	if def == nil {
		c.errorf(name, workflow.CodeSemantic, "Required property is missing: type")
		return in
	}
	c.pairs(def, func(key *token.String, v token.Token) {
		switch key.Value {
		case "description":
			in.Description, _ = c.str(v, "description")
		case "type":
			if !c.noExpression(v) {
				return
			}
			s, _ := c.str(v, "type")
			switch s {
			case InputBoolean, InputNumber, InputString:
				in.Type = s
			default:
				c.errorf(v, workflow.CodeUnexpectedValue, "Unexpected value '%s'. Expected 'boolean', 'number' or 'string'", s)
			}
		case "required":
			if c.noExpression(v) {
				in.Required, _ = c.boolean(v, "required")
			}
		case "default":
			in.Default = v
		default:
			c.unexpected(key)
		}
	})
	if in.Type == "" {
		if _, ok := def.Lookup("type"); !ok {
			c.errorf(def, workflow.CodeSemantic, "Required property is missing: type")
		}
		return in
	}
	if in.Default != nil && !token.IsExpression(in.Default) {
		c.checkDefault(in)
	}
	return in
}

func (c *converter) checkDefault(in workflow.InputDefinition) {
	var ok bool
	switch in.Type {
	case InputBoolean:
		_, ok = in.Default.(*token.Boolean)
	case InputNumber:
		_, ok = in.Default.(*token.Number)
	case InputString:
		_, ok = in.Default.(token.Literal)
	}
	if !ok {
		c.errorf(in.Default, workflow.CodeType, "The default value of input '%s' must be a %s", in.Name, in.Type)
	}
}

func (c *converter) secretDefinition(name *token.String, def *token.Mapping) workflow.SecretDefinition {
	out := workflow.SecretDefinition{Name: name.Value}
	if def == nil {
		return out
	}
	c.pairs(def, func(key *token.String, v token.Token) {
		switch key.Value {
		case "description":
			out.Description, _ = c.str(v, "description")
		case "required":
			if c.noExpression(v) {
				out.Required, _ = c.boolean(v, "required")
			}
		default:
			c.unexpected(key)
		}
	})
	return out
}

func (c *converter) outputDefinition(name *token.String, def *token.Mapping) workflow.OutputDefinition {
	out := workflow.OutputDefinition{Name: name.Value}
	c.pairs(def, func(key *token.String, v token.Token) {
		switch key.Value {
		case "description":
			out.Description, _ = c.str(v, "description")
		case "value":
			out.Value = v
		default:
			c.unexpected(key)
		}
	})
	if out.Value == nil {
		c.errorf(def, workflow.CodeSemantic, "Required property is missing: value")
	}
	return out
}
