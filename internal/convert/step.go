package convert

import (
	"github.com/bgricker/workflowc/internal/idbuilder"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// MaxStepIDLength bounds explicit and generated step ids.
const MaxStepIDLength = idbuilder.DefaultMaxLength

func (c *converter) steps(t token.Token) []workflow.Step {
	if !c.noExpression(t) {
		return nil
	}
	seq, ok := c.sequence(t, "steps")
	if !ok {
		return nil
	}
	if seq.Len() == 0 {
		c.errorf(seq, workflow.CodeSemantic, "A job must contain at least one step")
		return nil
	}

	var out []workflow.Step
	for _, item := range seq.All() {
		if !c.noExpression(item) {
			continue
		}
		m, ok := c.mapping(item, "step")
		if !ok {
			continue
		}
		if s := c.step(m); s != nil {
			out = append(out, s)
		}
	}

	// Explicit ids are claimed before any id is generated so a generated id
	// never takes a name the author chose.
	ids := idbuilder.New()
	for _, s := range out {
		common := s.Common()
		if common.ID == "" {
			continue
		}
		if err := ids.TryAddKnownID(common.ID, MaxStepIDLength); err != nil {
			c.ctx.Errorf(common.Source, workflow.CodeSemantic, "Invalid step id: %v", err)
		}
	}
	for _, s := range out {
		common := s.Common()
		if common.ID != "" {
			continue
		}
		appendStepSegments(ids, s)
		id, err := ids.Build(true, MaxStepIDLength)
		if err != nil {
			c.ctx.Errorf(common.Source, workflow.CodeSemantic, "%v", err)
			continue
		}
		common.ID = id
	}
	return out
}

// appendStepSegments names a generated step id after what the step runs.
func appendStepSegments(ids *idbuilder.Builder, s workflow.Step) {
	a, ok := s.(*workflow.ActionStep)
	if !ok {
		ids.AppendSegment(idbuilder.ReservedPrefix + "run")
		return
	}
	switch a.Action.Kind {
	case workflow.ActionDocker:
		image := a.Action.ImageName()
		for i := len(image) - 1; i >= 0; i-- {
			if image[i] == '/' {
				image = image[i+1:]
				break
			}
		}
		ids.AppendSegment(idbuilder.ReservedPrefix + image)
	case workflow.ActionLocal:
		ids.AppendSegment(idbuilder.ReservedPrefix + "self")
	case workflow.ActionRepository:
		ids.AppendSegment(idbuilder.ReservedPrefix + a.Action.Owner)
		ids.AppendSegment(a.Action.Repo)
	default:
		ids.AppendSegment(idbuilder.ReservedPrefix + "run")
	}
}

func (c *converter) step(m *token.Mapping) workflow.Step {
	common := workflow.StepCommon{Source: m.Source(), If: defaultCondition}
	var (
		run, uses, shell, workingDirectory, with token.Token
	)
	c.pairs(m, func(key *token.String, v token.Token) {
		switch key.Value {
		case "id":
			if c.noExpression(v) {
				common.ID, _ = c.str(v, "id")
			}
		case "name":
			if token.IsExpression(v) {
				common.Name = v.String()
				return
			}
			common.Name, _ = c.str(v, "name")
		case "if":
			common.If = c.condition(v, ConditionStep)
		case "continue-on-error":
			c.continueOnError(v)
			common.ContinueOnError = v
		case "timeout-minutes":
			c.timeout(v)
			common.TimeoutMinutes = v
		case "env":
			common.Env = c.stringMap(v, "env")
		case "run":
			run = v
		case "uses":
			uses = v
		case "shell":
			shell = v
		case "working-directory":
			workingDirectory = v
		case "with":
			with = v
		default:
			c.unexpected(key)
		}
	})

	switch {
	case run != nil && uses != nil:
		c.errorf(m, workflow.CodeSemantic, "A step may define 'run' or 'uses' but not both")
		return nil
	case run != nil:
		if with != nil {
			c.errorf(with, workflow.CodeUnexpectedValue, "Unexpected value 'with'")
		}
		s := &workflow.RunStep{StepCommon: common}
		s.Run = c.scriptText(run, "run")
		if shell != nil {
			s.Shell = c.scriptText(shell, "shell")
		}
		if workingDirectory != nil {
			s.WorkingDirectory = c.scriptText(workingDirectory, "working-directory")
		}
		return s
	case uses != nil:
		if shell != nil {
			c.errorf(shell, workflow.CodeUnexpectedValue, "Unexpected value 'shell'")
		}
		if workingDirectory != nil {
			c.errorf(workingDirectory, workflow.CodeUnexpectedValue, "Unexpected value 'working-directory'")
		}
		s := &workflow.ActionStep{StepCommon: common}
		if !c.noExpression(uses) {
			return s
		}
		s.Uses, _ = c.str(uses, "uses")
		ref, err := workflow.ParseActionRef(s.Uses)
		if err != nil {
			c.errorf(uses, workflow.CodeReference, "%v", err)
		}
		s.Action = ref
		if with != nil {
			s.With = c.stringMap(with, "with")
		}
		return s
	}
	c.errorf(m, workflow.CodeSemantic, "A step must define either 'run' or 'uses'")
	return nil
}

// scriptText keeps expressions in their display form; they are resolved
// on the runner.
func (c *converter) scriptText(t token.Token, what string) string {
	if token.IsExpression(t) {
		return t.String()
	}
	s, _ := c.str(t, what)
	return s
}
