package convert

import (
	"github.com/bgricker/workflowc/internal/idbuilder"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/version"
	"github.com/bgricker/workflowc/internal/workflow"
)

// MaxJobIDLength bounds explicit job ids.
const MaxJobIDLength = idbuilder.DefaultMaxLength

const secretsInherit = "inherit"

// DefaultSnapshotVersion is used when a snapshot does not request one.
const DefaultSnapshotVersion = "1.*"

func (c *converter) jobs(t token.Token, rootPermissions *workflow.Permissions) []workflow.JobItem {
	if !c.noExpression(t) {
		return nil
	}
	m, ok := c.mapping(t, "jobs")
	if !ok {
		return nil
	}
	if m.Len() == 0 {
		c.errorf(m, workflow.CodeSemantic, "The workflow must contain at least one job")
		return nil
	}

	ids := idbuilder.New()
	var out []workflow.JobItem
	c.pairs(m, func(key *token.String, v token.Token) {
		if err := ids.TryAddKnownID(key.Value, MaxJobIDLength); err != nil {
			c.errorf(key, workflow.CodeSemantic, "Invalid job id: %v", err)
			return
		}
		if !c.noExpression(v) {
			return
		}
		jm, ok := c.mapping(v, "jobs."+key.Value)
		if !ok {
			return
		}
		if _, isReusable := jm.Lookup("uses"); isReusable {
			out = append(out, c.reusableJob(key, jm, rootPermissions))
			return
		}
		out = append(out, c.job(key, jm, rootPermissions))
	})
	return out
}

func (c *converter) job(key *token.String, m *token.Mapping, rootPermissions *workflow.Permissions) *workflow.Job {
	j := &workflow.Job{ID: key.Value, Name: key.Value, Source: key.Source(), If: defaultCondition}
	var (
		steps    token.Token
		strategy token.Token
	)
	c.pairs(m, func(k *token.String, v token.Token) {
		switch k.Value {
		case "name":
			j.Name = c.jobName(v, j.ID)
		case "needs":
			j.Needs = c.needs(v)
		case "if":
			j.If = c.condition(v, ConditionJob)
		case "runs-on":
			c.runsOn(v)
			j.RunsOn = v
		case "strategy":
			strategy = v
		case "container":
			c.container(v)
			j.Container = v
		case "services":
			j.Services = c.services(v)
		case "env":
			j.Env = c.stringMap(v, "env")
		case "environment":
			c.environment(v)
			j.Environment = v
		case "permissions":
			j.Permissions = c.permissions(v)
		case "concurrency":
			c.concurrency(v)
			j.Concurrency = v
		case "timeout-minutes":
			c.timeout(v)
			j.TimeoutMinutes = v
		case "cancel-timeout-minutes":
			c.timeout(v)
			j.CancelTimeoutMinutes = v
		case "continue-on-error":
			c.continueOnError(v)
			j.ContinueOnError = v
		case "outputs":
			j.Outputs = c.stringMap(v, "outputs")
		case "defaults":
			j.Defaults = c.defaults(v)
		case "snapshot":
			j.Snapshot = c.snapshot(v)
		case "steps":
			steps = v
		default:
			c.unexpected(k)
		}
	})

	if strategy != nil {
		j.Strategy = c.strategy(strategy, j.Name)
	}
	if j.RunsOn == nil {
		c.errorf(m, workflow.CodeSemantic, "Required property is missing: runs-on")
	}
	if steps == nil {
		c.errorf(m, workflow.CodeSemantic, "Required property is missing: steps")
	} else {
		j.Steps = c.steps(steps)
	}
	if j.Permissions == nil && rootPermissions != nil {
		j.Permissions = rootPermissions.Clone()
		j.InheritedPermissions = true
	}
	return j
}

func (c *converter) reusableJob(key *token.String, m *token.Mapping, rootPermissions *workflow.Permissions) *workflow.ReusableWorkflowJob {
	j := &workflow.ReusableWorkflowJob{ID: key.Value, Name: key.Value, Source: key.Source(), If: defaultCondition}
	var strategy token.Token
	c.pairs(m, func(k *token.String, v token.Token) {
		switch k.Value {
		case "name":
			j.Name = c.jobName(v, j.ID)
		case "needs":
			j.Needs = c.needs(v)
		case "if":
			j.If = c.condition(v, ConditionJob)
		case "uses":
			j.RefSource = v.Source()
			if !c.noExpression(v) {
				return
			}
			s, ok := c.str(v, "uses")
			if !ok {
				return
			}
			ref, err := workflow.ParseWorkflowRef(s)
			if err != nil {
				c.errorf(v, workflow.CodeReference, "%v", err)
				return
			}
			j.Ref = ref
		case "with":
			j.InputValues = c.stringMap(v, "with")
		case "secrets":
			if s, ok := v.(*token.String); ok && s.Value == secretsInherit {
				j.InheritSecrets = true
				return
			}
			j.SecretValues = c.stringMap(v, "secrets")
		case "strategy":
			strategy = v
		case "permissions":
			j.Permissions = c.permissions(v)
		case "concurrency":
			c.concurrency(v)
			j.Concurrency = v
		default:
			c.unexpected(k)
		}
	})
	if strategy != nil {
		j.Strategy = c.strategy(strategy, j.Name)
	}
	if j.Permissions == nil && rootPermissions != nil {
		j.Permissions = rootPermissions.Clone()
		j.InheritedPermissions = true
	}
	return j
}

func (c *converter) jobName(t token.Token, fallback string) string {
	if token.IsExpression(t) {
		return t.String()
	}
	s, ok := c.str(t, "name")
	if !ok || s == "" {
		return fallback
	}
	return s
}

// needs accepts a single job id or a sequence of ids.
func (c *converter) needs(t token.Token) []string {
	if !c.noExpression(t) {
		return nil
	}
	switch v := t.(type) {
	case *token.String:
		return []string{v.Value}
	case *token.Sequence:
		out := make([]string, 0, v.Len())
		for _, item := range v.All() {
			if !c.noExpression(item) {
				continue
			}
			if s, ok := c.str(item, "needs"); ok {
				out = append(out, s)
			}
		}
		return out
	}
	c.errorf(t, workflow.CodeType, "Expected a string or sequence for 'needs'")
	return nil
}

// runsOn accepts a label, a sequence of labels, or a mapping with
// `group` and `labels`.
func (c *converter) runsOn(t token.Token) {
	if c.deferred(t) {
		return
	}
	switch v := t.(type) {
	case *token.String:
		if v.Value == "" {
			c.errorf(v, workflow.CodeSemantic, "'runs-on' must not be empty")
		}
	case *token.Sequence:
		for _, item := range v.All() {
			if c.deferred(item) {
				continue
			}
			c.str(item, "runs-on")
		}
	case *token.Mapping:
		c.pairs(v, func(key *token.String, value token.Token) {
			switch key.Value {
			case "group":
				if !c.deferred(value) {
					c.str(value, "runs-on.group")
				}
			case "labels":
				if c.deferred(value) {
					return
				}
				if _, isSeq := value.(*token.Sequence); isSeq {
					c.stringList(value, "runs-on.labels")
					return
				}
				c.str(value, "runs-on.labels")
			default:
				c.unexpected(key)
			}
		})
	default:
		c.errorf(t, workflow.CodeType, "Expected a string, sequence or mapping for 'runs-on'")
	}
}

func (c *converter) services(t token.Token) token.Token {
	if c.deferred(t) {
		return t
	}
	m, ok := c.mapping(t, "services")
	if !ok {
		return nil
	}
	c.pairs(m, func(_ *token.String, v token.Token) {
		c.container(v)
	})
	return m
}

// snapshot accepts an image name or a mapping with `image-name`, `if` and
// `version`.
func (c *converter) snapshot(t token.Token) *workflow.Snapshot {
	if !c.noExpression(t) {
		return nil
	}
	out := &workflow.Snapshot{If: defaultCondition, Version: DefaultSnapshotVersion}
	switch v := t.(type) {
	case *token.String:
		out.ImageName = v.Value
	case *token.Mapping:
		c.pairs(v, func(key *token.String, value token.Token) {
			switch key.Value {
			case "image-name":
				if c.noExpression(value) {
					out.ImageName, _ = c.str(value, "image-name")
				}
			case "if":
				out.If = c.condition(value, ConditionSnapshot)
			case "version":
				if !c.noExpression(value) {
					return
				}
				s, ok := c.str(value, "version")
				if !ok {
					return
				}
				info, err := version.ParseSnapshot(s)
				if err != nil {
					c.errorf(value, workflow.CodeSemantic, "%v", err)
					return
				}
				out.Version = info.String()
			default:
				c.unexpected(key)
			}
		})
	default:
		c.errorf(t, workflow.CodeType, "Expected a string or mapping for 'snapshot'")
		return nil
	}
	if out.ImageName == "" {
		c.errorf(t, workflow.CodeSemantic, "Required property is missing: image-name")
		return nil
	}
	return out
}
