package convert

import (
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

const (
	permissionsReadAll  = "read-all"
	permissionsWriteAll = "write-all"
)

// permissions converts the shorthand or per-scope form. Unknown scopes are
// ignored; unknown levels are errors.
func (c *converter) permissions(t token.Token) *workflow.Permissions {
	if !c.noExpression(t) {
		return nil
	}
	switch v := t.(type) {
	case *token.String:
		switch v.Value {
		case permissionsReadAll:
			return workflow.ReadAll()
		case permissionsWriteAll:
			return workflow.WriteAll()
		}
		c.errorf(v, workflow.CodeUnexpectedValue, "Unexpected value '%s'. Expected '%s', '%s' or a mapping of scopes", v.Value, permissionsReadAll, permissionsWriteAll)
		return nil
	case *token.Mapping:
		p := workflow.NewPermissions()
		c.pairs(v, func(key *token.String, value token.Token) {
			scope, known := workflow.ParseScope(key.Value)
			if !c.noExpression(value) {
				return
			}
			lit, ok := value.(*token.String)
			if !ok {
				c.errorf(value, workflow.CodeType, "Expected a string for permission '%s'", key.Value)
				return
			}
			level, ok := workflow.ParseLevel(lit.Value)
			if !ok {
				c.errorf(value, workflow.CodeUnexpectedValue, "Unexpected value '%s' for permission '%s'. Expected 'read', 'write' or 'none'", lit.Value, key.Value)
				return
			}
			if known {
				p.Set(scope, level)
			}
		})
		return p
	}
	c.errorf(t, workflow.CodeType, "Expected a string or mapping for 'permissions'")
	return nil
}
