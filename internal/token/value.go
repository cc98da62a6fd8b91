package token

import "math"

// ToValue converts t into plain Go values (map[string]any, []any, string,
// float64, bool, nil) suitable for JSON schema validation. Expressions are
// rendered in their `${{ }}` form and duplicate mapping keys keep the first
// value.
func ToValue(t Token) any {
	switch v := t.(type) {
	case *String:
		return v.Value
	case *Boolean:
		return v.Value
	case *Number:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return v.String()
		}
		return v.Value
	case *Null:
		return nil
	case *Sequence:
		out := make([]any, 0, v.Len())
		for _, item := range v.items {
			out = append(out, ToValue(item))
		}
		return out
	case *Mapping:
		out := make(map[string]any, v.Len())
		for _, p := range v.pairs {
			k := p.Key.String()
			if _, dup := out[k]; dup {
				continue
			}
			out[k] = ToValue(p.Value)
		}
		return out
	case Expression:
		return v.String()
	}
	return nil
}
