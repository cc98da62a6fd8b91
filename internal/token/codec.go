package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// wire is the compact discriminated encoding of a token. Literals without
// provenance or raw form are written as bare JSON scalars instead.
type wire struct {
	Type      Type              `json:"type,omitempty"`
	File      *int              `json:"file,omitempty"`
	Line      *int              `json:"line,omitempty"`
	Col       *int              `json:"col,omitempty"`
	Lit       *string           `json:"lit,omitempty"`
	Bool      *bool             `json:"bool,omitempty"`
	Num       *float64          `json:"num,omitempty"`
	Seq       []json.RawMessage `json:"seq,omitempty"`
	Map       []json.RawMessage `json:"map,omitempty"`
	Expr      *string           `json:"expr,omitempty"`
	Directive *string           `json:"directive,omitempty"`
}

// Marshal encodes t in the wire format.
func Marshal(t Token) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("marshal token: nil token")
	}
	if bare, ok := bareScalar(t); ok {
		return json.Marshal(bare)
	}

	w := wire{Type: t.Type()}
	if src := t.Source(); src != nil {
		file, line, col := src.FileID, src.Line, src.Column
		w.File, w.Line, w.Col = &file, &line, &col
	}

	switch v := t.(type) {
	case *String:
		w.Lit = &v.Value
	case *Boolean:
		w.Bool = &v.Value
		if v.Raw != "" {
			w.Lit = &v.Raw
		}
	case *Number:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			lit := v.String()
			w.Lit = &lit
		} else {
			w.Num = &v.Value
			if v.Raw != "" {
				w.Lit = &v.Raw
			}
		}
	case *Null:
		if v.Raw != "" {
			w.Lit = &v.Raw
		}
	case *Sequence:
		w.Seq = make([]json.RawMessage, 0, v.Len())
		for _, item := range v.items {
			data, err := Marshal(item)
			if err != nil {
				return nil, err
			}
			w.Seq = append(w.Seq, data)
		}
	case *Mapping:
		w.Map = make([]json.RawMessage, 0, 2*v.Len())
		for _, p := range v.pairs {
			k, err := Marshal(p.Key)
			if err != nil {
				return nil, err
			}
			val, err := Marshal(p.Value)
			if err != nil {
				return nil, err
			}
			w.Map = append(w.Map, k, val)
		}
	case *BasicExpression:
		w.Expr = &v.Expression
	case *InsertExpression, *If, *ElseIf, *Else, *Each:
		text := directiveText(v.(Expression))
		w.Directive = &text
	default:
		return nil, fmt.Errorf("marshal token: unsupported type %T", t)
	}
	return json.Marshal(w)
}

func bareScalar(t Token) (any, bool) {
	if t.Source() != nil {
		return nil, false
	}
	switch v := t.(type) {
	case *String:
		return v.Value, true
	case *Boolean:
		return v.Value, v.Raw == ""
	case *Number:
		finite := !math.IsNaN(v.Value) && !math.IsInf(v.Value, 0)
		return v.Value, v.Raw == "" && finite
	case *Null:
		return nil, v.Raw == ""
	}
	return nil, false
}

// Unmarshal decodes a token from the wire format. An object without a type
// field decodes as a String.
func Unmarshal(data []byte) (Token, error) {
	return decode(data)
}

func decode(data []byte) (Token, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("unmarshal token: empty input")
	}
	switch data[0] {
	case '{':
		return decodeObject(data)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal token: %w", err)
		}
		return NewString(nil, s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("unmarshal token: %w", err)
		}
		return NewBoolean(nil, b), nil
	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("unmarshal token: invalid literal %q", data)
		}
		return NewNull(nil), nil
	case '[':
		return nil, fmt.Errorf("unmarshal token: unexpected array")
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return NewNumber(nil, f), nil
}

func decodeObject(data []byte) (Token, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}

	var src *Source
	if w.File != nil || w.Line != nil || w.Col != nil {
		src = &Source{FileID: deref(w.File), Line: deref(w.Line), Column: deref(w.Col)}
	}

	switch w.Type {
	case TypeString:
		return NewString(src, derefString(w.Lit)), nil
	case TypeBoolean:
		b := NewBoolean(src, w.Bool != nil && *w.Bool)
		b.Raw = derefString(w.Lit)
		return b, nil
	case TypeNumber:
		n := NewNumber(src, 0)
		n.Raw = derefString(w.Lit)
		switch {
		case w.Num != nil:
			n.Value = *w.Num
		case w.Lit != nil:
			v, ok := parseNonFinite(*w.Lit)
			if !ok {
				return nil, fmt.Errorf("unmarshal token: invalid number %q", *w.Lit)
			}
			n.Value = v
		}
		return n, nil
	case TypeNull:
		n := NewNull(src)
		n.Raw = derefString(w.Lit)
		return n, nil
	case TypeSequence:
		seq := NewSequence(src)
		for _, raw := range w.Seq {
			item, err := decode(raw)
			if err != nil {
				return nil, err
			}
			seq.Add(item)
		}
		return seq, nil
	case TypeMapping:
		if len(w.Map)%2 != 0 {
			return nil, fmt.Errorf("unmarshal token: mapping has an odd number of entries")
		}
		m := NewMapping(src)
		for i := 0; i < len(w.Map); i += 2 {
			k, err := decode(w.Map[i])
			if err != nil {
				return nil, err
			}
			key, ok := k.(Scalar)
			if !ok {
				return nil, fmt.Errorf("unmarshal token: mapping key must be a scalar, got %s", k.Type())
			}
			v, err := decode(w.Map[i+1])
			if err != nil {
				return nil, err
			}
			m.Add(key, v)
		}
		return m, nil
	case TypeBasicExpression:
		return NewBasicExpression(src, derefString(w.Expr)), nil
	case TypeInsertExpression, TypeIf, TypeElseIf, TypeElse, TypeEach:
		d, ok, err := ParseDirective(src, derefString(w.Directive))
		if err != nil {
			return nil, fmt.Errorf("unmarshal token: %w", err)
		}
		if !ok || d.Type() != w.Type {
			return nil, fmt.Errorf("unmarshal token: directive %q does not match type %s", derefString(w.Directive), w.Type)
		}
		return d, nil
	}
	return nil, fmt.Errorf("unmarshal token: unknown type %d", w.Type)
}

func parseNonFinite(lit string) (float64, bool) {
	switch strings.ToLower(strings.TrimPrefix(lit, "+")) {
	case ".inf", "infinity":
		return math.Inf(1), true
	case "-.inf", "-infinity":
		return math.Inf(-1), true
	case ".nan", "nan":
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(lit, 64)
	return f, err == nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
