package expression

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bgricker/workflowc/internal/token"
	"github.com/rhysd/actionlint"
)

// value is an intermediate result. filtered marks the output of a `.*`
// dereference, whose further dereferences apply to every element.
type value struct {
	tok      token.Token
	filtered bool
}

func (v value) token() token.Token {
	if v.tok == nil {
		return token.NewNull(nil)
	}
	return v.tok
}

type evaluator struct {
	namedValues map[string]token.Token
	functions   map[string]Function
}

func newEvaluator(ctx *Context) *evaluator {
	ev := &evaluator{
		namedValues: map[string]token.Token{},
		functions:   map[string]Function{},
	}
	if ctx == nil {
		return ev
	}
	for k, v := range ctx.NamedValues {
		ev.namedValues[strings.ToLower(k)] = v
	}
	for k, f := range ctx.Functions {
		ev.functions[strings.ToLower(k)] = f
	}
	return ev
}

func (ev *evaluator) eval(n actionlint.ExprNode) (value, error) {
	switch node := n.(type) {
	case *actionlint.NullNode:
		return value{tok: token.NewNull(nil)}, nil
	case *actionlint.BoolNode:
		return value{tok: token.NewBoolean(nil, node.Value)}, nil
	case *actionlint.IntNode:
		return value{tok: token.NewNumber(nil, float64(node.Value))}, nil
	case *actionlint.FloatNode:
		return value{tok: token.NewNumber(nil, node.Value)}, nil
	case *actionlint.StringNode:
		return value{tok: token.NewString(nil, node.Value)}, nil
	case *actionlint.VariableNode:
		v, ok := ev.namedValues[strings.ToLower(node.Name)]
		if !ok {
			return value{}, fmt.Errorf("named-value '%s' is not available", node.Name)
		}
		return value{tok: v}, nil
	case *actionlint.ObjectDerefNode:
		recv, err := ev.eval(node.Receiver)
		if err != nil {
			return value{}, err
		}
		return index(recv, token.NewString(nil, node.Property)), nil
	case *actionlint.IndexAccessNode:
		recv, err := ev.eval(node.Operand)
		if err != nil {
			return value{}, err
		}
		idx, err := ev.eval(node.Index)
		if err != nil {
			return value{}, err
		}
		return index(recv, idx.token()), nil
	case *actionlint.ArrayDerefNode:
		recv, err := ev.eval(node.Receiver)
		if err != nil {
			return value{}, err
		}
		return flatten(recv), nil
	case *actionlint.NotOpNode:
		operand, err := ev.eval(node.Operand)
		if err != nil {
			return value{}, err
		}
		return value{tok: token.NewBoolean(nil, !truthy(operand.token()))}, nil
	case *actionlint.LogicalOpNode:
		left, err := ev.eval(node.Left)
		if err != nil {
			return value{}, err
		}
		leftTruthy := truthy(left.token())
		if node.Kind == actionlint.LogicalOpNodeKindAnd && !leftTruthy {
			return left, nil
		}
		if node.Kind == actionlint.LogicalOpNodeKindOr && leftTruthy {
			return left, nil
		}
		return ev.eval(node.Right)
	case *actionlint.CompareOpNode:
		left, err := ev.eval(node.Left)
		if err != nil {
			return value{}, err
		}
		right, err := ev.eval(node.Right)
		if err != nil {
			return value{}, err
		}
		return value{tok: token.NewBoolean(nil, compare(node.Kind, left.token(), right.token()))}, nil
	case *actionlint.FuncCallNode:
		args := make([]token.Token, 0, len(node.Args))
		for _, a := range node.Args {
			v, err := ev.eval(a)
			if err != nil {
				return value{}, err
			}
			args = append(args, v.token())
		}
		out, err := ev.call(node.Callee, args)
		if err != nil {
			return value{}, err
		}
		return value{tok: out}, nil
	}
	return value{}, fmt.Errorf("unsupported expression node %T", n)
}

func index(recv value, idx token.Token) value {
	if recv.filtered {
		seq := recv.tok.(*token.Sequence)
		out := token.NewSequence(nil)
		for _, item := range seq.All() {
			v := index(value{tok: item}, idx)
			if _, isNull := v.token().(*token.Null); isNull {
				continue
			}
			out.Add(v.token())
		}
		return value{tok: out, filtered: true}
	}
	switch c := recv.tok.(type) {
	case *token.Mapping:
		if v, ok := c.Lookup(coerceString(idx)); ok {
			return value{tok: v}
		}
	case *token.Sequence:
		n := coerceNumber(idx)
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n >= float64(c.Len()) {
			break
		}
		return value{tok: c.At(int(math.Floor(n)))}
	}
	return value{tok: token.NewNull(nil)}
}

func flatten(recv value) value {
	out := token.NewSequence(nil)
	var sources []token.Token
	if recv.filtered {
		for _, item := range recv.tok.(*token.Sequence).All() {
			sources = append(sources, item)
		}
	} else {
		sources = []token.Token{recv.tok}
	}
	for _, src := range sources {
		switch c := src.(type) {
		case *token.Sequence:
			for _, item := range c.All() {
				out.Add(item)
			}
		case *token.Mapping:
			for _, v := range c.All() {
				out.Add(v)
			}
		}
	}
	return value{tok: out, filtered: true}
}

func (ev *evaluator) call(name string, args []token.Token) (token.Token, error) {
	lower := strings.ToLower(name)
	if f, ok := ev.functions[lower]; ok {
		return f(args)
	}
	arity := func(min, max int) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return fmt.Errorf("function '%s' called with %d arguments", name, len(args))
		}
		return nil
	}
	switch lower {
	case "contains":
		if err := arity(2, 2); err != nil {
			return nil, err
		}
		if seq, ok := args[0].(*token.Sequence); ok {
			for _, item := range seq.All() {
				if equal(item, args[1]) {
					return token.NewBoolean(nil, true), nil
				}
			}
			return token.NewBoolean(nil, false), nil
		}
		return token.NewBoolean(nil, strings.Contains(strings.ToUpper(coerceString(args[0])), strings.ToUpper(coerceString(args[1])))), nil
	case "startswith":
		if err := arity(2, 2); err != nil {
			return nil, err
		}
		return token.NewBoolean(nil, strings.HasPrefix(strings.ToUpper(coerceString(args[0])), strings.ToUpper(coerceString(args[1])))), nil
	case "endswith":
		if err := arity(2, 2); err != nil {
			return nil, err
		}
		return token.NewBoolean(nil, strings.HasSuffix(strings.ToUpper(coerceString(args[0])), strings.ToUpper(coerceString(args[1])))), nil
	case "format":
		if err := arity(1, -1); err != nil {
			return nil, err
		}
		s, err := format(coerceString(args[0]), args[1:])
		if err != nil {
			return nil, err
		}
		return token.NewString(nil, s), nil
	case "join":
		if err := arity(1, 2); err != nil {
			return nil, err
		}
		sep := ","
		if len(args) == 2 {
			sep = coerceString(args[1])
		}
		seq, ok := args[0].(*token.Sequence)
		if !ok {
			return token.NewString(nil, coerceString(args[0])), nil
		}
		parts := make([]string, 0, seq.Len())
		for _, item := range seq.All() {
			parts = append(parts, coerceString(item))
		}
		return token.NewString(nil, strings.Join(parts, sep)), nil
	case "tojson":
		if err := arity(1, 1); err != nil {
			return nil, err
		}
		s, err := toJSON(args[0])
		if err != nil {
			return nil, err
		}
		return token.NewString(nil, s), nil
	case "fromjson":
		if err := arity(1, 1); err != nil {
			return nil, err
		}
		return fromJSON(coerceString(args[0]))
	}
	return nil, fmt.Errorf("function '%s' is not available in this context", name)
}

func format(f string, args []token.Token) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(f); i++ {
		c := f[i]
		switch {
		case c == '{' && i+1 < len(f) && f[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(f) && f[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(f[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("format string %q has an unclosed argument", f)
			}
			n, err := strconv.Atoi(f[i+1 : i+end])
			if err != nil || n < 0 || n >= len(args) {
				return "", fmt.Errorf("format string %q references an invalid argument", f)
			}
			sb.WriteString(coerceString(args[n]))
			i += end
		case c == '}':
			return "", fmt.Errorf("format string %q has an unescaped '}'", f)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

func kindOf(t token.Token) Kind {
	switch t.(type) {
	case *token.Boolean:
		return KindBoolean
	case *token.Number:
		return KindNumber
	case *token.String:
		return KindString
	case *token.Sequence:
		return KindArray
	case *token.Mapping:
		return KindObject
	}
	return KindNull
}

func truthy(t token.Token) bool {
	switch v := t.(type) {
	case *token.Boolean:
		return v.Value
	case *token.Number:
		return v.Value != 0 && !math.IsNaN(v.Value)
	case *token.String:
		return v.Value != ""
	case *token.Sequence, *token.Mapping:
		return true
	}
	return false
}

func isPrimitive(t token.Token) bool {
	k := kindOf(t)
	return k != KindArray && k != KindObject
}

func equal(a, b token.Token) bool {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		if !isPrimitive(a) || !isPrimitive(b) {
			return false
		}
		return coerceNumber(a) == coerceNumber(b)
	}
	switch ka {
	case KindNull:
		return true
	case KindBoolean:
		return a.(*token.Boolean).Value == b.(*token.Boolean).Value
	case KindNumber:
		return a.(*token.Number).Value == b.(*token.Number).Value
	case KindString:
		return strings.EqualFold(a.(*token.String).Value, b.(*token.String).Value)
	}
	return a == b
}

func compare(kind actionlint.CompareOpNodeKind, a, b token.Token) bool {
	switch kind {
	case actionlint.CompareOpNodeKindEq:
		return equal(a, b)
	case actionlint.CompareOpNodeKindNotEq:
		return !equal(a, b)
	}
	if !isPrimitive(a) || !isPrimitive(b) {
		return false
	}
	var c int
	if kindOf(a) == KindString && kindOf(b) == KindString {
		c = strings.Compare(strings.ToUpper(coerceString(a)), strings.ToUpper(coerceString(b)))
	} else {
		x, y := coerceNumber(a), coerceNumber(b)
		if math.IsNaN(x) || math.IsNaN(y) {
			return false
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	}
	switch kind {
	case actionlint.CompareOpNodeKindLess:
		return c < 0
	case actionlint.CompareOpNodeKindLessEq:
		return c <= 0
	case actionlint.CompareOpNodeKindGreater:
		return c > 0
	case actionlint.CompareOpNodeKindGreaterEq:
		return c >= 0
	}
	return false
}

func coerceNumber(t token.Token) float64 {
	switch v := t.(type) {
	case *token.Null:
		return 0
	case *token.Boolean:
		if v.Value {
			return 1
		}
		return 0
	case *token.Number:
		return v.Value
	case *token.String:
		s := strings.TrimSpace(v.Value)
		if s == "" {
			return 0
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	}
	return math.NaN()
}

func coerceString(t token.Token) string {
	switch v := t.(type) {
	case *token.Null:
		return ""
	case *token.Boolean:
		return strconv.FormatBool(v.Value)
	case *token.Number:
		return token.FormatNumber(v.Value)
	case *token.String:
		return v.Value
	case *token.Sequence:
		return "Array"
	case *token.Mapping:
		return "Object"
	}
	return t.String()
}

func toJSON(t token.Token) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, t); err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

func writeJSON(buf *bytes.Buffer, t token.Token) error {
	switch v := t.(type) {
	case *token.Sequence:
		buf.WriteByte('[')
		for i, item := range v.All() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case *token.Mapping:
		buf.WriteByte('{')
		first := true
		for k, item := range v.All() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(k.String())
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	var scalar any
	switch v := t.(type) {
	case *token.Boolean:
		scalar = v.Value
	case *token.Number:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			scalar = token.FormatNumber(v.Value)
		} else {
			scalar = v.Value
		}
	case *token.String:
		scalar = v.Value
	case *token.Null:
		scalar = nil
	default:
		scalar = t.String()
	}
	data, err := json.Marshal(scalar)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func fromJSON(s string) (token.Token, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	t, err := readJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("fromJSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("fromJSON: unexpected data after value")
	}
	return t, nil
}

func readJSON(dec *json.Decoder) (token.Token, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			seq := token.NewSequence(nil)
			for dec.More() {
				item, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				seq.Add(item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return seq, nil
		case '{':
			m := token.NewMapping(nil)
			for dec.More() {
				k, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := k.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string")
				}
				item, err := readJSON(dec)
				if err != nil {
					return nil, err
				}
				m.Add(token.NewString(nil, key), item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case bool:
		return token.NewBoolean(nil, v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return token.NewNumber(nil, f), nil
	case string:
		return token.NewString(nil, v), nil
	case nil:
		return token.NewNull(nil), nil
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}
