package token

import "iter"

// Traverse yields t and all of its descendants depth-first. Mapping keys are
// yielded before their values unless omitKeys is set. The walk keeps its own
// stack, so document depth is bounded by memory rather than the call stack;
// iter.Pull turns it into a resumable iterator.
func Traverse(t Token, omitKeys bool) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		if t == nil {
			return
		}
		stack := []Token{t}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(cur) {
				return
			}
			switch c := cur.(type) {
			case *Sequence:
				for i := len(c.items) - 1; i >= 0; i-- {
					stack = append(stack, c.items[i])
				}
			case *Mapping:
				for i := len(c.pairs) - 1; i >= 0; i-- {
					stack = append(stack, c.pairs[i].Value)
					if !omitKeys {
						stack = append(stack, c.pairs[i].Key)
					}
				}
			}
		}
	}
}

// Equal reports whether a and b are structurally identical, ignoring
// provenance and raw lexical forms.
func Equal(a, b Token) bool {
	type pair struct{ a, b Token }
	stack := []pair{{a, b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return false
			}
			continue
		}
		if p.a.Type() != p.b.Type() {
			return false
		}
		switch x := p.a.(type) {
		case *String:
			if x.Value != p.b.(*String).Value {
				return false
			}
		case *Boolean:
			if x.Value != p.b.(*Boolean).Value {
				return false
			}
		case *Number:
			y := p.b.(*Number).Value
			if x.Value != y && !(x.Value != x.Value && y != y) {
				return false
			}
		case *Null, *InsertExpression, *Else:
		case *BasicExpression:
			if x.Expression != p.b.(*BasicExpression).Expression {
				return false
			}
		case *If:
			if x.Condition != p.b.(*If).Condition {
				return false
			}
		case *ElseIf:
			if x.Condition != p.b.(*ElseIf).Condition {
				return false
			}
		case *Each:
			y := p.b.(*Each)
			if x.Variable != y.Variable || x.Collection != y.Collection {
				return false
			}
		case *Sequence:
			y := p.b.(*Sequence)
			if len(x.items) != len(y.items) {
				return false
			}
			for i := range x.items {
				stack = append(stack, pair{x.items[i], y.items[i]})
			}
		case *Mapping:
			y := p.b.(*Mapping)
			if len(x.pairs) != len(y.pairs) {
				return false
			}
			for i := range x.pairs {
				stack = append(stack,
					pair{x.pairs[i].Key, y.pairs[i].Key},
					pair{x.pairs[i].Value, y.pairs[i].Value})
			}
		}
	}
	return true
}
