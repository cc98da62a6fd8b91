package token

import (
	"iter"
	"strings"
)

// Sequence is an ordered list of tokens.
type Sequence struct {
	base
	items []Token
}

// NewSequence creates an empty sequence.
func NewSequence(src *Source) *Sequence {
	return &Sequence{base: newBase(src)}
}

func (*Sequence) Type() Type     { return TypeSequence }
func (*Sequence) String() string { return "Array" }

// Len returns the number of items.
func (s *Sequence) Len() int { return len(s.items) }

// At returns the item at index i.
func (s *Sequence) At(i int) Token { return s.items[i] }

// Add appends an item.
func (s *Sequence) Add(t Token) { s.items = append(s.items, t) }

// Insert places t at index i.
func (s *Sequence) Insert(i int, t Token) {
	s.items = append(s.items, nil)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = t
}

// Set replaces the item at index i.
func (s *Sequence) Set(i int, t Token) { s.items[i] = t }

// RemoveAt deletes the item at index i.
func (s *Sequence) RemoveAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}

// All iterates the items in order.
func (s *Sequence) All() iter.Seq2[int, Token] {
	return func(yield func(int, Token) bool) {
		for i, t := range s.items {
			if !yield(i, t) {
				return
			}
		}
	}
}

func (s *Sequence) Clone(omitSource bool) Token {
	out := &Sequence{base: s.cloneSource(omitSource), items: make([]Token, len(s.items))}
	for i, t := range s.items {
		out.items[i] = t.Clone(omitSource)
	}
	return out
}

// Pair is one key/value entry of a Mapping.
type Pair struct {
	Key   Scalar
	Value Token
}

// Mapping is an ordered list of key/value pairs. Duplicate keys are kept;
// Lookup resolves them case-insensitively with the first occurrence winning.
type Mapping struct {
	base
	pairs []Pair

	// index is the case-insensitive view used by expression evaluation.
	// Every mutation drops it; Lookup rebuilds it on demand.
	index map[string]Token
}

// NewMapping creates an empty mapping.
func NewMapping(src *Source) *Mapping {
	return &Mapping{base: newBase(src)}
}

func (*Mapping) Type() Type     { return TypeMapping }
func (*Mapping) String() string { return "Object" }

// Len returns the number of pairs.
func (m *Mapping) Len() int { return len(m.pairs) }

// At returns the pair at index i.
func (m *Mapping) At(i int) Pair { return m.pairs[i] }

// Add appends a pair.
func (m *Mapping) Add(key Scalar, value Token) {
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
	m.index = nil
}

// Insert places a pair at index i.
func (m *Mapping) Insert(i int, key Scalar, value Token) {
	m.pairs = append(m.pairs, Pair{})
	copy(m.pairs[i+1:], m.pairs[i:])
	m.pairs[i] = Pair{Key: key, Value: value}
	m.index = nil
}

// SetValue replaces the value of the pair at index i.
func (m *Mapping) SetValue(i int, value Token) {
	m.pairs[i].Value = value
	m.index = nil
}

// RemoveAt deletes the pair at index i.
func (m *Mapping) RemoveAt(i int) {
	m.pairs = append(m.pairs[:i], m.pairs[i+1:]...)
	m.index = nil
}

// All iterates the pairs in insertion order.
func (m *Mapping) All() iter.Seq2[Scalar, Token] {
	return func(yield func(Scalar, Token) bool) {
		for _, p := range m.pairs {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// Lookup finds the value for key ignoring case. Only literal keys take part;
// when a key repeats, the first occurrence wins.
func (m *Mapping) Lookup(key string) (Token, bool) {
	if m.index == nil {
		m.index = make(map[string]Token, len(m.pairs))
		for _, p := range m.pairs {
			if _, ok := p.Key.(Literal); !ok {
				continue
			}
			k := strings.ToLower(p.Key.String())
			if _, seen := m.index[k]; !seen {
				m.index[k] = p.Value
			}
		}
	}
	v, ok := m.index[strings.ToLower(key)]
	return v, ok
}

func (m *Mapping) Clone(omitSource bool) Token {
	out := &Mapping{base: m.cloneSource(omitSource), pairs: make([]Pair, len(m.pairs))}
	for i, p := range m.pairs {
		out.pairs[i] = Pair{
			Key:   p.Key.Clone(omitSource).(Scalar),
			Value: p.Value.Clone(omitSource),
		}
	}
	return out
}
