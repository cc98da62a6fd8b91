// Package token implements the template token tree: the typed, provenance
// carrying value model that YAML workflow documents are read into before they
// are converted into the workflow object model.
//
// The set of token variants is closed. Consumers switch on the concrete type
// and the unexported marker methods keep other packages from adding variants.
package token

import (
	"math"
	"strconv"
)

// Type is the wire discriminator of a token variant.
type Type int

const (
	TypeString Type = iota
	TypeSequence
	TypeMapping
	TypeBasicExpression
	TypeInsertExpression
	TypeBoolean
	TypeNumber
	TypeNull
	TypeIf
	TypeElseIf
	TypeElse
	TypeEach
)

var typeNames = map[Type]string{
	TypeString:           "String",
	TypeSequence:         "Sequence",
	TypeMapping:          "Mapping",
	TypeBasicExpression:  "BasicExpression",
	TypeInsertExpression: "InsertExpression",
	TypeBoolean:          "Boolean",
	TypeNumber:           "Number",
	TypeNull:             "Null",
	TypeIf:               "If",
	TypeElseIf:           "ElseIf",
	TypeElse:             "Else",
	TypeEach:             "Each",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Source is the provenance of a token. Line and Column are 1-based.
type Source struct {
	FileID int
	Line   int
	Column int
}

// Token is a node of the template tree.
type Token interface {
	Type() Type
	// Source returns nil for synthetic or normalized tokens.
	Source() *Source
	// Clone returns a deep, independent copy.
	Clone(omitSource bool) Token
	// String returns the display form: the lexical form for scalars.
	String() string
	isToken()
}

// Scalar is any token allowed as a mapping key: literals and expressions.
type Scalar interface {
	Token
	isScalar()
}

// Literal is a concrete scalar value.
type Literal interface {
	Scalar
	isLiteral()
}

// Expression is a placeholder that is resolved by the expression engine or
// a directive that shapes the surrounding container.
type Expression interface {
	Scalar
	// IsDirective reports whether the expression is only legal as a mapping key.
	IsDirective() bool
	isExpression()
}

type base struct {
	source *Source
}

func (b *base) Source() *Source { return b.source }
func (*base) isToken()          {}

func (b *base) cloneSource(omit bool) base {
	if omit || b.source == nil {
		return base{}
	}
	src := *b.source
	return base{source: &src}
}

func newBase(src *Source) base {
	if src == nil {
		return base{}
	}
	s := *src
	return base{source: &s}
}

// String is a string literal.
type String struct {
	base
	Value string
}

// NewString creates a string literal.
func NewString(src *Source, value string) *String {
	return &String{base: newBase(src), Value: value}
}

func (*String) Type() Type       { return TypeString }
func (*String) isScalar()        {}
func (*String) isLiteral()       {}
func (s *String) String() string { return s.Value }

func (s *String) Clone(omitSource bool) Token {
	return &String{base: s.cloneSource(omitSource), Value: s.Value}
}

// Boolean is a boolean literal. Raw keeps the lexical form when it was read
// from a document, e.g. "True".
type Boolean struct {
	base
	Value bool
	Raw   string
}

// NewBoolean creates a boolean literal.
func NewBoolean(src *Source, value bool) *Boolean {
	return &Boolean{base: newBase(src), Value: value}
}

func (*Boolean) Type() Type { return TypeBoolean }
func (*Boolean) isScalar()  {}
func (*Boolean) isLiteral() {}

func (b *Boolean) String() string {
	if b.Raw != "" {
		return b.Raw
	}
	return strconv.FormatBool(b.Value)
}

func (b *Boolean) Clone(omitSource bool) Token {
	return &Boolean{base: b.cloneSource(omitSource), Value: b.Value, Raw: b.Raw}
}

// Number is a numeric literal.
type Number struct {
	base
	Value float64
	Raw   string
}

// NewNumber creates a numeric literal.
func NewNumber(src *Source, value float64) *Number {
	return &Number{base: newBase(src), Value: value}
}

func (*Number) Type() Type { return TypeNumber }
func (*Number) isScalar()  {}
func (*Number) isLiteral() {}

func (n *Number) String() string {
	if n.Raw != "" {
		return n.Raw
	}
	return FormatNumber(n.Value)
}

func (n *Number) Clone(omitSource bool) Token {
	return &Number{base: n.cloneSource(omitSource), Value: n.Value, Raw: n.Raw}
}

// FormatNumber renders v with 15 significant digits, independent of locale.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}
	return strconv.FormatFloat(v, 'G', 15, 64)
}

// Null is the null literal.
type Null struct {
	base
	Raw string
}

// NewNull creates a null literal.
func NewNull(src *Source) *Null {
	return &Null{base: newBase(src)}
}

func (*Null) Type() Type       { return TypeNull }
func (*Null) isScalar()        {}
func (*Null) isLiteral()       {}
func (n *Null) String() string { return n.Raw }

func (n *Null) Clone(omitSource bool) Token {
	return &Null{base: n.cloneSource(omitSource), Raw: n.Raw}
}

// BasicExpression holds the raw text of a `${{ }}` expression.
type BasicExpression struct {
	base
	Expression string
}

// NewBasicExpression creates an expression placeholder.
func NewBasicExpression(src *Source, expression string) *BasicExpression {
	return &BasicExpression{base: newBase(src), Expression: expression}
}

func (*BasicExpression) Type() Type        { return TypeBasicExpression }
func (*BasicExpression) isScalar()         {}
func (*BasicExpression) isExpression()     {}
func (*BasicExpression) IsDirective() bool { return false }

func (e *BasicExpression) String() string { return "${{ " + e.Expression + " }}" }

func (e *BasicExpression) Clone(omitSource bool) Token {
	return &BasicExpression{base: e.cloneSource(omitSource), Expression: e.Expression}
}

// InsertExpression splices the value mapping into the parent mapping.
type InsertExpression struct {
	base
}

// NewInsertExpression creates an insert directive.
func NewInsertExpression(src *Source) *InsertExpression {
	return &InsertExpression{base: newBase(src)}
}

func (*InsertExpression) Type() Type        { return TypeInsertExpression }
func (*InsertExpression) isScalar()         {}
func (*InsertExpression) isExpression()     {}
func (*InsertExpression) IsDirective() bool { return true }
func (*InsertExpression) String() string    { return "${{ insert }}" }

func (e *InsertExpression) Clone(omitSource bool) Token {
	return &InsertExpression{base: e.cloneSource(omitSource)}
}

// If is a conditional directive key.
type If struct {
	base
	Condition string
}

// NewIf creates an if directive.
func NewIf(src *Source, condition string) *If {
	return &If{base: newBase(src), Condition: condition}
}

func (*If) Type() Type        { return TypeIf }
func (*If) isScalar()         {}
func (*If) isExpression()     {}
func (*If) IsDirective() bool { return true }

func (e *If) String() string { return "${{ if " + e.Condition + " }}" }

func (e *If) Clone(omitSource bool) Token {
	return &If{base: e.cloneSource(omitSource), Condition: e.Condition}
}

// ElseIf is a chained conditional directive key.
type ElseIf struct {
	base
	Condition string
}

// NewElseIf creates an elseif directive.
func NewElseIf(src *Source, condition string) *ElseIf {
	return &ElseIf{base: newBase(src), Condition: condition}
}

func (*ElseIf) Type() Type        { return TypeElseIf }
func (*ElseIf) isScalar()         {}
func (*ElseIf) isExpression()     {}
func (*ElseIf) IsDirective() bool { return true }

func (e *ElseIf) String() string { return "${{ elseif " + e.Condition + " }}" }

func (e *ElseIf) Clone(omitSource bool) Token {
	return &ElseIf{base: e.cloneSource(omitSource), Condition: e.Condition}
}

// Else closes a conditional chain.
type Else struct {
	base
}

// NewElse creates an else directive.
func NewElse(src *Source) *Else {
	return &Else{base: newBase(src)}
}

func (*Else) Type() Type        { return TypeElse }
func (*Else) isScalar()         {}
func (*Else) isExpression()     {}
func (*Else) IsDirective() bool { return true }
func (*Else) String() string    { return "${{ else }}" }

func (e *Else) Clone(omitSource bool) Token {
	return &Else{base: e.cloneSource(omitSource)}
}

// Each repeats its value once per element of Collection, binding Variable.
type Each struct {
	base
	Variable   string
	Collection string
}

// NewEach creates an each directive.
func NewEach(src *Source, variable, collection string) *Each {
	return &Each{base: newBase(src), Variable: variable, Collection: collection}
}

func (*Each) Type() Type        { return TypeEach }
func (*Each) isScalar()         {}
func (*Each) isExpression()     {}
func (*Each) IsDirective() bool { return true }

func (e *Each) String() string {
	return "${{ each " + e.Variable + " in " + e.Collection + " }}"
}

func (e *Each) Clone(omitSource bool) Token {
	return &Each{base: e.cloneSource(omitSource), Variable: e.Variable, Collection: e.Collection}
}

// IsLiteral reports whether t is a concrete scalar value.
func IsLiteral(t Token) bool {
	_, ok := t.(Literal)
	return ok
}

// IsExpression reports whether t is an expression placeholder or directive.
func IsExpression(t Token) bool {
	_, ok := t.(Expression)
	return ok
}
