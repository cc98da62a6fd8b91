// Package matrix expands a job's strategy matrix into run configurations.
package matrix

import (
	"math"
	"strings"

	"github.com/bgricker/workflowc/internal/expression"
	"github.com/bgricker/workflowc/internal/idbuilder"
	"github.com/bgricker/workflowc/internal/template"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

// MaxNameLength bounds the display name of a configuration.
const MaxNameLength = 100

// MaxConfigurations bounds the number of configurations a matrix may expand to.
const MaxConfigurations = 256

// Context names exposed to expressions for a configuration.
const (
	ContextMatrix   = "matrix"
	ContextStrategy = "strategy"
)

type vector struct {
	name   string
	values *token.Sequence
}

// Builder accumulates a matrix declaration. Problems are recorded on the
// template context; Build still returns whatever configurations are valid.
type Builder struct {
	ctx     *template.Context
	jobName string
	vectors []vector
	include *token.Sequence
	exclude *token.Sequence

	FailFast    bool
	MaxParallel int
}

// New returns a Builder for the named job with fail-fast enabled.
func New(ctx *template.Context, jobName string) *Builder {
	return &Builder{ctx: ctx, jobName: jobName, FailFast: true}
}

// AddVector declares a cross product dimension.
func (b *Builder) AddVector(name string, values *token.Sequence) {
	if values.Len() == 0 {
		b.ctx.ErrorAt(values, workflow.CodeSemantic, "matrix vector '%s' does not contain any values", name)
		return
	}
	b.vectors = append(b.vectors, vector{name: name, values: values})
}

// Include sets the include filters.
func (b *Builder) Include(seq *token.Sequence) { b.include = seq }

// Exclude sets the exclude filters.
func (b *Builder) Exclude(seq *token.Sequence) { b.exclude = seq }

type includeFilter struct {
	filter  expression.Tree
	source  *token.Mapping
	extras  []token.Pair
	matched bool
}

// Build expands the matrix. Later vectors vary fastest.
func (b *Builder) Build() []workflow.StrategyConfiguration {
	if len(b.vectors) == 0 && (b.include == nil || b.include.Len() == 0) {
		b.ctx.Errorf(nil, workflow.CodeSemantic, "matrix must define at least one vector")
		return nil
	}

	excludes := b.compileExcludes()
	includes := b.compileIncludes()

	var cells []*token.Mapping
	total := 0
	if len(b.vectors) > 0 {
		total = 1
		for _, v := range b.vectors {
			n := v.values.Len()
			if total > MaxConfigurations/n {
				b.tooLarge()
				return nil
			}
			total *= n
		}
		if total > MaxConfigurations {
			b.tooLarge()
			return nil
		}
	}

	for idx := 0; idx < total; idx++ {
		cell := b.cell(idx)
		if b.matchesAny(excludes, cell) {
			continue
		}
		var extras []token.Pair
		for _, inc := range includes {
			if !b.matches(inc.filter, cell) {
				continue
			}
			inc.matched = true
			for _, p := range inc.extras {
				extras = setPair(extras, p)
			}
		}
		for _, p := range extras {
			cell.Add(p.Key.Clone(false).(token.Scalar), p.Value.Clone(false))
		}
		cells = append(cells, cell)
	}

	for _, inc := range includes {
		if !inc.matched {
			cells = append(cells, inc.source.Clone(false).(*token.Mapping))
		}
	}
	if len(cells) > MaxConfigurations {
		b.tooLarge()
		return nil
	}

	return b.configurations(cells)
}

// cell decodes a cross product index into one value per vector.
func (b *Builder) cell(idx int) *token.Mapping {
	picks := make([]token.Token, len(b.vectors))
	for i := len(b.vectors) - 1; i >= 0; i-- {
		n := b.vectors[i].values.Len()
		picks[i] = b.vectors[i].values.At(idx % n)
		idx /= n
	}
	cell := token.NewMapping(nil)
	for i, v := range b.vectors {
		cell.Add(token.NewString(nil, v.name), picks[i].Clone(false))
	}
	return cell
}

func setPair(pairs []token.Pair, p token.Pair) []token.Pair {
	key := p.Key.String()
	for i := range pairs {
		if strings.EqualFold(pairs[i].Key.String(), key) {
			pairs[i].Value = p.Value
			return pairs
		}
	}
	return append(pairs, p)
}

func (b *Builder) vectorName(key string) (string, bool) {
	for _, v := range b.vectors {
		if strings.EqualFold(v.name, key) {
			return v.name, true
		}
	}
	return "", false
}

func (b *Builder) compileExcludes() []expression.Tree {
	if b.exclude == nil {
		return nil
	}
	var out []expression.Tree
	for _, item := range b.exclude.All() {
		m, ok := item.(*token.Mapping)
		if !ok {
			b.ctx.ErrorAt(item, workflow.CodeType, "matrix exclude entries must be mappings")
			continue
		}
		if m.Len() == 0 {
			b.ctx.ErrorAt(m, workflow.CodeSemantic, "matrix exclude filter must not be empty")
			continue
		}
		valid := true
		for k := range m.All() {
			if _, ok := b.vectorName(k.String()); !ok {
				b.ctx.ErrorAt(k, workflow.CodeSemantic, "matrix exclude key '%s' does not match any key within the matrix", k.String())
				valid = false
			}
		}
		if !valid {
			continue
		}
		if tree := b.compile(m); tree != nil {
			out = append(out, tree)
		}
	}
	return out
}

func (b *Builder) compileIncludes() []*includeFilter {
	if b.include == nil {
		return nil
	}
	var out []*includeFilter
	for _, item := range b.include.All() {
		m, ok := item.(*token.Mapping)
		if !ok {
			b.ctx.ErrorAt(item, workflow.CodeType, "matrix include entries must be mappings")
			continue
		}
		explicit := token.NewMapping(nil)
		inc := &includeFilter{source: m}
		for k, v := range m.All() {
			if _, ok := b.vectorName(k.String()); ok {
				explicit.Add(k, v)
			} else {
				inc.extras = append(inc.extras, token.Pair{Key: k, Value: v})
			}
		}
		inc.filter = b.compile(explicit)
		if inc.filter == nil {
			continue
		}
		out = append(out, inc)
	}
	return out
}

// compile turns a filter mapping into `matrix['k'] == <literal>` clauses.
func (b *Builder) compile(filter *token.Mapping) expression.Tree {
	var clauses []string
	never := false
	type entry struct {
		path  string
		value token.Token
	}
	stack := []entry{}
	for i := filter.Len() - 1; i >= 0; i-- {
		p := filter.At(i)
		name, _ := b.vectorName(p.Key.String())
		if name == "" {
			name = p.Key.String()
		}
		stack = append(stack, entry{path: "matrix[" + quote(name) + "]", value: p.Value})
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := e.value.(type) {
		case *token.Mapping:
			for i := v.Len() - 1; i >= 0; i-- {
				p := v.At(i)
				stack = append(stack, entry{path: e.path + "[" + quote(p.Key.String()) + "]", value: p.Value})
			}
		case *token.Sequence:
			for i := v.Len() - 1; i >= 0; i-- {
				stack = append(stack, entry{path: e.path + "[" + itoa(i) + "]", value: v.At(i)})
			}
		default:
			lit, ok := literal(e.value)
			if !ok {
				never = true
				continue
			}
			clauses = append(clauses, e.path+" == "+lit)
		}
	}

	text := "true"
	switch {
	case never:
		text = "false"
	case len(clauses) > 0:
		text = strings.Join(clauses, " && ")
	}
	tree, err := b.ctx.Expressions().Parse(text, []string{ContextMatrix}, []string{})
	if err != nil {
		b.ctx.ErrorAt(filter, workflow.CodeExpression, "%v", err)
		return nil
	}
	return tree
}

func (b *Builder) matches(tree expression.Tree, cell *token.Mapping) bool {
	res, err := b.ctx.Expressions().Evaluate(tree, &expression.Context{
		NamedValues: map[string]token.Token{ContextMatrix: cell},
	})
	if err != nil {
		b.ctx.Errorf(nil, workflow.CodeExpression, "%v", err)
		return false
	}
	return res.Truthy
}

func (b *Builder) matchesAny(trees []expression.Tree, cell *token.Mapping) bool {
	for _, t := range trees {
		if b.matches(t, cell) {
			return true
		}
	}
	return false
}

func (b *Builder) configurations(cells []*token.Mapping) []workflow.StrategyConfiguration {
	ids := idbuilder.New()
	maxParallel := b.MaxParallel
	if maxParallel <= 0 {
		maxParallel = len(cells)
	}
	out := make([]workflow.StrategyConfiguration, 0, len(cells))
	for i, cell := range cells {
		var leaves []string
		for t := range token.Traverse(cell, true) {
			if token.IsLiteral(t) {
				leaves = append(leaves, t.String())
			}
		}
		for _, leaf := range leaves {
			ids.AppendSegment(leaf)
		}
		id, err := ids.Build(false, idbuilder.DefaultMaxLength)
		if err != nil {
			b.ctx.Errorf(nil, workflow.CodeSemantic, "%v", err)
			continue
		}

		strategy := token.NewMapping(nil)
		strategy.Add(token.NewString(nil, "fail-fast"), token.NewBoolean(nil, b.FailFast))
		strategy.Add(token.NewString(nil, "job-index"), token.NewNumber(nil, float64(i)))
		strategy.Add(token.NewString(nil, "job-total"), token.NewNumber(nil, float64(len(cells))))
		strategy.Add(token.NewString(nil, "max-parallel"), token.NewNumber(nil, float64(maxParallel)))

		out = append(out, workflow.StrategyConfiguration{
			ID:   id,
			Name: displayName(b.jobName, leaves),
			ExpressionData: map[string]token.Token{
				ContextMatrix:   cell,
				ContextStrategy: strategy,
			},
		})
	}
	return out
}

func displayName(jobName string, leaves []string) string {
	name := jobName
	if len(leaves) > 0 {
		name += " (" + strings.Join(leaves, ", ") + ")"
	}
	if len(name) > MaxNameLength {
		name = template.Truncate(name, MaxNameLength-3) + "..."
	}
	return name
}

func (b *Builder) tooLarge() {
	b.ctx.Errorf(nil, workflow.CodeLimit, "matrix for job '%s' expands to more than %d configurations", b.jobName, MaxConfigurations)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func literal(t token.Token) (string, bool) {
	switch v := t.(type) {
	case *token.String:
		return quote(v.Value), true
	case *token.Boolean:
		if v.Value {
			return "true", true
		}
		return "false", true
	case *token.Number:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return "", false
		}
		return token.FormatNumber(v.Value), true
	case *token.Null:
		return "null", true
	}
	return "", false
}

func itoa(i int) string {
	return token.FormatNumber(float64(i))
}
