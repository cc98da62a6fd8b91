package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
	"github.com/bgricker/workflowc/internal/yamlreader"
	"go.uber.org/zap"
)

const (
	openExpression  = "${{"
	closeExpression = "}}"
)

type frame struct {
	seq *token.Sequence
	m   *token.Mapping
	// key is the pending mapping key; hasKey with a nil key drops the value.
	key    token.Scalar
	hasKey bool
	seen   map[string]bool
}

type builder struct {
	ctx    *Context
	reader *yamlreader.Reader
	stack  []*frame
	root   token.Token
}

// Read parses data as the file registered under fileID. Structural problems
// are recorded on ctx and yield a nil token. A non-nil error means the input
// could not be processed safely at all.
func Read(ctx *Context, fileID int, data []byte) (token.Token, error) {
	r, err := yamlreader.New(data, yamlreader.Options{
		FileID:       fileID,
		AllowAnchors: ctx.opts.AllowAnchors,
		MaxNodes:     ctx.opts.MaxNodes,
	})
	if err != nil {
		ctx.addReaderError(fileID, err)
		return nil, nil
	}
	b := &builder{ctx: ctx, reader: r}
	root, err := b.build()
	ctx.Telemetry.Anchors += r.Anchors()
	ctx.Telemetry.Aliases += r.Aliases()
	ctx.Logger().Debug("read workflow file",
		zap.String("file", ctx.FileName(fileID)),
		zap.Int("nodes", r.Nodes()),
		zap.Int("anchors", r.Anchors()),
		zap.Int("aliases", r.Aliases()),
		zap.Bool("failed", err != nil),
	)
	if err != nil {
		if errors.Is(err, yamlreader.ErrMaxNodesExceeded) {
			ctx.Errorf(nil, workflow.CodeLimit, "%s: %v", ctx.FileName(fileID), err)
			return nil, err
		}
		ctx.addReaderError(fileID, err)
		return nil, nil
	}
	return root, nil
}

func (c *Context) addReaderError(fileID int, err error) {
	var rerr *yamlreader.Error
	if errors.As(err, &rerr) && rerr.Line > 0 {
		c.Errorf(&token.Source{FileID: fileID, Line: rerr.Line, Column: rerr.Column}, workflow.CodeSyntax, "%s", rerr.Message)
		return
	}
	c.Errorf(nil, workflow.CodeSyntax, "%s: %v", c.FileName(fileID), err)
}

func (b *builder) build() (token.Token, error) {
	for {
		ev, ok, err := b.reader.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return b.root, nil
		}

		switch ev.Type {
		case yamlreader.EventScalar:
			top := b.top()
			isKey := top != nil && top.m != nil && !top.hasKey
			b.place(b.scalar(ev.Scalar, isKey))
		case yamlreader.EventSequenceStart, yamlreader.EventMappingStart:
			if top := b.top(); top != nil && top.m != nil {
				if !top.hasKey {
					b.ctx.Errorf(ev.Source, workflow.CodeSyntax, "a mapping key must be a scalar")
					if err := b.skip(); err != nil {
						return nil, err
					}
					top.hasKey, top.key = true, nil
					continue
				}
				if top.key == nil {
					top.hasKey = false
					if err := b.skip(); err != nil {
						return nil, err
					}
					continue
				}
			}
			f := &frame{}
			if ev.Type == yamlreader.EventSequenceStart {
				f.seq = token.NewSequence(ev.Source)
			} else {
				f.m = token.NewMapping(ev.Source)
				f.seen = map[string]bool{}
			}
			b.stack = append(b.stack, f)
		case yamlreader.EventSequenceEnd, yamlreader.EventMappingEnd:
			f := b.stack[len(b.stack)-1]
			b.stack = b.stack[:len(b.stack)-1]
			if f.seq != nil {
				b.place(f.seq)
			} else {
				b.place(f.m)
			}
		}
	}
}

func (b *builder) top() *frame {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// skip discards the container whose start event was just read.
func (b *builder) skip() error {
	depth := 1
	for depth > 0 {
		ev, ok, err := b.reader.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch ev.Type {
		case yamlreader.EventSequenceStart, yamlreader.EventMappingStart:
			depth++
		case yamlreader.EventSequenceEnd, yamlreader.EventMappingEnd:
			depth--
		}
	}
	return nil
}

func (b *builder) place(t token.Token) {
	top := b.top()
	switch {
	case top == nil:
		b.root = t
	case top.seq != nil:
		top.seq.Add(t)
	case !top.hasKey:
		top.hasKey = true
		key, _ := t.(token.Scalar)
		if lit, ok := t.(*token.String); ok {
			name := strings.ToLower(lit.Value)
			if top.seen[name] {
				b.ctx.ErrorAt(t, workflow.CodeSyntax, "'%s' is already defined", lit.Value)
				key = nil
			}
			top.seen[name] = true
		}
		top.key = key
	default:
		if top.key != nil {
			top.m.Add(top.key, t)
		}
		top.hasKey, top.key = false, nil
	}
}

// scalar converts a literal, recognising `${{ }}` expressions in strings.
func (b *builder) scalar(lit token.Literal, isKey bool) token.Scalar {
	s, ok := lit.(*token.String)
	if !ok || !strings.Contains(s.Value, openExpression) {
		return lit
	}
	segments, err := splitExpressions(s.Value)
	if err != nil {
		b.ctx.ErrorAt(s, workflow.CodeSyntax, "%v", err)
		return s
	}

	if len(segments) == 1 && segments[0].expr {
		text := strings.TrimSpace(segments[0].text)
		directive, isDirective, err := token.ParseDirective(s.Source(), text)
		switch {
		case err != nil:
			b.ctx.ErrorAt(s, workflow.CodeSyntax, "%v", err)
			return s
		case isDirective && !isKey:
			b.ctx.ErrorAt(s, workflow.CodeSyntax, "the directive '%s' is not allowed in this context. Directives are only supported as mapping keys", text)
			return s
		case isDirective:
			return directive
		}
		if !b.checkExpression(s, text) {
			return s
		}
		return token.NewBasicExpression(s.Source(), text)
	}

	var (
		format strings.Builder
		args   []string
	)
	for _, seg := range segments {
		if !seg.expr {
			format.WriteString(escapeFormat(seg.text))
			continue
		}
		text := strings.TrimSpace(seg.text)
		if _, isDirective, _ := token.ParseDirective(nil, text); isDirective {
			b.ctx.ErrorAt(s, workflow.CodeSyntax, "the directive '%s' is not allowed in this context. Directives are only supported as mapping keys", text)
			return s
		}
		if !b.checkExpression(s, text) {
			return s
		}
		fmt.Fprintf(&format, "{%d}", len(args))
		args = append(args, text)
	}
	expr := "format('" + format.String() + "', " + strings.Join(args, ", ") + ")"
	return token.NewBasicExpression(s.Source(), expr)
}

func (b *builder) checkExpression(at token.Token, text string) bool {
	if _, err := b.ctx.Expressions().Parse(text, nil, nil); err != nil {
		b.ctx.ErrorAt(at, workflow.CodeExpression, "%v", err)
		return false
	}
	return true
}

type segment struct {
	expr bool
	text string
}

// splitExpressions cuts s into literal and `${{ }}` segments. A closing
// `}}` inside a single-quoted expression string does not end the expression.
func splitExpressions(s string) ([]segment, error) {
	var out []segment
	rest := s
	for {
		start := strings.Index(rest, openExpression)
		if start < 0 {
			if rest != "" {
				out = append(out, segment{text: rest})
			}
			return out, nil
		}
		if start > 0 {
			out = append(out, segment{text: rest[:start]})
		}
		body := rest[start+len(openExpression):]
		end := -1
		quoted := false
		for i := 0; i < len(body); i++ {
			if body[i] == '\'' {
				quoted = !quoted
				continue
			}
			if !quoted && strings.HasPrefix(body[i:], closeExpression) {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("the expression is not closed. An unescaped ${{ sequence was found, but the closing }} sequence was not found")
		}
		if strings.TrimSpace(body[:end]) == "" {
			return nil, fmt.Errorf("an expression was expected")
		}
		out = append(out, segment{expr: true, text: body[:end]})
		rest = body[end+len(closeExpression):]
	}
}

func escapeFormat(s string) string {
	return strings.NewReplacer("'", "''", "{", "{{", "}", "}}").Replace(s)
}
