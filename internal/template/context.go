// Package template holds the per-invocation conversion context and builds
// template tokens from YAML reader events.
package template

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bgricker/workflowc/internal/expression"
	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
	"github.com/bgricker/workflowc/internal/yamlreader"
	"go.uber.org/zap"
)

// ErrMaxNodesExceeded is returned when a document expands past the node limit.
var ErrMaxNodesExceeded = yamlreader.ErrMaxNodesExceeded

const (
	DefaultMaxErrors        = 100
	DefaultMaxMessageLength = 500
)

// Options configure a Context. Zero values select defaults.
type Options struct {
	MaxErrors        int
	MaxMessageLength int
	MaxNodes         int
	AllowAnchors     bool
	Expressions      expression.Engine
	Logger           *zap.Logger
}

// Context accumulates diagnostics and file bookkeeping for one conversion.
// It is not safe for concurrent use.
type Context struct {
	opts      Options
	errors    []workflow.Error
	dropped   int
	files     []string
	Telemetry workflow.Telemetry
}

// NewContext returns an empty Context.
func NewContext(opts Options) *Context {
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = yamlreader.DefaultMaxNodes
	}
	if opts.Expressions == nil {
		opts.Expressions = expression.NewInterpreter()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Context{opts: opts}
}

func (c *Context) Expressions() expression.Engine { return c.opts.Expressions }

func (c *Context) Logger() *zap.Logger { return c.opts.Logger }

func (c *Context) Options() Options { return c.opts }

// AddFile registers path and returns its file id. Paths are compared
// case-insensitively.
func (c *Context) AddFile(path string) int {
	for i, f := range c.files {
		if strings.EqualFold(f, path) {
			return i
		}
	}
	c.files = append(c.files, path)
	return len(c.files) - 1
}

// FileName returns the path registered for id.
func (c *Context) FileName(id int) string {
	if id < 0 || id >= len(c.files) {
		return ""
	}
	return c.files[id]
}

// FileTable returns a copy of the registered paths indexed by file id.
func (c *Context) FileTable() []string {
	return append([]string(nil), c.files...)
}

// Prefix renders the location prefix for src, or "" when src is nil.
func (c *Context) Prefix(src *token.Source) string {
	if src == nil {
		return ""
	}
	if name := c.FileName(src.FileID); name != "" {
		return fmt.Sprintf("%s: line %d, col %d: ", name, src.Line, src.Column)
	}
	return fmt.Sprintf("line %d, col %d: ", src.Line, src.Column)
}

// Errorf records a diagnostic positioned at src.
func (c *Context) Errorf(src *token.Source, code, format string, args ...any) {
	c.add(code, c.Prefix(src)+fmt.Sprintf(format, args...))
}

// ErrorAt records a diagnostic positioned at t.
func (c *Context) ErrorAt(t token.Token, code, format string, args ...any) {
	var src *token.Source
	if t != nil {
		src = t.Source()
	}
	c.Errorf(src, code, format, args...)
}

// AddError records an already formatted diagnostic.
func (c *Context) AddError(e workflow.Error) {
	c.add(e.Code, e.Message)
}

func (c *Context) add(code, msg string) {
	if len(c.errors) >= c.opts.MaxErrors {
		c.dropped++
		return
	}
	if len(msg) > c.opts.MaxMessageLength {
		msg = Truncate(msg, c.opts.MaxMessageLength) + "[...]"
	}
	c.errors = append(c.errors, workflow.Error{Code: code, Message: msg})
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Errors returns the recorded diagnostics in order.
func (c *Context) Errors() []workflow.Error {
	return append([]workflow.Error(nil), c.errors...)
}

// ErrorCount is the number of recorded diagnostics.
func (c *Context) ErrorCount() int { return len(c.errors) }

// Dropped is the number of diagnostics discarded past MaxErrors.
func (c *Context) Dropped() int { return c.dropped }

// HasErrors reports whether any diagnostic was recorded.
func (c *Context) HasErrors() bool { return len(c.errors) > 0 }

// TruncateErrors discards diagnostics recorded after the first n.
func (c *Context) TruncateErrors(n int) {
	if n < len(c.errors) {
		c.errors = c.errors[:n]
	}
}

// PrefixErrors prepends prefix to every diagnostic recorded at or after
// index from that does not already start with it.
func (c *Context) PrefixErrors(from int, prefix string) {
	if prefix == "" {
		return
	}
	for i := from; i < len(c.errors); i++ {
		if !strings.HasPrefix(c.errors[i].Message, prefix) {
			c.errors[i].Message = prefix + c.errors[i].Message
		}
	}
}
