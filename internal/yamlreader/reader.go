// Package yamlreader turns a YAML document into a pull-based stream of token
// construction events. Plain scalars follow the YAML 1.2 core schema and
// aliases are expanded by replaying the events recorded for their anchor.
package yamlreader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bgricker/workflowc/internal/token"
	"gopkg.in/yaml.v3"
)

// ErrMaxNodesExceeded is returned once a document, aliases included, visits
// more nodes than allowed.
var ErrMaxNodesExceeded = errors.New("maximum YAML node count exceeded")

// DefaultMaxNodes bounds documents when Options.MaxNodes is zero.
const DefaultMaxNodes = 100000

// EventType identifies a construction event.
type EventType int

const (
	EventScalar EventType = iota
	EventSequenceStart
	EventSequenceEnd
	EventMappingStart
	EventMappingEnd
)

func (t EventType) String() string {
	switch t {
	case EventScalar:
		return "scalar"
	case EventSequenceStart:
		return "sequence-start"
	case EventSequenceEnd:
		return "sequence-end"
	case EventMappingStart:
		return "mapping-start"
	case EventMappingEnd:
		return "mapping-end"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one step of the document walk. Scalar is set for EventScalar.
type Event struct {
	Type   EventType
	Source *token.Source
	Scalar token.Literal
}

// Error is a positioned reader failure.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Message)
}

// Options configure a Reader.
type Options struct {
	FileID       int
	AllowAnchors bool
	// MaxNodes caps scalars and containers emitted, replayed ones included.
	MaxNodes int
}

var (
	nullPattern  = regexp.MustCompile(`^(null|Null|NULL|~)?$`)
	boolPattern  = regexp.MustCompile(`^(true|True|TRUE|false|False|FALSE)$`)
	int10Pattern = regexp.MustCompile(`^[-+]?[0-9]+$`)
	int8Pattern  = regexp.MustCompile(`^0o[0-7]+$`)
	int16Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
	floatPattern = regexp.MustCompile(`^[-+]?(\.[0-9]+|[0-9]+(\.[0-9]*)?)([eE][-+]?[0-9]+)?$`)
	infPattern   = regexp.MustCompile(`^[-+]?(\.inf|\.Inf|\.INF)$`)
	nanPattern   = regexp.MustCompile(`^(\.nan|\.NaN|\.NAN)$`)
)

type frame struct {
	node *yaml.Node
	next int
}

type replay struct {
	pos   int
	depth int
}

// Reader walks a parsed document without recursion.
type Reader struct {
	opts    Options
	root    *yaml.Node
	started bool
	done    bool
	stack   []frame
	replay  *replay
	log     []Event
	anchors map[*yaml.Node]int

	nodes       int
	anchorCount int
	aliasCount  int
}

// New parses data and returns a Reader positioned before the first event.
// Multiple documents in one stream are rejected.
func New(data []byte, opts Options) (*Reader, error) {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	err := dec.Decode(&doc)
	switch {
	case errors.Is(err, io.EOF):
		doc = yaml.Node{}
	case err != nil:
		return nil, syntaxError(err)
	default:
		var extra yaml.Node
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			if err != nil {
				return nil, syntaxError(err)
			}
			return nil, &Error{Line: extra.Line, Column: extra.Column, Message: "multiple documents are not supported"}
		}
	}

	r := &Reader{opts: opts, anchors: map[*yaml.Node]int{}}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		r.root = doc.Content[0]
	} else {
		r.root = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Line: 1, Column: 1}
	}
	return r, nil
}

func syntaxError(err error) error {
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	return &Error{Message: msg}
}

// Anchors reports the number of anchors seen so far.
func (r *Reader) Anchors() int { return r.anchorCount }

// Aliases reports the number of aliases seen so far.
func (r *Reader) Aliases() int { return r.aliasCount }

// Nodes reports the number of nodes emitted so far.
func (r *Reader) Nodes() int { return r.nodes }

// Next returns the next event. ok is false once the document is exhausted.
func (r *Reader) Next() (ev Event, ok bool, err error) {
	if r.done {
		return Event{}, false, nil
	}
	if r.replay != nil {
		return r.replayNext()
	}
	if !r.started {
		r.started = true
		return r.visit(r.root)
	}
	if len(r.stack) == 0 {
		r.done = true
		return Event{}, false, nil
	}
	top := &r.stack[len(r.stack)-1]
	if top.next < len(top.node.Content) {
		child := top.node.Content[top.next]
		top.next++
		return r.visit(child)
	}
	r.stack = r.stack[:len(r.stack)-1]
	end := EventSequenceEnd
	if top.node.Kind == yaml.MappingNode {
		end = EventMappingEnd
	}
	ev = Event{Type: end, Source: r.source(top.node)}
	return r.emit(ev)
}

func (r *Reader) visit(n *yaml.Node) (Event, bool, error) {
	if n.Anchor != "" {
		if !r.opts.AllowAnchors {
			return Event{}, false, &Error{Line: n.Line, Column: n.Column, Message: "anchors are not currently supported. Remove the anchor '" + n.Anchor + "'"}
		}
		r.anchorCount++
		r.anchors[n] = len(r.log)
	}

	switch n.Kind {
	case yaml.ScalarNode:
		lit, err := r.scalar(n)
		if err != nil {
			return Event{}, false, err
		}
		return r.emit(Event{Type: EventScalar, Source: r.source(n), Scalar: lit})
	case yaml.SequenceNode, yaml.MappingNode:
		if n.Style&yaml.TaggedStyle != 0 && n.Tag != "!!seq" && n.Tag != "!!map" {
			return Event{}, false, &Error{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("unsupported tag '%s'", n.Tag)}
		}
		start := EventSequenceStart
		if n.Kind == yaml.MappingNode {
			start = EventMappingStart
		}
		r.stack = append(r.stack, frame{node: n})
		return r.emit(Event{Type: start, Source: r.source(n)})
	case yaml.AliasNode:
		if !r.opts.AllowAnchors {
			return Event{}, false, &Error{Line: n.Line, Column: n.Column, Message: "anchors are not currently supported. Remove the alias '" + n.Value + "'"}
		}
		r.aliasCount++
		pos, ok := r.anchors[n.Alias]
		if !ok {
			return Event{}, false, &Error{Line: n.Line, Column: n.Column, Message: fmt.Sprintf("unknown anchor '%s'", n.Value)}
		}
		r.replay = &replay{pos: pos}
		return r.replayNext()
	}
	return Event{}, false, &Error{Line: n.Line, Column: n.Column, Message: "unexpected YAML node"}
}

// replayNext re-emits a recorded subtree. The log only grows at its end, so
// the positions being replayed stay valid.
func (r *Reader) replayNext() (Event, bool, error) {
	ev := r.log[r.replay.pos]
	r.replay.pos++
	switch ev.Type {
	case EventSequenceStart, EventMappingStart:
		r.replay.depth++
	case EventSequenceEnd, EventMappingEnd:
		r.replay.depth--
	}
	if r.replay.depth == 0 {
		r.replay = nil
	}
	if ev.Scalar != nil {
		ev.Scalar = ev.Scalar.Clone(false).(token.Literal)
	}
	return r.emit(ev)
}

func (r *Reader) emit(ev Event) (Event, bool, error) {
	if ev.Type == EventScalar || ev.Type == EventSequenceStart || ev.Type == EventMappingStart {
		r.nodes++
		if r.nodes > r.opts.MaxNodes {
			r.done = true
			return Event{}, false, fmt.Errorf("%w: limit is %d", ErrMaxNodesExceeded, r.opts.MaxNodes)
		}
	}
	if r.opts.AllowAnchors {
		r.log = append(r.log, ev)
	}
	return ev, true, nil
}

func (r *Reader) source(n *yaml.Node) *token.Source {
	return &token.Source{FileID: r.opts.FileID, Line: n.Line, Column: n.Column}
}

func (r *Reader) scalar(n *yaml.Node) (token.Literal, error) {
	src := r.source(n)
	tagged := n.Style&yaml.TaggedStyle != 0
	plain := n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) == 0

	if !tagged {
		if !plain {
			return token.NewString(src, n.Value), nil
		}
		return classify(src, n.Value), nil
	}

	fail := func(msg string) (token.Literal, error) {
		return nil, &Error{Line: n.Line, Column: n.Column, Message: msg}
	}
	if !plain {
		return fail(fmt.Sprintf("the tag '%s' is only valid on plain scalars", n.Tag))
	}
	if n.Tag == "!!str" {
		return token.NewString(src, n.Value), nil
	}
	switch n.Tag {
	case "!!null":
		if !nullPattern.MatchString(n.Value) {
			return fail(fmt.Sprintf("'%s' is not a valid null", n.Value))
		}
		return rawNull(src, n.Value), nil
	case "!!bool":
		if !boolPattern.MatchString(n.Value) {
			return fail(fmt.Sprintf("'%s' is not a valid boolean", n.Value))
		}
		return rawBool(src, n.Value), nil
	case "!!int":
		if num, ok := parseInt(src, n.Value); ok {
			return num, nil
		}
		return fail(fmt.Sprintf("'%s' is not a valid integer", n.Value))
	case "!!float":
		if num, ok := parseInt(src, n.Value); ok {
			return num, nil
		}
		if num, ok := parseFloat(src, n.Value); ok {
			return num, nil
		}
		return fail(fmt.Sprintf("'%s' is not a valid float", n.Value))
	}
	return fail(fmt.Sprintf("unsupported tag '%s'", n.Tag))
}

// classify resolves a plain scalar with the core schema.
func classify(src *token.Source, v string) token.Literal {
	if nullPattern.MatchString(v) {
		return rawNull(src, v)
	}
	if boolPattern.MatchString(v) {
		return rawBool(src, v)
	}
	if num, ok := parseInt(src, v); ok {
		return num
	}
	if num, ok := parseFloat(src, v); ok {
		return num
	}
	return token.NewString(src, v)
}

func rawNull(src *token.Source, v string) *token.Null {
	n := token.NewNull(src)
	n.Raw = v
	return n
}

func rawBool(src *token.Source, v string) *token.Boolean {
	b := token.NewBoolean(src, strings.EqualFold(v, "true"))
	b.Raw = v
	return b
}

func parseInt(src *token.Source, v string) (*token.Number, bool) {
	var (
		f  float64
		ok bool
	)
	switch {
	case int10Pattern.MatchString(v):
		n, err := strconv.ParseFloat(v, 64)
		f, ok = n, err == nil
	case int8Pattern.MatchString(v):
		n, err := strconv.ParseUint(v[2:], 8, 64)
		f, ok = float64(n), err == nil
	case int16Pattern.MatchString(v):
		n, err := strconv.ParseUint(v[2:], 16, 64)
		f, ok = float64(n), err == nil
	}
	if !ok {
		return nil, false
	}
	num := token.NewNumber(src, f)
	num.Raw = v
	return num, true
}

func parseFloat(src *token.Source, v string) (*token.Number, bool) {
	var f float64
	switch {
	case floatPattern.MatchString(v):
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		f = n
	case infPattern.MatchString(v):
		f = math.Inf(1)
		if strings.HasPrefix(v, "-") {
			f = math.Inf(-1)
		}
	case nanPattern.MatchString(v):
		f = math.NaN()
	default:
		return nil, false
	}
	num := token.NewNumber(src, f)
	num.Raw = v
	return num, true
}
