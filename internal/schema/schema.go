// Package schema validates template tokens against the embedded workflow
// JSON schema. Schema-affecting features select a variant of the schema;
// compiled variants are kept in a Cache.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bgricker/workflowc/internal/token"
	"github.com/bgricker/workflowc/internal/workflow"
)

//go:embed workflow.json
var workflowSchema []byte

// Schema-affecting features.
const (
	// FeatureSnapshot allows `snapshot` on jobs.
	FeatureSnapshot = "snapshot"
	// FeatureStrictPermissions rejects unknown permission scopes and levels.
	FeatureStrictPermissions = "strict-permissions"
)

var knownFeatures = []string{FeatureSnapshot, FeatureStrictPermissions}

// ErrConflictingFeatures is returned when more than one schema-affecting
// feature is enabled.
var ErrConflictingFeatures = errors.New("at most one schema feature may be enabled")

// Cache compiles schema variants on first use. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{schemas: map[string]*jsonschema.Schema{}}
}

// Variant returns the single schema-affecting feature in features, or "" for
// the base schema. Features that do not affect the schema are ignored.
func Variant(features []string) (string, error) {
	var active []string
	seen := map[string]bool{}
	for _, f := range features {
		f = strings.ToLower(strings.TrimSpace(f))
		for _, k := range knownFeatures {
			if f == k && !seen[f] {
				seen[f] = true
				active = append(active, f)
			}
		}
	}
	switch len(active) {
	case 0:
		return "", nil
	case 1:
		return active[0], nil
	}
	sort.Strings(active)
	return "", fmt.Errorf("%w: %s", ErrConflictingFeatures, strings.Join(active, ", "))
}

// Get returns the compiled schema for features.
func (c *Cache) Get(features []string) (*jsonschema.Schema, error) {
	variant, err := Variant(features)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.schemas[variant]; ok {
		return s, nil
	}
	s, err := compile(variant)
	if err != nil {
		return nil, err
	}
	c.schemas[variant] = s
	return s, nil
}

func compile(variant string) (*jsonschema.Schema, error) {
	doc, err := document(variant)
	if err != nil {
		return nil, err
	}
	url := "workflow.json"
	if variant != "" {
		url = "workflow-" + variant + ".json"
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", url, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", url, err)
	}
	return s, nil
}

// document patches the base schema for variant.
func document(variant string) ([]byte, error) {
	if variant == "" {
		return workflowSchema, nil
	}
	var root map[string]any
	if err := json.Unmarshal(workflowSchema, &root); err != nil {
		return nil, fmt.Errorf("decode embedded schema: %w", err)
	}
	defs := root["$defs"].(map[string]any)
	switch variant {
	case FeatureSnapshot:
		job := defs["plain-job"].(map[string]any)
		props := job["properties"].(map[string]any)
		props["snapshot"] = map[string]any{"$ref": "#/$defs/snapshot"}
	case FeatureStrictPermissions:
		props := map[string]any{}
		for _, s := range workflow.Scopes() {
			props[s.String()] = map[string]any{"$ref": "#/$defs/permission-level"}
		}
		defs["permissions-mapping"] = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           props,
		}
	}
	root["$id"] = "workflow-" + variant + ".json"
	return json.Marshal(root)
}

// Validate checks root against the schema and returns one diagnostic per
// failing leaf, positioned at the offending token where it can be found.
func Validate(s *jsonschema.Schema, root token.Token) []Violation {
	err := s.Validate(token.ToValue(root))
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Message: err.Error()}}
	}
	var out []Violation
	seen := map[string]bool{}
	stack := []*jsonschema.ValidationError{ve}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(e.Causes) > 0 {
			for i := len(e.Causes) - 1; i >= 0; i-- {
				stack = append(stack, e.Causes[i])
			}
			continue
		}
		key := e.InstanceLocation + "\x00" + e.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Violation{
			Path:    e.InstanceLocation,
			Message: e.Message,
			Token:   Resolve(root, e.InstanceLocation),
		})
	}
	return out
}

// Violation is one schema failure. Token is nil when the path could not be
// resolved.
type Violation struct {
	Path    string
	Message string
	Token   token.Token
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return "'" + v.Path + "': " + v.Message
}

// Resolve follows a JSON pointer through a token tree.
func Resolve(root token.Token, pointer string) token.Token {
	cur := root
	if pointer == "" || pointer == "/" {
		return cur
	}
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		switch v := cur.(type) {
		case *token.Mapping:
			next, ok := lookupExact(v, part)
			if !ok {
				return cur
			}
			cur = next
		case *token.Sequence:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= v.Len() {
				return cur
			}
			cur = v.At(i)
		default:
			return cur
		}
	}
	return cur
}

func lookupExact(m *token.Mapping, key string) (token.Token, bool) {
	for k, v := range m.All() {
		if k.String() == key {
			return v, true
		}
	}
	return nil, false
}
