// Package idbuilder generates and validates job and step identifiers.
package idbuilder

import (
	"errors"
	"fmt"
	"strings"
)

// ReservedPrefix marks generated identifiers.
const ReservedPrefix = "__"

// DefaultMaxLength is the longest identifier the schema accepts.
const DefaultMaxLength = 100

const maxAttempts = 1000

// ErrExhausted is returned when no unique identifier can be generated.
var ErrExhausted = errors.New("unable to generate a unique identifier")

// Builder accumulates name segments and hands out identifiers that are
// unique within its scope. The zero value is not usable; call New.
type Builder struct {
	name  strings.Builder
	known map[string]bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{known: map[string]bool{}}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isLegal(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// AppendSegment sanitises text and adds it to the pending name.
func (b *Builder) AppendSegment(text string) {
	if text == "" {
		return
	}
	first := b.name.Len() == 0
	if !first {
		b.name.WriteByte('_')
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if i == 0 && first && !isLetter(c) && c != '_' {
			b.name.WriteByte('_')
		}
		if isLegal(c) {
			b.name.WriteByte(c)
		} else {
			b.name.WriteByte('_')
		}
	}
}

// Build returns a unique identifier for the pending name and resets it.
// Unless allowReserved is set the result never starts with ReservedPrefix.
func (b *Builder) Build(allowReserved bool, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	name := b.name.String()
	b.name.Reset()
	if name == "" {
		name = "job"
	}
	if !allowReserved {
		for strings.HasPrefix(name, ReservedPrefix) {
			name = name[1:]
		}
	}

	candidate := truncate(name, maxLength)
	for attempt := 2; attempt <= maxAttempts+1; attempt++ {
		if !b.known[strings.ToLower(candidate)] {
			b.known[strings.ToLower(candidate)] = true
			return candidate, nil
		}
		suffix := fmt.Sprintf("_%d", attempt)
		candidate = truncate(name, maxLength-len(suffix)) + suffix
	}
	return "", fmt.Errorf("%w from '%s'", ErrExhausted, name)
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

// TryAddKnownID validates a user supplied identifier and registers it.
func (b *Builder) TryAddKnownID(id string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	switch {
	case id == "":
		return fmt.Errorf("the identifier is empty")
	case !IsValid(id):
		return fmt.Errorf("the identifier '%s' is invalid. IDs may only contain alphanumeric characters, '_', and '-'. IDs must start with a letter or '_' and and must be less than %d characters", id, maxLength)
	case len(id) > maxLength:
		return fmt.Errorf("the identifier '%s' is too long. IDs must be less than %d characters", id, maxLength)
	case strings.HasPrefix(id, ReservedPrefix):
		return fmt.Errorf("the identifier '%s' is invalid. IDs starting with '%s' are reserved", id, ReservedPrefix)
	case b.known[strings.ToLower(id)]:
		return fmt.Errorf("the identifier '%s' may not be used more than once within the same scope", id)
	}
	b.known[strings.ToLower(id)] = true
	return nil
}

// IsValid reports whether id uses the legal character set.
func IsValid(id string) bool {
	if id == "" || !isLetter(id[0]) && id[0] != '_' {
		return false
	}
	for i := 1; i < len(id); i++ {
		if !isLegal(id[i]) {
			return false
		}
	}
	return true
}
