package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Level is the access granted for one scope. Levels are totally ordered.
type Level int

const (
	NoAccess Level = iota
	Read
	Write
)

func (l Level) String() string {
	switch l {
	case Read:
		return "read"
	case Write:
		return "write"
	}
	return "none"
}

// ParseLevel converts a YAML permission value.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "none":
		return NoAccess, true
	case "read":
		return Read, true
	case "write":
		return Write, true
	}
	return NoAccess, false
}

// Scope is a named permission.
type Scope int

const (
	ScopeActions Scope = iota
	ScopeAttestations
	ScopeChecks
	ScopeContents
	ScopeDeployments
	ScopeDiscussions
	ScopeIDToken
	ScopeIssues
	ScopeModels
	ScopePackages
	ScopePages
	ScopePullRequests
	ScopeRepositoryProjects
	ScopeSecurityEvents
	ScopeStatuses
	scopeCount
)

var scopeNames = [scopeCount]string{
	ScopeActions:            "actions",
	ScopeAttestations:       "attestations",
	ScopeChecks:             "checks",
	ScopeContents:           "contents",
	ScopeDeployments:        "deployments",
	ScopeDiscussions:        "discussions",
	ScopeIDToken:            "id-token",
	ScopeIssues:             "issues",
	ScopeModels:             "models",
	ScopePackages:           "packages",
	ScopePages:              "pages",
	ScopePullRequests:       "pull-requests",
	ScopeRepositoryProjects: "repository-projects",
	ScopeSecurityEvents:     "security-events",
	ScopeStatuses:           "statuses",
}

func (s Scope) String() string {
	if s >= 0 && s < scopeCount {
		return scopeNames[s]
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// ParseScope looks up a scope by its YAML key.
func ParseScope(name string) (Scope, bool) {
	for i, n := range scopeNames {
		if n == name {
			return Scope(i), true
		}
	}
	return 0, false
}

// Scopes lists every scope in declaration order.
func Scopes() []Scope {
	out := make([]Scope, scopeCount)
	for i := range out {
		out[i] = Scope(i)
	}
	return out
}

// Permissions holds a level for every scope.
type Permissions struct {
	levels [scopeCount]Level
}

// NewPermissions returns permissions with every scope set to NoAccess.
func NewPermissions() *Permissions {
	return &Permissions{}
}

// ReadAll grants read on every scope except id-token.
func ReadAll() *Permissions {
	p := &Permissions{}
	for i := range p.levels {
		p.levels[i] = Read
	}
	p.levels[ScopeIDToken] = NoAccess
	return p
}

// WriteAll grants write on every scope.
func WriteAll() *Permissions {
	p := &Permissions{}
	for i := range p.levels {
		p.levels[i] = Write
	}
	return p
}

func (p *Permissions) Level(s Scope) Level { return p.levels[s] }

func (p *Permissions) Set(s Scope, l Level) { p.levels[s] = l }

func (p *Permissions) Clone() *Permissions {
	c := *p
	return &c
}

// Exceeding returns every scope where p requests more than ceiling allows.
func (p *Permissions) Exceeding(ceiling *Permissions) []Scope {
	var out []Scope
	for i, l := range p.levels {
		if l > ceiling.levels[i] {
			out = append(out, Scope(i))
		}
	}
	return out
}

func (p *Permissions) String() string {
	var parts []string
	for i, l := range p.levels {
		if l != NoAccess {
			parts = append(parts, scopeNames[i]+": "+l.String())
		}
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON writes the scopes that grant access.
func (p *Permissions) MarshalJSON() ([]byte, error) {
	out := make(map[string]string)
	for i, l := range p.levels {
		if l != NoAccess {
			out[scopeNames[i]] = l.String()
		}
	}
	return json.Marshal(out)
}

// Default permission policies applied to called workflows that do not
// receive explicit permissions from their caller.
const (
	PolicyLimitedRead = "limited-read"
	PolicyWrite       = "write"
)

// PolicyFeatures toggles the conditional grants of the write policy.
type PolicyFeatures struct {
	IDToken bool
	Models  bool
}

// PolicyCeiling synthesises the maximum permissions for a named policy.
// trusted reports whether the callee belongs to the caller's owner.
func PolicyCeiling(policy string, trusted bool, features PolicyFeatures) (*Permissions, error) {
	switch policy {
	case PolicyLimitedRead:
		p := NewPermissions()
		p.Set(ScopeContents, Read)
		p.Set(ScopePackages, Read)
		return p, nil
	case PolicyWrite:
		p := WriteAll()
		if !trusted && !features.IDToken {
			p.Set(ScopeIDToken, NoAccess)
			p.Set(ScopeAttestations, NoAccess)
		}
		if !features.Models {
			p.Set(ScopeModels, NoAccess)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown permissions policy %q", policy)
}
