package models

import (
	"fmt"
	"strings"
)

// ScopeKind selects which part of the roll a run covers.
type ScopeKind string

const (
	ScopeAll      ScopeKind = "all"
	ScopeDistrict ScopeKind = "district"
	ScopeState    ScopeKind = "state"
)

// Scope identifies a population slice. Value is empty for ScopeAll.
type Scope struct {
	Kind  ScopeKind
	Value string
}

// AllScope is the whole roll.
var AllScope = Scope{Kind: ScopeAll}

// String renders the scope as its persisted key, e.g. "district:pune".
func (s Scope) String() string {
	if s.Kind == ScopeAll || s.Kind == "" {
		return string(ScopeAll)
	}
	return fmt.Sprintf("%s:%s", s.Kind, strings.ToLower(s.Value))
}

// Matches reports whether a record falls inside the scope.
func (s Scope) Matches(r IdentityRecord) bool {
	switch s.Kind {
	case ScopeDistrict:
		return strings.EqualFold(strings.TrimSpace(r.Address.District), s.Value)
	case ScopeState:
		return strings.EqualFold(strings.TrimSpace(r.Address.State), s.Value)
	default:
		return true
	}
}

// ParseScope accepts "all", "district:<name>" or "state:<name>".
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, string(ScopeAll)) {
		return AllScope, nil
	}
	kind, value, ok := strings.Cut(raw, ":")
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return Scope{}, fmt.Errorf("scope %q: expected kind:value", raw)
	}
	switch ScopeKind(strings.ToLower(kind)) {
	case ScopeDistrict:
		return Scope{Kind: ScopeDistrict, Value: value}, nil
	case ScopeState:
		return Scope{Kind: ScopeState, Value: value}, nil
	default:
		return Scope{}, fmt.Errorf("scope %q: unknown kind %q", raw, kind)
	}
}
