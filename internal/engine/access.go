package engine

import (
	"strings"
	"sync"
)

// AccessControl is the owner-vs-player gate consulted by the shoe registry
// and the game manager. Identities are hex account addresses compared
// case-insensitively.
type AccessControl struct {
	mu       sync.RWMutex
	operator string
	arbiters map[string]struct{}
}

func NewAccessControl(operator string) *AccessControl {
	return &AccessControl{
		operator: normalizeAddr(operator),
		arbiters: make(map[string]struct{}),
	}
}

func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// RequireOperator rejects any caller other than the configured operator.
func (a *AccessControl) RequireOperator(caller string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if normalizeAddr(caller) != a.operator || a.operator == "" {
		return ErrUnauthorized
	}
	return nil
}

// AddArbiter registers an identity allowed to report outcomes on behalf of
// players. Operator only.
func (a *AccessControl) AddArbiter(caller, arbiter string) error {
	if err := a.RequireOperator(caller); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.arbiters[normalizeAddr(arbiter)] = struct{}{}
	return nil
}

// IsArbiter reports whether the caller may finish games it does not own.
func (a *AccessControl) IsArbiter(caller string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.arbiters[normalizeAddr(caller)]
	return ok
}

// SameIdentity compares two addresses under normalization.
func SameIdentity(a, b string) bool {
	return normalizeAddr(a) == normalizeAddr(b) && normalizeAddr(a) != ""
}
