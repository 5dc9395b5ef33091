package prompt

import (
	"fmt"
	"strings"
)

// Role is the party a piece of prompt matter is addressed from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

var allRoles = []Role{RoleSystem, RoleUser, RoleAssistant, RoleFunction}

func (r Role) bit() RoleSet {
	for i, x := range allRoles {
		if x == r {
			return 1 << i
		}
	}
	return 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.bit() != 0 }

// RoleSet is the set of roles a component may be rendered under.
// The zero value is the empty set; AnyRole allows every role.
type RoleSet uint8

// AnyRole places no restriction on the role.
const AnyRole RoleSet = 1<<4 - 1

// RolesOf builds a set from the given roles.
func RolesOf(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= r.bit()
	}
	return s
}

func (s RoleSet) Contains(r Role) bool { return s&r.bit() != 0 }

func (s RoleSet) Intersect(o RoleSet) RoleSet { return s & o }

// Single returns the only role in s, if s holds exactly one.
func (s RoleSet) Single() (Role, bool) {
	var found Role
	n := 0
	for _, r := range allRoles {
		if s.Contains(r) {
			found = r
			n++
		}
	}
	return found, n == 1
}

func (s RoleSet) Roles() []Role {
	var out []Role
	for _, r := range allRoles {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	if s == AnyRole {
		return "any"
	}
	parts := make([]string, 0, 4)
	for _, r := range s.Roles() {
		parts = append(parts, string(r))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func mergeRoles(a, b RoleSet) (RoleSet, error) {
	out := a.Intersect(b)
	if out == 0 {
		return 0, fmt.Errorf("%w: roles %s and %s do not overlap", ErrConflictingContext, a, b)
	}
	return out, nil
}

// CompletionType distinguishes chat completions from raw text completions.
type CompletionType string

const (
	CompletionTypeUnspecified CompletionType = ""
	CompletionTypeChat        CompletionType = "chat"
	CompletionTypeText        CompletionType = "text"
)
