package gate

import (
	"sort"
	"strings"
)

// Permission is a "resource:action" code such as "rfq:approve" or "ayarlar:read".
type Permission string

// Wildcards for super permissions
const (
	WildcardAll          = "*"
	PermissionSuperAdmin Permission = "*:*"
)

// NewPermission creates a permission from resource type and action.
func NewPermission(resourceType string, action Action) Permission {
	return Permission(resourceType + ":" + string(action))
}

// ParsePermission normalises and validates a code. Both halves must be non-empty
// and free of whitespace.
func ParsePermission(code string) (Permission, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	res, act, ok := strings.Cut(code, ":")
	if !ok || res == "" || act == "" || strings.ContainsAny(code, " \t") || strings.Contains(act, ":") {
		return "", ErrInvalidCode
	}
	return NewPermission(res, Action(act)), nil
}

// Parse splits a permission into resource type and action.
func (p Permission) Parse() (resourceType string, action Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return "", ""
	}
	return res, Action(act)
}

// Matches checks if this permission matches a requested permission.
// "*:*" matches all, "rfq:*" matches every rfq action.
func (p Permission) Matches(requested Permission) bool {
	if p == PermissionSuperAdmin || p == requested {
		return true
	}
	res, act := p.Parse()
	reqRes, _ := requested.Parse()
	return res == reqRes && string(act) == WildcardAll
}

// Set is the canonical representation of what a profile grants.
type Set map[Permission]struct{}

// NewSet builds a set from codes, skipping invalid ones.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		if p, err := ParsePermission(c); err == nil {
			s[p] = struct{}{}
		}
	}
	return s
}

// Add inserts p.
func (s Set) Add(p Permission) { s[p] = struct{}{} }

// Allows reports whether any member matches requested.
func (s Set) Allows(requested Permission) bool {
	for p := range s {
		if p.Matches(requested) {
			return true
		}
	}
	return false
}

// Codes returns the members sorted.
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
