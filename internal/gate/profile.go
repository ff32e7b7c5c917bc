package gate

import "context"

// Profile represents a role with a set of permissions.
type Profile interface {
	ID() uint
	Name() string
	HasPermission(permission Permission) bool
	Permissions() Set
}

// ProfileResolver resolves a user to their profile.
// U is the user type (e.g., uint for userID).
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Profile, error)
}

// StaticProfile is an in-memory profile, used in tests and for built-in roles.
type StaticProfile struct {
	id    uint
	name  string
	perms Set
}

// NewStaticProfile creates a profile with the given permissions.
func NewStaticProfile(id uint, name string, permissions ...Permission) *StaticProfile {
	p := &StaticProfile{id: id, name: name, perms: make(Set, len(permissions))}
	for _, perm := range permissions {
		p.perms.Add(perm)
	}
	return p
}

func (p *StaticProfile) ID() uint         { return p.id }
func (p *StaticProfile) Name() string     { return p.name }
func (p *StaticProfile) Permissions() Set { return p.perms }

// HasPermission checks the requested permission with wildcard matching.
func (p *StaticProfile) HasPermission(requested Permission) bool {
	return p.perms.Allows(requested)
}

// StaticResolver is a simple in-memory resolver for testing.
type StaticResolver[U comparable] struct {
	profiles map[U]Profile
}

// NewStaticResolver creates a resolver with predefined user-profile mappings.
func NewStaticResolver[U comparable]() *StaticResolver[U] {
	return &StaticResolver[U]{profiles: make(map[U]Profile)}
}

// Set assigns a profile to a user.
func (r *StaticResolver[U]) Set(user U, profile Profile) {
	r.profiles[user] = profile
}

// Resolve returns the profile for the given user, or nil when none is assigned.
func (r *StaticResolver[U]) Resolve(_ context.Context, user U) (Profile, error) {
	return r.profiles[user], nil
}

// IsSuperAdmin reports whether the profile grants "*:*".
func IsSuperAdmin(p Profile) bool {
	return p != nil && p.HasPermission(PermissionSuperAdmin)
}
