// Package gate implements "resource:action" authorization.
//
// A Gate resolves the acting user's profile, checks the requested permission
// against it (with "*:*" and "resource:*" wildcards), then runs the policy
// registered for the resource type, if any. The package has no dependency on
// domain models; U is the user key type (uint user ids in this application).
package gate

import "context"

// Gate combines profile permissions with per-resource policies.
type Gate[U comparable] struct {
	resolver ProfileResolver[U]
	policies map[string]Policy[U]
}

// New creates a gate with the given profile resolver.
func New[U comparable](resolver ProfileResolver[U]) *Gate[U] {
	return &Gate[U]{
		resolver: resolver,
		policies: make(map[string]Policy[U]),
	}
}

// Register adds a resource-specific policy. Overwrites any existing one.
func (g *Gate[U]) Register(resourceType string, p Policy[U]) {
	g.policies[resourceType] = p
}

// Authorize checks, in order:
//  1. user is non-zero (ErrUnauthenticated)
//  2. the user's profile grants resourceType:action (ErrForbidden)
//  3. the registered policy accepts resource, when both exist
func (g *Gate[U]) Authorize(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	if err := g.AuthorizeProfile(ctx, user, action, resourceType); err != nil {
		return err
	}
	return g.AuthorizeResource(ctx, user, action, resourceType, resource)
}

// AuthorizeProfile checks only the profile permission.
func (g *Gate[U]) AuthorizeProfile(ctx context.Context, user U, action Action, resourceType string) error {
	var zero U
	if user == zero {
		return ErrUnauthenticated
	}
	profile, err := g.resolver.Resolve(ctx, user)
	if err != nil || profile == nil {
		return ErrForbidden
	}
	if !profile.HasPermission(NewPermission(resourceType, action)) {
		return ErrForbidden
	}
	return nil
}

// AuthorizeResource runs only the resource policy. Resources without a
// registered policy, and nil resources, are allowed.
func (g *Gate[U]) AuthorizeResource(ctx context.Context, user U, action Action, resourceType string, resource any) error {
	var zero U
	if user == zero {
		return ErrUnauthenticated
	}
	if resource == nil {
		return nil
	}
	p, ok := g.policies[resourceType]
	if !ok {
		return nil
	}
	return p.Check(ctx, user, action, resource)
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate[U]) Can(ctx context.Context, user U, action Action, resourceType string, resource any) bool {
	return g.Authorize(ctx, user, action, resourceType, resource) == nil
}

// Profile returns the resolved profile for user, nil when none.
func (g *Gate[U]) Profile(ctx context.Context, user U) (Profile, error) {
	return g.resolver.Resolve(ctx, user)
}
