package gate

import "context"

// Policy adds resource-level rules on top of profile permissions.
// Check returns nil to allow, or the error explaining the denial.
type Policy[U any] interface {
	Check(ctx context.Context, user U, action Action, resource any) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc[U any] func(ctx context.Context, user U, action Action, resource any) error

func (f PolicyFunc[U]) Check(ctx context.Context, user U, action Action, resource any) error {
	return f(ctx, user, action, resource)
}
