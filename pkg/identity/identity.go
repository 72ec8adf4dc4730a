// Package identity carries the caller identity recorded as revision creator.
package identity

import "context"

type contextKey struct{}

// WithUser returns a context carrying the user name.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// User returns the user name stored in ctx, or "".
func User(ctx context.Context) string {
	u, _ := ctx.Value(contextKey{}).(string)
	return u
}

// Provider supplies the creator identity of a request.
type Provider interface {
	Creator(ctx context.Context) string
}

// ContextProvider reads the user from the context, falling back to Default.
type ContextProvider struct {
	Default string
}

// Creator returns the context user or the default.
func (p ContextProvider) Creator(ctx context.Context) string {
	if u := User(ctx); u != "" {
		return u
	}
	return p.Default
}

// Verify interface compliance.
var _ Provider = ContextProvider{}
