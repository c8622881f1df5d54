package api

import (
	"context"

	"github.com/savkin/prefeed/app/users"
)

type claimsKey struct{}

func claimsFromContext(ctx context.Context) (users.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(users.Claims)
	return c, ok
}

func contextWithClaims(ctx context.Context, c users.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}
