package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrForbidden is returned by Require when the caller lacks every requested scope.
var ErrForbidden = errors.New("insufficient scope")

type claimsKey struct{}

// WithClaims returns ctx carrying claims. A nil claims leaves ctx unchanged.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext retrieves claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// Require returns the caller's claims when they hold any of scopes; with no
// scopes any authenticated caller passes. It fails with ErrMissingToken when
// ctx carries no claims and with ErrForbidden naming the first scope otherwise.
func Require(ctx context.Context, scopes ...string) (*Claims, error) {
	claims, ok := FromContext(ctx)
	if !ok {
		return nil, ErrMissingToken
	}
	if len(scopes) > 0 && !claims.HasAnyScope(scopes...) {
		return nil, fmt.Errorf("%w: scope %s required", ErrForbidden, scopes[0])
	}
	return claims, nil
}
