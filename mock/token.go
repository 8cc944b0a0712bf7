package mock

import (
	"context"

	"github.com/fwojciec/phototag"
)

// Interface compliance check.
var _ phototag.TokenSource = (*TokenSource)(nil)

// TokenSource is a test double for phototag.TokenSource.
// AccessTokenFn panics when nil to catch missing setup.
type TokenSource struct {
	AccessTokenFn func(ctx context.Context) (string, error)
}

// AccessToken delegates to AccessTokenFn.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	return s.AccessTokenFn(ctx)
}
