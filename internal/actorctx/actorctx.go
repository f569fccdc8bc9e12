// Package actorctx carries the authenticated user identity through a
// context.Context. No globals, no thread-locals: identity is passed
// explicitly down the call chain.
package actorctx

import (
	"context"

	"github.com/calder-labs/webbase/internal/domain/user"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(user.Identity)

	return id, ok && id.ID != 0
}
