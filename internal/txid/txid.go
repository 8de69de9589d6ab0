// Package txid carries the per-operation transaction identifier used to
// correlate log lines, downstream calls and sync events. The id is a value on
// the operation's context, never process-global state: it is bound once at
// ingress (or when a background run starts) and dies with the context.
package txid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the transaction id across process
// boundaries. Read on ingress, written on every response and outbound call.
const Header = "X-Transaction-Id"

type ctxKey struct{}

// With binds the transaction id to the context. Blank ids are ignored.
func With(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// From returns the transaction id bound to the context, if any.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(ctxKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Ensure returns a context that is guaranteed to carry a transaction id,
// generating a fresh one when none is bound yet.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := From(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return With(ctx, id), id
}
