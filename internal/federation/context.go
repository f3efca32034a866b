// file: internal/federation/context.go

package federation

import (
	"context"

	"fedgate/internal/activity"
)

type contextKey int

const (
	actorKey contextKey = iota
	requestKey
	verificationKey
)

// WithVerification attaches an authenticated delivery to ctx
func WithVerification(ctx context.Context, req *InboundRequest, v Verification) context.Context {
	ctx = context.WithValue(ctx, verificationKey, v)
	ctx = context.WithValue(ctx, requestKey, req)
	if v.Actor != nil {
		ctx = context.WithValue(ctx, actorKey, v.Actor)
	}
	return ctx
}

// ActorFromContext returns the authenticated signer or exempt claimed actor
func ActorFromContext(ctx context.Context) (*activity.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(*activity.Actor)
	return actor, ok
}

// RequestFromContext returns the inbound request the middleware decoded
func RequestFromContext(ctx context.Context) (*InboundRequest, bool) {
	req, ok := ctx.Value(requestKey).(*InboundRequest)
	return req, ok
}

// VerificationFromContext returns the verification that allowed the request
func VerificationFromContext(ctx context.Context) (Verification, bool) {
	v, ok := ctx.Value(verificationKey).(Verification)
	return v, ok
}
