// file: internal/federation/authenticator.go

package federation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fedgate/internal/activity"
	"fedgate/internal/httpsig"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
	"fedgate/internal/resolver"
)

// SignatureVerifier parses and checks HTTP signatures
type SignatureVerifier interface {
	Parse(r *http.Request) (*httpsig.Header, error)
	Verify(h *httpsig.Header, publicKeyPem string) (bool, error)
}

type httpSignatures struct{}

func (httpSignatures) Parse(r *http.Request) (*httpsig.Header, error) {
	return httpsig.Parse(r)
}

func (httpSignatures) Verify(h *httpsig.Header, publicKeyPem string) (bool, error) {
	return httpsig.Verify(h, publicKeyPem)
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithVerifier replaces the draft-cavage verifier
func WithVerifier(v SignatureVerifier) Option {
	return func(a *Authenticator) { a.verifier = v }
}

// WithStore sets the persistent actor store used on the signed path
func WithStore(s resolver.Store) Option {
	return func(a *Authenticator) { a.store = s }
}

// WithMetrics records outcomes and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// Authenticator decides whether an inbound delivery comes from the actor
// it claims. It holds no per-request state and is safe for concurrent use.
type Authenticator struct {
	resolver resolver.Resolver
	store    resolver.Store
	verifier SignatureVerifier
	mode     ModeGate
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewAuthenticator creates an authenticator resolving actors with res
func NewAuthenticator(res resolver.Resolver, mode ModeGate, log *logger.Logger, opts ...Option) *Authenticator {
	a := &Authenticator{
		resolver: res,
		verifier: httpSignatures{},
		mode:     mode,
		logger:   log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate produces exactly one Verification for req
func (a *Authenticator) Authenticate(ctx context.Context, req *InboundRequest) Verification {
	start := time.Now()

	v := Verification{Path: []State{StateStart}}
	if httpsig.HasSignature(req.Request) {
		v = a.signed(ctx, req, v)
	} else {
		v = a.unsigned(ctx, req, v)
	}

	a.metrics.IncSignatureVerification(v.Outcome.String())
	a.metrics.ObserveSignatureVerificationDuration(time.Since(start).Seconds())
	return v
}

func (a *Authenticator) unsigned(ctx context.Context, req *InboundRequest, v Verification) Verification {
	v.Path = append(v.Path, StateNoSignature)

	actor, err := a.resolve(ctx, activity.ActorFromActivity(req.Activity), nil)
	if err != nil {
		return a.fail(req, v, err)
	}
	v.Path = append(v.Path, StateResolved)
	v.Actor = actor

	switch DecideUnsigned(actor, a.mode.IsOpen()) {
	case UnsignedRequireSignature:
		a.logger.Info("rejecting unsigned delivery from actor with a public key",
			"actor", actor.ID,
			"type", req.activityType())
		v = settle(v, OutcomeMissingSignature, fmt.Errorf("actor %s publishes a key", actor.ID))
	case UnsignedDevBypass:
		a.logger.Warn("development bypass: accepting unsigned delivery from actor with a public key",
			"actor", actor.ID,
			"type", req.activityType())
		v.Outcome = OutcomeAllow
	default:
		v.Outcome = OutcomeAllow
	}
	return v
}

func (a *Authenticator) signed(ctx context.Context, req *InboundRequest, v Verification) Verification {
	v.Path = append(v.Path, StateSignature)

	header, err := a.verifier.Parse(req.Request)
	if err != nil {
		return a.fail(req, v, err)
	}
	v.KeyID = header.KeyID

	actor, err := a.resolve(ctx, activity.Reference{IRI: header.KeyID}, a.store)
	if err != nil {
		return a.fail(req, v, err)
	}
	v.Path = append(v.Path, StateResolved)
	v.Actor = actor

	if actor.PublicKey == nil {
		return a.invalid(v, fmt.Errorf("signer %s has no public key", actor.ID))
	}

	ok, err := a.verifier.Verify(header, actor.KeyPEM())
	if err != nil {
		if errors.Is(err, httpsig.ErrUnsupportedKey) {
			return a.invalid(v, err)
		}
		return a.fail(req, v, err)
	}
	v.Path = append(v.Path, StateVerified)

	if !ok {
		return a.invalid(v, fmt.Errorf("signature does not match key %s", header.KeyID))
	}
	v.Outcome = OutcomeAllow
	return v
}

func (a *Authenticator) resolve(ctx context.Context, ref activity.Reference, store resolver.Store) (*activity.Actor, error) {
	actor, err := a.resolver.Resolve(ctx, ref, store)
	if err == nil && actor == nil {
		err = fmt.Errorf("resolver returned no actor for %q", ref.ID())
	}
	return actor, err
}

func (a *Authenticator) invalid(v Verification, cause error) Verification {
	v = settle(v, OutcomeInvalidSignature, cause)
	a.logger.Info("rejecting delivery with invalid signature",
		"keyId", v.KeyID,
		"error", v.Err)
	return v
}

// settle records the outcome and wraps cause in the outcome's sentinel
func settle(v Verification, o Outcome, cause error) Verification {
	v.Outcome = o
	if sentinel := ErrorFor(o); sentinel != nil {
		v.Err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return v
}

// fail classifies a parsing, resolution or crypto failure
func (a *Authenticator) fail(req *InboundRequest, v Verification, err error) Verification {
	v.Path = append(v.Path, StateFailed)

	if req.Activity.IsDelete() && resolver.IsGone(err) {
		a.logger.Debug("tolerating delete from gone actor",
			"keyId", v.KeyID,
			"error", err)
		return settle(v, OutcomeTombstone, err)
	}

	a.logger.Error("failed to authenticate inbound delivery",
		"keyId", v.KeyID,
		"error", err,
		"body", string(req.Body))
	return settle(v, OutcomeInternalError, err)
}
