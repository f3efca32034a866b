// file: internal/resolver/resolver.go

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"fedgate/internal/activity"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

const (
	// AcceptHeader is sent on every actor fetch
	AcceptHeader = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	// MaxDocumentBytes bounds the size of a fetched actor or key document
	MaxDocumentBytes = 1 << 20
)

// Resolver turns an actor reference or key ID into an actor document. A
// nil store selects the resolver's default store.
type Resolver interface {
	Resolve(ctx context.Context, ref activity.Reference, store Store) (*activity.Actor, error)
}

// Func adapts a plain function to the Resolver interface
type Func func(ctx context.Context, ref activity.Reference, store Store) (*activity.Actor, error)

func (f Func) Resolve(ctx context.Context, ref activity.Reference, store Store) (*activity.Actor, error) {
	return f(ctx, ref, store)
}

// Options configures an HTTPResolver. Every field is optional.
type Options struct {
	Client     *http.Client
	UserAgent  string
	Cache      *Cache
	Store      Store
	Tombstones *Tombstones
	Metrics    *metrics.Metrics
}

// HTTPResolver resolves actors through the cache, then the store, then a
// GET against the actor's origin. Concurrent lookups of the same IRI share
// one fetch.
type HTTPResolver struct {
	client     *http.Client
	userAgent  string
	cache      *Cache
	store      Store
	tombstones *Tombstones
	group      singleflight.Group
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewHTTPResolver creates a resolver from opts
func NewHTTPResolver(opts Options, log *logger.Logger) *HTTPResolver {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "fedgate/1.0"
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}

	return &HTTPResolver{
		client:     client,
		userAgent:  userAgent,
		cache:      opts.Cache,
		store:      store,
		tombstones: opts.Tombstones,
		logger:     log,
		metrics:    opts.Metrics,
	}
}

// Store returns the resolver's default store
func (r *HTTPResolver) Store() Store {
	return r.store
}

// Resolve looks up the actor named by ref. Embedded actor objects are only
// used for their id; the authoritative document is always the one served
// by the actor's origin.
func (r *HTTPResolver) Resolve(ctx context.Context, ref activity.Reference, store Store) (*activity.Actor, error) {
	if ref.IsZero() {
		return nil, &Error{Err: ErrEmptyReference}
	}
	id := activity.StripFragment(ref.ID())
	if id == "" {
		return nil, &Error{Err: ErrEmptyReference}
	}
	if ref.IsEmbedded() {
		r.logger.Debug("ignoring embedded actor object, resolving by id", "iri", id)
	}
	if store == nil {
		store = r.store
	}

	if r.tombstones.Has(id) {
		r.metrics.IncActorResolution("tombstone", "gone")
		return nil, goneError(id)
	}

	if actor, ok := r.cache.Get(id); ok {
		r.metrics.IncActorResolution("cache", "ok")
		return actor, nil
	}

	actor, err := store.Get(ctx, id)
	switch {
	case err == nil:
		r.metrics.IncActorResolution("store", "ok")
		r.cache.Set(id, actor)
		return actor, nil
	case !errors.Is(err, ErrNotFound):
		r.logger.Warn("actor store lookup failed, fetching from origin", "iri", id, "error", err)
	}

	// The shared fetch outlives any single caller; each caller stops
	// waiting when its own context ends.
	ch := r.group.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout())
		defer cancel()
		return r.fetchAndStore(fetchCtx, id, store)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		r.metrics.IncActorResolution("remote", "error")
		return nil, &Error{IRI: id, Err: ctx.Err()}
	}
	if res.Err != nil {
		result := "error"
		if IsGone(res.Err) {
			result = "gone"
		}
		r.metrics.IncActorResolution("remote", result)
		return nil, res.Err
	}
	r.metrics.IncActorResolution("remote", "ok")
	return res.Val.(*activity.Actor), nil
}

// fetchTimeout bounds one shared fetch: a key document plus its owner
func (r *HTTPResolver) fetchTimeout() time.Duration {
	timeout := r.client.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return 2 * timeout
}

// fetchAndStore runs once per flight and persists what it fetched
func (r *HTTPResolver) fetchAndStore(ctx context.Context, id string, store Store) (*activity.Actor, error) {
	actor, err := r.fetchActor(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(id, actor)
	if err := store.Put(ctx, id, actor); err != nil {
		r.logger.Warn("failed to persist resolved actor", "iri", id, "error", err)
	}
	r.metrics.SetActorCacheEntries(float64(r.cache.Len()))
	return actor, nil
}

// fetchActor fetches id and, when it is a standalone key document, the
// key's owner. The returned actor always carries the key that id names,
// even when the owner advertises a different main key.
func (r *HTTPResolver) fetchActor(ctx context.Context, id string) (*activity.Actor, error) {
	doc, err := r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsKeyDocument() {
		return doc, nil
	}

	ownerID := activity.StripFragment(doc.Owner)
	if r.tombstones.Has(ownerID) {
		return nil, goneError(ownerID)
	}
	owner, err := r.fetch(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.IsKeyDocument() {
		return nil, &Error{IRI: ownerID, Err: fmt.Errorf("key owner %s is itself a key document", ownerID)}
	}
	if activity.StripFragment(owner.ID) != ownerID {
		return nil, &Error{IRI: ownerID, Err: fmt.Errorf("key owner document has id %q", owner.ID)}
	}
	if owner.HasKey() && owner.PublicKey.ID == doc.ID {
		return owner, nil
	}

	signer := *owner
	signer.PublicKey = &activity.PublicKey{
		ID:           doc.ID,
		Owner:        owner.ID,
		PublicKeyPem: doc.PublicKeyPem,
	}
	return &signer, nil
}

func (r *HTTPResolver) fetch(ctx context.Context, iri string) (*activity.Actor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return nil, &Error{IRI: iri, Err: err}
	}
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &Error{IRI: iri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		r.tombstones.Add(iri)
		r.metrics.SetTombstonesTracked(float64(r.tombstones.Len()))
		r.cache.Delete(iri)
		r.logger.Debug("actor is gone", "iri", iri)
		return nil, goneError(iri)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{IRI: iri, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentBytes))
	if err != nil {
		return nil, &Error{IRI: iri, Err: fmt.Errorf("failed to read document: %w", err)}
	}

	doc, err := activity.DecodeActor(body)
	if err != nil {
		return nil, &Error{IRI: iri, Err: err}
	}
	return doc, nil
}
