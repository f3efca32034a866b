package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedgate/internal/activity"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

const testPEM = "-----BEGIN PUBLIC KEY-----\nMCowBQYDK2VwAyEAGb9ECWmEzf6FQbrBZ9w7lshQhqowtrbLDFw4rXAxZuE=\n-----END PUBLIC KEY-----\n"

type actorServer struct {
	*httptest.Server
	hits     sync.Map
	docs     map[string]interface{}
	statuses map[string]int
	release  chan struct{}
}

func newActorServer(t *testing.T) *actorServer {
	t.Helper()
	s := &actorServer{
		docs:     make(map[string]interface{}),
		statuses: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *actorServer) handle(w http.ResponseWriter, r *http.Request) {
	counter, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int32))
	counter.(*atomic.Int32).Add(1)

	if s.release != nil {
		<-s.release
	}
	if status, ok := s.statuses[r.URL.Path]; ok {
		w.WriteHeader(status)
		return
	}
	doc, ok := s.docs[r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Header.Get("Accept") != AcceptHeader {
		w.WriteHeader(http.StatusNotAcceptable)
		return
	}
	w.Header().Set("Content-Type", "application/activity+json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *actorServer) iri(path string) string {
	return s.URL + path
}

func (s *actorServer) addActor(path string, withKey bool) *activity.Actor {
	actor := &activity.Actor{ID: s.iri(path), Type: "Person"}
	if withKey {
		actor.PublicKey = &activity.PublicKey{
			ID:           s.iri(path) + "#main-key",
			Owner:        s.iri(path),
			PublicKeyPem: testPEM,
		}
	}
	s.docs[path] = actor
	return actor
}

func (s *actorServer) hitCount(path string) int {
	counter, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return int(counter.(*atomic.Int32).Load())
}

func newTestResolver(t *testing.T, opts Options) *HTTPResolver {
	t.Helper()
	if opts.Cache == nil {
		cache, err := NewCache(context.Background(), time.Minute, 0, logger.NewNopLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = cache.Close() })
		opts.Cache = cache
	}
	return NewHTTPResolver(opts, logger.NewNopLogger())
}

func TestHTTPResolver_ResolveByKeyID(t *testing.T) {
	srv := newActorServer(t)
	want := srv.addActor("/users/alice", true)
	r := newTestResolver(t, Options{})

	got, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/alice#main-key")}, nil)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, testPEM, got.KeyPEM())

	// Second lookup is served from the cache
	_, err = r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/alice")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.hitCount("/users/alice"))
}

func TestHTTPResolver_EmbeddedActorIsRefetched(t *testing.T) {
	srv := newActorServer(t)
	srv.addActor("/users/bob", true)
	r := newTestResolver(t, Options{})

	// The embedded copy claims no key; the origin's document wins
	ref := activity.Reference{Object: &activity.Actor{ID: srv.iri("/users/bob")}}
	got, err := r.Resolve(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.True(t, got.HasKey())
	assert.Equal(t, 1, srv.hitCount("/users/bob"))
}

func TestHTTPResolver_KeyDocumentResolvesOwner(t *testing.T) {
	srv := newActorServer(t)
	srv.docs["/keys/1"] = &activity.Actor{
		ID:           srv.iri("/keys/1"),
		Owner:        srv.iri("/users/carol"),
		PublicKeyPem: testPEM,
	}
	srv.addActor("/users/carol", false)
	r := newTestResolver(t, Options{})

	got, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/keys/1")}, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.iri("/users/carol"), got.ID)
	require.True(t, got.HasKey())
	assert.Equal(t, srv.iri("/keys/1"), got.PublicKey.ID)
	assert.Equal(t, testPEM, got.KeyPEM())
}

func TestHTTPResolver_KeyDocumentOverridesOwnerMainKey(t *testing.T) {
	const secondPEM = "-----BEGIN PUBLIC KEY-----\nKEY-TWO\n-----END PUBLIC KEY-----\n"
	srv := newActorServer(t)
	srv.addActor("/users/alice", true)
	srv.docs["/keys/2"] = &activity.Actor{
		ID:           srv.iri("/keys/2"),
		Owner:        srv.iri("/users/alice"),
		PublicKeyPem: secondPEM,
	}
	r := newTestResolver(t, Options{})

	got, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/keys/2")}, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.iri("/users/alice"), got.ID)
	require.True(t, got.HasKey())
	assert.Equal(t, srv.iri("/keys/2"), got.PublicKey.ID)
	assert.Equal(t, secondPEM, got.KeyPEM())

	// The owner itself still resolves to its main key
	owner, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/alice")}, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.iri("/users/alice")+"#main-key", owner.PublicKey.ID)
	assert.Equal(t, testPEM, owner.KeyPEM())
}

func TestHTTPResolver_KeyDocumentOwnerMismatch(t *testing.T) {
	srv := newActorServer(t)
	srv.docs["/keys/3"] = &activity.Actor{
		ID:           srv.iri("/keys/3"),
		Owner:        srv.iri("/users/heidi"),
		PublicKeyPem: testPEM,
	}
	// heidi's document claims to be someone else
	srv.docs["/users/heidi"] = &activity.Actor{ID: srv.iri("/users/ivan"), Type: "Person"}
	r := newTestResolver(t, Options{})

	_, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/keys/3")}, nil)
	require.Error(t, err)
	assert.False(t, IsGone(err))
	assert.Contains(t, err.Error(), "key owner document has id")
}

func TestHTTPResolver_StoreHandle(t *testing.T) {
	srv := newActorServer(t)
	srv.addActor("/users/dave", true)

	defaultStore := NewMemoryStore()
	r := newTestResolver(t, Options{Store: defaultStore})

	other := NewMemoryStore()
	_, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/dave")}, other)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Len())
	assert.Equal(t, 0, defaultStore.Len())

	// A nil store falls back to the default store
	srv.addActor("/users/erin", true)
	_, err = r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/erin")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, defaultStore.Len())
	assert.Same(t, defaultStore, r.Store())
}

func TestHTTPResolver_StoreHitSkipsFetch(t *testing.T) {
	store := NewMemoryStore()
	actor := &activity.Actor{ID: "https://unreachable.invalid/users/frank"}
	require.NoError(t, store.Put(context.Background(), actor.ID, actor))

	r := newTestResolver(t, Options{Store: store})
	got, err := r.Resolve(context.Background(), activity.Reference{IRI: actor.ID + "#main-key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, actor.ID, got.ID)
}

func TestHTTPResolver_Errors(t *testing.T) {
	srv := newActorServer(t)
	srv.statuses["/users/gone"] = http.StatusGone
	srv.statuses["/users/broken"] = http.StatusInternalServerError
	srv.docs["/users/noid"] = map[string]string{"type": "Person"}

	tests := []struct {
		name       string
		ref        activity.Reference
		wantGone   bool
		wantStatus int
	}{
		{name: "gone", ref: activity.Reference{IRI: srv.iri("/users/gone")}, wantGone: true, wantStatus: http.StatusGone},
		{name: "server error", ref: activity.Reference{IRI: srv.iri("/users/broken")}, wantStatus: http.StatusInternalServerError},
		{name: "not found", ref: activity.Reference{IRI: srv.iri("/users/missing")}, wantStatus: http.StatusNotFound},
		{name: "document without id", ref: activity.Reference{IRI: srv.iri("/users/noid")}},
		{name: "empty reference", ref: activity.Reference{}},
		{name: "bad url", ref: activity.Reference{IRI: "://nope"}},
	}

	r := newTestResolver(t, Options{Tombstones: NewTombstones(time.Hour)})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.ref, nil)
			require.Error(t, err)

			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.wantStatus, re.StatusCode)
			assert.Equal(t, tt.wantGone, IsGone(err))
		})
	}
}

func TestHTTPResolver_TombstoneShortCircuits(t *testing.T) {
	srv := newActorServer(t)
	srv.statuses["/users/gone"] = http.StatusGone

	m, err := metrics.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	tombstones := NewTombstones(time.Hour)
	r := newTestResolver(t, Options{Tombstones: tombstones, Metrics: m})

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/gone")}, nil)
		assert.True(t, IsGone(err))
	}
	assert.Equal(t, 1, srv.hitCount("/users/gone"))
	assert.True(t, tombstones.Has(srv.iri("/users/gone")))
}

func TestHTTPResolver_ConcurrentLookupsShareFetch(t *testing.T) {
	srv := newActorServer(t)
	srv.addActor("/users/grace", true)
	srv.release = make(chan struct{})
	r := newTestResolver(t, Options{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/grace")}, nil)
			if err == nil && actor.ID != srv.iri("/users/grace") {
				err = fmt.Errorf("unexpected actor %s", actor.ID)
			}
			errs <- err
		}()
	}

	assert.Eventually(t, func() bool { return srv.hitCount("/users/grace") >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(srv.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, srv.hitCount("/users/grace"), 2)

	// The shared result was cached for later lookups
	hits := srv.hitCount("/users/grace")
	_, err := r.Resolve(context.Background(), activity.Reference{IRI: srv.iri("/users/grace")}, nil)
	require.NoError(t, err)
	assert.Equal(t, hits, srv.hitCount("/users/grace"))
}

func TestHTTPResolver_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	srv := newActorServer(t)
	srv.addActor("/users/judy", true)
	srv.release = make(chan struct{})
	r := newTestResolver(t, Options{})
	ref := activity.Reference{IRI: srv.iri("/users/judy")}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, ref, nil)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return srv.hitCount("/users/judy") == 1 }, time.Second, time.Millisecond)

	type result struct {
		actor *activity.Actor
		err   error
	}
	second := make(chan result, 1)
	go func() {
		actor, err := r.Resolve(context.Background(), ref, nil)
		second <- result{actor, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(srv.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, srv.iri("/users/judy"), res.actor.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, srv.hitCount("/users/judy"))
}

func TestStaticResolver(t *testing.T) {
	s := NewStaticResolver()
	s.AddActor(&activity.Actor{
		ID:        "https://example.com/users/a",
		PublicKey: &activity.PublicKey{ID: "https://example.com/keys/a", PublicKeyPem: testPEM},
	})
	s.AddStatus("https://example.com/users/gone", http.StatusGone)
	s.AddStatus("https://example.com/users/err", http.StatusBadGateway)

	got, err := s.Resolve(context.Background(), activity.Reference{IRI: "https://example.com/users/a#main-key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/users/a", got.ID)

	got, err = s.Resolve(context.Background(), activity.Reference{IRI: "https://example.com/keys/a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/users/a", got.ID)

	_, err = s.Resolve(context.Background(), activity.Reference{IRI: "https://example.com/users/gone"}, nil)
	assert.True(t, IsGone(err))

	_, err = s.Resolve(context.Background(), activity.Reference{IRI: "https://example.com/users/err"}, nil)
	assert.Error(t, err)
	assert.False(t, IsGone(err))

	_, err = s.Resolve(context.Background(), activity.Reference{IRI: "https://example.com/users/none"}, nil)
	assert.Error(t, err)

	assert.Equal(t, 5, s.Calls())
}

func TestFunc(t *testing.T) {
	var called bool
	var r Resolver = Func(func(_ context.Context, ref activity.Reference, _ Store) (*activity.Actor, error) {
		called = true
		return &activity.Actor{ID: ref.ID()}, nil
	})
	got, err := r.Resolve(context.Background(), activity.Reference{IRI: "https://x"}, nil)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "https://x", got.ID)
}

func TestError(t *testing.T) {
	wrapped := fmt.Errorf("lookup failed: %w", goneError("https://example.com/u"))
	assert.True(t, IsGone(wrapped))
	assert.True(t, errors.Is(wrapped, ErrGone))
	assert.False(t, IsGone(errors.New("gone")))
	assert.False(t, IsGone(nil))

	assert.Equal(t, "resolve https://x: status 404", (&Error{IRI: "https://x", StatusCode: 404}).Error())
	assert.Contains(t, (&Error{IRI: "https://x", Err: ErrEmptyReference}).Error(), "empty actor reference")
}
