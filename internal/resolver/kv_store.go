// file: internal/resolver/kv_store.go

package resolver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"fedgate/internal/activity"
	"fedgate/internal/logger"
)

// KVStore persists resolved actors in a NATS JetStream key-value bucket so
// that every gateway replica shares them and restarts keep them.
type KVStore struct {
	kv     jetstream.KeyValue
	logger *logger.Logger
}

// NewKVStore wraps an opened KV bucket
func NewKVStore(kv jetstream.KeyValue, log *logger.Logger) *KVStore {
	return &KVStore{kv: kv, logger: log}
}

// kvKey maps an IRI onto the KV key alphabet ([-/_=.a-zA-Z0-9])
func kvKey(iri string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(iri))
}

func (s *KVStore) Get(ctx context.Context, iri string) (*activity.Actor, error) {
	entry, err := s.kv.Get(ctx, kvKey(iri))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read actor from KV bucket %s: %w", s.kv.Bucket(), err)
	}

	actor, err := activity.DecodeActor(entry.Value())
	if err != nil {
		s.logger.Warn("discarding undecodable actor from KV",
			"bucket", s.kv.Bucket(),
			"iri", iri,
			"error", err)
		return nil, ErrNotFound
	}
	return actor, nil
}

func (s *KVStore) Put(ctx context.Context, iri string, actor *activity.Actor) error {
	data, err := activity.EncodeActor(actor)
	if err != nil {
		return fmt.Errorf("failed to encode actor: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(iri), data); err != nil {
		return fmt.Errorf("failed to write actor to KV bucket %s: %w", s.kv.Bucket(), err)
	}
	return nil
}
