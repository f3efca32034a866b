//file: internal/broker/nats.go

package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"

	"fedgate/config"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

// kvOperationTimeout bounds bucket lookup and creation at startup
const kvOperationTimeout = 10 * time.Second

// NATSBroker owns the connection to the external NATS servers, the
// JetStream context used to publish accepted deliveries and the KV bucket
// backing the actor store.
type NATSBroker struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
	config  *config.NATSConfig

	natsConn  *nats.Conn
	jetStream jetstream.JetStream
}

// NewNATSBroker connects to NATS and creates the JetStream context
func NewNATSBroker(cfg *config.NATSConfig, log *logger.Logger, m *metrics.Metrics) (*NATSBroker, error) {
	broker := &NATSBroker{
		logger:  log,
		metrics: m,
		config:  cfg,
	}

	if err := broker.initializeNATSConnection(); err != nil {
		return nil, fmt.Errorf("failed to initialize NATS connection: %w", err)
	}

	return broker, nil
}

// initializeNATSConnection establishes the core NATS connection and JetStream context
func (b *NATSBroker) initializeNATSConnection() error {
	b.logger.Info("establishing NATS connection", "urls", b.config.URLs)

	natsOptions, err := b.buildNATSOptions()
	if err != nil {
		return fmt.Errorf("failed to build NATS options: %w", err)
	}

	b.natsConn, err = nats.Connect(b.serverURLs(), natsOptions...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b.metrics.SetNATSConnectionStatus(true)

	b.jetStream, err = jetstream.New(b.natsConn)
	if err != nil {
		b.natsConn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	b.logger.Info("NATS connection established successfully",
		"connectedUrl", b.natsConn.ConnectedUrl())
	return nil
}

// buildNATSOptions creates NATS connection options with authentication, TLS
// and connection state handlers.
func (b *NATSBroker) buildNATSOptions() ([]nats.Option, error) {
	natsOptions := []nats.Option{
		nats.Name("fedgate"),
		nats.ReconnectWait(b.config.ReconnectWait),
		nats.MaxReconnects(b.config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.metrics.SetNATSConnectionStatus(false)
			b.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.metrics.SetNATSConnectionStatus(true)
			b.metrics.IncNATSReconnects()
			b.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			b.metrics.SetNATSConnectionStatus(false)
			b.logger.Debug("NATS connection closed")
		}),
	}

	// Authentication options (mutually exclusive)
	switch {
	case b.config.CredsFile != "":
		b.logger.Info("using NATS JWT authentication with creds file", "credsFile", b.config.CredsFile)
		natsOptions = append(natsOptions, nats.UserCredentials(b.config.CredsFile))
	case b.config.NKeySeed != "":
		opt, publicKey, err := nkeyOption(b.config.NKeySeed)
		if err != nil {
			return nil, err
		}
		b.logger.Info("using NATS NKey authentication", "publicKey", publicKey)
		natsOptions = append(natsOptions, opt)
	case b.config.Token != "":
		b.logger.Info("using NATS token authentication")
		natsOptions = append(natsOptions, nats.Token(b.config.Token))
	case b.config.Username != "":
		b.logger.Info("using NATS username/password authentication", "username", b.config.Username)
		natsOptions = append(natsOptions, nats.UserInfo(b.config.Username, b.config.Password))
	}

	tlsConfig, err := CreateTLSConfig(b.config.TLS, b.logger)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		natsOptions = append(natsOptions, nats.Secure(tlsConfig))
	}

	return natsOptions, nil
}

// nkeyOption signs the server nonce with the user seed
func nkeyOption(seed string) (nats.Option, string, error) {
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, "", fmt.Errorf("invalid NATS nkey seed: %w", err)
	}
	publicKey, err := kp.PublicKey()
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive NATS nkey public key: %w", err)
	}
	if !nkeys.IsValidPublicUserKey(publicKey) {
		return nil, "", fmt.Errorf("NATS nkey seed is not a user seed")
	}
	return nats.Nkey(publicKey, kp.Sign), publicKey, nil
}

// KeyValue opens bucket, creating it when it does not exist yet
func (b *NATSBroker) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	ctx, cancel := context.WithTimeout(ctx, kvOperationTimeout)
	defer cancel()

	kv, err := b.jetStream.KeyValue(ctx, bucket)
	if err == nil {
		b.logger.Debug("connected to KV bucket", "bucket", bucket)
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to access KV bucket '%s': %w", bucket, err)
	}

	b.logger.Info("KV bucket not found, creating", "bucket", bucket, "ttl", ttl)
	kv, err = b.jetStream.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "fedgate resolved actor documents",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket '%s': %w", bucket, err)
	}
	return kv, nil
}

// JetStream returns the JetStream context
func (b *NATSBroker) JetStream() jetstream.JetStream {
	return b.jetStream
}

// Conn returns the underlying NATS connection
func (b *NATSBroker) Conn() *nats.Conn {
	return b.natsConn
}

// Close drains the connection so in-flight publishes are flushed
func (b *NATSBroker) Close() error {
	b.logger.Info("closing NATS broker connection")

	if b.natsConn == nil || b.natsConn.IsClosed() {
		return nil
	}
	if err := b.natsConn.Drain(); err != nil {
		b.natsConn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	b.logger.Info("successfully closed NATS broker connection")
	return nil
}

// serverURLs joins the configured URLs into the comma separated form
// nats.Connect expects.
func (b *NATSBroker) serverURLs() string {
	if len(b.config.URLs) == 0 {
		return nats.DefaultURL
	}
	return strings.Join(b.config.URLs, ",")
}
