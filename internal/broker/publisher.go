//file: internal/broker/publisher.go

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"fedgate/internal/metrics"
)

const (
	PublishModeJetStream = "jetstream"
	PublishModeCore      = "core"
)

// Publisher publishes accepted deliveries either through JetStream, waiting
// for the stream ack, or as plain core NATS messages.
type Publisher struct {
	conn       *nats.Conn
	jetStream  jetstream.JetStream
	mode       string
	ackTimeout time.Duration
	metrics    *metrics.Metrics
}

// NewPublisher creates a publisher on the broker's connection
func (b *NATSBroker) NewPublisher(mode string, ackTimeout time.Duration) *Publisher {
	return &Publisher{
		conn:       b.natsConn,
		jetStream:  b.jetStream,
		mode:       mode,
		ackTimeout: ackTimeout,
		metrics:    b.metrics,
	}
}

// PublishMsg publishes msg and records the result
func (p *Publisher) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	err := p.publish(ctx, msg)
	if err != nil {
		p.metrics.IncNATSPublish("error")
		return err
	}
	p.metrics.IncNATSPublish("success")
	return nil
}

func (p *Publisher) publish(ctx context.Context, msg *nats.Msg) error {
	if p.mode == PublishModeCore {
		return p.conn.PublishMsg(msg)
	}

	ctx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()

	ackF, err := p.jetStream.PublishMsgAsync(msg)
	if err != nil {
		return fmt.Errorf("jetstream async publish failed: %w", err)
	}

	select {
	case <-ackF.Ok():
		return nil
	case err := <-ackF.Err():
		return fmt.Errorf("jetstream publish failed: %w", err)
	case <-ctx.Done():
		return fmt.Errorf("publish timeout: %w", ctx.Err())
	}
}
