// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/port/messagequeue"
	"github.com/wardenhq/warden/internal/resilience"
)

const (
	streamName = "WARDEN"

	headerRequestID  = "Warden-Request-Id"
	headerRetryCount = "Warden-Retry-Count"

	// maxRetries is the number of redeliveries before a message moves
	// to its dead-letter subject (subject + ".dlq").
	maxRetries = 3

	// Publish failures trip the breaker after breakerMaxFailures in a
	// row; it retries after breakerTimeout. Announcements are
	// best-effort, so fast-failing beats stacking timeouts when the
	// broker is down.
	breakerMaxFailures = 5
	breakerTimeout     = 10 * time.Second
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	breaker *resilience.Breaker
}

// Connect establishes a connection to NATS and ensures the JetStream
// stream capturing all governance subjects exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"governance.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{
		nc:      nc,
		js:      js,
		breaker: resilience.NewBreaker("jetstream publish", breakerMaxFailures, breakerTimeout),
	}, nil
}

// Publish sends a message to the given subject through the circuit
// breaker. The request ID from the context, if any, travels in a header
// so subscribers can correlate logs.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	err := q.breaker.Execute(func() error {
		_, err := q.js.PublishMsg(ctx, msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
// Messages failing schema validation go straight to the DLQ; handler
// failures are redelivered up to maxRetries times first.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		msgCtx := context.Background()
		hdrs := msg.Headers()
		if reqID := hdrs.Get(headerRequestID); reqID != "" {
			msgCtx = logger.WithRequestID(msgCtx, reqID)
		}

		if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
			slog.Error("message validation failed, moving to DLQ",
				"subject", msg.Subject(), "error", err)
			q.moveToDLQ(msgCtx, msg, hdrs)
			return
		}

		if err := handler(msgCtx, msg.Subject(), msg.Data()); err != nil {
			retries := retryCount(msg, hdrs)
			slog.Error("message handler failed",
				"subject", msg.Subject(), "error", err, "retries", retries)
			if retries >= maxRetries {
				q.moveToDLQ(msgCtx, msg, hdrs)
				return
			}
			if nakErr := msg.Nak(); nakErr != nil {
				slog.Error("nats nak failed", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// moveToDLQ republishes a poison message to subject + ".dlq" and acks
// the original so it stops redelivering.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg, hdrs nats.Header) {
	dlq := &nats.Msg{
		Subject: msg.Subject() + ".dlq",
		Data:    msg.Data(),
		Header:  nats.Header{},
	}
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		dlq.Header.Set(headerRequestID, reqID)
	}
	if _, err := q.js.PublishMsg(ctx, dlq); err != nil {
		slog.Error("DLQ publish failed", "subject", dlq.Subject, "error", err)
		// Leave the message unacked so it redelivers rather than vanishing.
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Error("nats ack after DLQ failed", "error", err)
	}
}

// retryCount reports how many times this message has already failed.
// The header takes precedence so publishers can mark pre-exhausted
// messages; otherwise JetStream's delivery counter is used (first
// delivery counts as zero).
func retryCount(msg jetstream.Msg, hdrs nats.Header) int {
	if n, err := strconv.Atoi(hdrs.Get(headerRetryCount)); err == nil {
		return n
	}
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		return int(meta.NumDelivered) - 1
	}
	return 0
}

// KeyValue returns a JetStream key-value bucket, creating it with the
// given TTL if it does not exist.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains subscriptions and closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}
