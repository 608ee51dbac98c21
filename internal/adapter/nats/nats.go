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

	"github.com/atriumlabs/atrium/internal/logger"
	"github.com/atriumlabs/atrium/internal/port/messagequeue"
)

const streamName = "TENANTS"

const (
	headerRequestID  = "Request-Id"
	headerRetryCount = "Retry-Count"
)

// maxRetries is how often a failing message is redelivered before it moves
// to the dead letter subject.
const maxRetries = 3

// publishTimeout bounds internal publishes (requeue, DLQ) that run outside
// the caller's context.
const publishTimeout = 5 * time.Second

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the tenant stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// The single wildcard also captures the per-subject .dlq dead letter
	// subjects, so failed messages stay inside the same stream.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{messagequeue.SubjectTenantsAll},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject, carrying the request ID from
// the context as a header so consumers can correlate their logs.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject. Payloads
// are validated before the handler runs; messages that can never succeed go
// straight to the dead letter subject, transient handler failures are retried
// up to maxRetries times.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handleMsg(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handleMsg(msg jetstream.Msg, handler messagequeue.Handler) {
	subject := msg.Subject()
	data := msg.Data()
	hdrs := msg.Headers()

	// A malformed payload cannot succeed on redelivery, skip retries.
	if err := messagequeue.Validate(subject, data); err != nil {
		slog.Error("message validation failed", "subject", subject, "error", err)
		q.moveToDLQ(subject, data, hdrs)
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "subject", subject, "error", ackErr)
		}
		return
	}

	ctx := context.Background()
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		ctx = logger.WithRequestID(ctx, reqID)
	}

	if err := handler(ctx, subject, data); err != nil {
		retries := retryCount(hdrs)
		if retries >= maxRetries {
			slog.Error("message retries exhausted",
				"subject", subject, "retries", retries, "error", err)
			q.moveToDLQ(subject, data, hdrs)
		} else {
			slog.Warn("message handler failed, requeueing",
				"subject", subject, "attempt", retries+1, "error", err)
			q.requeue(subject, data, hdrs, retries+1)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "subject", subject, "error", ackErr)
		}
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "subject", subject, "error", ackErr)
	}
}

// requeue republishes a failed message with an incremented retry counter.
// Redelivery via republish keeps the counter in the message itself, which a
// plain Nak would not.
func (q *Queue) requeue(subject string, data []byte, hdrs nats.Header, attempt int) {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	msg.Header.Set(headerRetryCount, strconv.Itoa(attempt))

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		slog.Error("nats requeue failed", "subject", subject, "error", err)
	}
}

// moveToDLQ parks a message on its dead letter subject for operator triage.
func (q *Queue) moveToDLQ(subject string, data []byte, hdrs nats.Header) {
	dlqSubject := subject + ".dlq"
	msg := &nats.Msg{Subject: dlqSubject, Data: data, Header: nats.Header{}}
	if reqID := hdrs.Get(headerRequestID); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		slog.Error("nats dlq publish failed", "subject", dlqSubject, "error", err)
	}
}

func retryCount(hdrs nats.Header) int {
	v := hdrs.Get(headerRetryCount)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// KeyValue creates or opens a JetStream key-value bucket with the given TTL.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats keyvalue bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// IsConnected reports whether the underlying NATS connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

// Drain processes pending messages on all subscriptions, then closes the
// connection.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
