// Package broker probes the external messaging broker for queue depth and
// consumer presence. It never consumes a message — only inspects.
package broker

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"acaqueue/pkg/models"
	"acaqueue/pkg/resilience"
)

// Prober is the contract the Decision Engine's inputs are built from.
// Probe errors are per-queue: a failure on one queue never blocks probing
// the app's other queues.
type Prober interface {
	Probe(ctx context.Context, queueName string) (models.QueueSnapshot, error)
	Close() error
}

// Credentials holds the broker connection parameters from the
// configuration surface's `broker.*` fields.
type Credentials struct {
	ServerURL string // tcp://host:port
	Username  string
	Password  string
}

// RabbitProber implements Prober against a RabbitMQ-compatible broker using
// passive queue declaration: Channel.QueueDeclarePassive returns the queue's
// current message count and consumer count in one round-trip, an exact fit
// for the spec's {pendingMessages, activeConsumers} contract, without
// dequeuing anything.
type RabbitProber struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	breaker *resilience.CircuitBreaker
}

// NewRabbitProber dials the broker and opens a single long-lived channel.
// Reconnection on a dropped connection is the caller's responsibility (the
// circuit breaker wrapping Probe calls bounds the blast radius of a stale
// connection until the next restart).
func NewRabbitProber(creds Credentials) (*RabbitProber, error) {
	amqpURL := fmt.Sprintf("amqp://%s:%s@%s", creds.Username, creds.Password, trimScheme(creds.ServerURL))
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: failed to open channel: %w", err)
	}
	return &RabbitProber{
		conn:    conn,
		ch:      ch,
		breaker: resilience.NewCircuitBreaker("broker-probe", resilience.DefaultCircuitBreakerConfig()),
	}, nil
}

// trimScheme strips a tcp:// prefix, since the config surface documents
// broker.serverUrl as tcp://host:port but amqp091-go expects amqp://.
func trimScheme(url string) string {
	const prefix = "tcp://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

func (p *RabbitProber) Probe(ctx context.Context, queueName string) (models.QueueSnapshot, error) {
	var snap models.QueueSnapshot
	err := p.breaker.Execute(ctx, func() error {
		// QueueDeclarePassive never creates or modifies the queue; it fails
		// if the queue doesn't exist, which we surface as a transport error
		// (the caller treats the queue as "unknown" for this tick).
		q, err := p.ch.QueueDeclarePassive(queueName, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("broker: probe %q: %w", queueName, err)
		}
		snap = models.QueueSnapshot{
			QueueName:       queueName,
			PendingMessages: int64(q.Messages),
			ActiveConsumers: q.Consumers,
		}
		return nil
	})
	if err != nil {
		return models.QueueSnapshot{QueueName: queueName, Unknown: true}, err
	}
	return snap, nil
}

func (p *RabbitProber) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}
