package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"

	"formrelay/internal/broker"
)

// Enqueuer schedules a named job. The direct implementation writes straight
// to the durable store; the broker implementation publishes to RabbitMQ and a
// drain loop lands messages in the store, which is useful when the API tier
// cannot reach Postgres directly.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, runAt time.Time, args ...any) (int64, error)
}

type StoreEnqueuer struct {
	repo     JobRepository
	registry *Registry
}

func NewStoreEnqueuer(repo JobRepository, registry *Registry) *StoreEnqueuer {
	return &StoreEnqueuer{repo: repo, registry: registry}
}

func (e *StoreEnqueuer) Enqueue(ctx context.Context, name string, runAt time.Time, args ...any) (int64, error) {
	handler, err := e.registry.Lookup(name)
	if err != nil {
		return 0, err
	}
	return e.repo.Insert(ctx, name, handler.MaxAttempts, runAt, args)
}

// envelope is the broker wire format for one scheduled job.
type envelope struct {
	Name        string    `json:"name"`
	Args        []any     `json:"args"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type BrokerEnqueuer struct {
	broker    broker.MessageBroker
	queueName string
}

func NewBrokerEnqueuer(b broker.MessageBroker, queueName string) *BrokerEnqueuer {
	return &BrokerEnqueuer{broker: b, queueName: queueName}
}

// Enqueue publishes the job; the id is unknown until the drain loop inserts
// it, so 0 is returned.
func (e *BrokerEnqueuer) Enqueue(ctx context.Context, name string, runAt time.Time, args ...any) (int64, error) {
	payload, err := json.Marshal(envelope{Name: name, Args: args, ScheduledAt: runAt})
	if err != nil {
		return 0, fmt.Errorf("marshal job envelope: %w", err)
	}
	if err := e.broker.Publish(ctx, e.queueName, payload); err != nil {
		return 0, fmt.Errorf("publish job to broker: %w", err)
	}
	return 0, nil
}

// Drain consumes broker messages and lands them in the durable store. Runs
// until ctx is cancelled. A message is acknowledged only after its insert
// committed; an insert failure hands the message back to the broker for
// redelivery. Messages that can never insert (undecodable, unknown handler)
// are acknowledged and dropped with a log line rather than poisoning the
// loop.
func Drain(ctx context.Context, b broker.MessageBroker, queueName string, repo JobRepository, registry *Registry) error {
	msgs, err := b.Consume(ctx, queueName)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				log.Printf("queue: drop undecodable broker message: %v", err)
				settle(msg.Ack)
				continue
			}
			handler, err := registry.Lookup(env.Name)
			if err != nil {
				log.Printf("queue: drop broker message: %v", err)
				settle(msg.Ack)
				continue
			}
			if _, err := repo.Insert(ctx, env.Name, handler.MaxAttempts, env.ScheduledAt, env.Args); err != nil {
				log.Printf("queue: insert drained job '%s' failed, returning to broker: %v", env.Name, err)
				settle(func() error { return msg.Nack(true) })
				continue
			}
			settle(msg.Ack)
		}
	}
}

func settle(fn func() error) {
	if err := fn(); err != nil {
		log.Printf("queue: settle broker message: %v", err)
	}
}
