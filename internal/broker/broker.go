package broker

import "context"

// Delivery is one consumed message. The consumer must settle it: Ack once the
// message is durably handed off, Nack to hand it back to the broker. Nil
// settle funcs are no-ops, which keeps in-memory test brokers small.
type Delivery struct {
	Body     []byte
	AckFunc  func() error
	NackFunc func(requeue bool) error
}

func (d Delivery) Ack() error {
	if d.AckFunc == nil {
		return nil
	}
	return d.AckFunc()
}

func (d Delivery) Nack(requeue bool) error {
	if d.NackFunc == nil {
		return nil
	}
	return d.NackFunc(requeue)
}

// MessageBroker moves serialized job envelopes between the API tier and the
// workers.
type MessageBroker interface {
	Publish(ctx context.Context, queue string, message []byte) error
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	Close() error
}
