package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewRabbitMQ dials the broker and declares a durable direct exchange, the
// queue, and its binding.
func NewRabbitMQ(url, exchange, queue, routingKey string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, queue string, message []byte) error {
	return r.channel.PublishWithContext(ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

// Consume delivers messages with manual acknowledgement: a message stays
// owned by the broker until the consumer settles it, so a crash between
// delivery and the durable insert redelivers rather than loses it.
func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	msgs, err := r.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery, 1000)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				d := Delivery{
					Body:     msg.Body,
					AckFunc:  func() error { return msg.Ack(false) },
					NackFunc: func(requeue bool) error { return msg.Nack(false, requeue) },
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
