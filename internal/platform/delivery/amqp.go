package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue messages are published to when none is configured.
const DefaultQueue = "fhir-messages"

// ErrNotConfirmed is returned when the broker nacks a publish.
var ErrNotConfirmed = errors.New("message not confirmed by broker")

// publisher is the subset of *amqp.Channel the sender needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes each message as a persistent delivery on a durable
// queue and waits for the broker's confirm.
type AMQPSender struct {
	mu       sync.Mutex
	ch       publisher
	closer   func() error
	queue    string
	confirms <-chan amqp.Confirmation

	// unconfirmed counts publishes whose confirm was abandoned by a canceled
	// Send. Confirms arrive in publish order, so these are read first.
	unconfirmed int
}

// DialAMQP connects to the broker at amqpURL and opens a sender on queue.
func DialAMQP(amqpURL, queue string) (*AMQPSender, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	s, err := NewAMQPSender(conn, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	closeChannel := s.closer
	s.closer = func() error {
		return errors.Join(closeChannel(), conn.Close())
	}
	return s, nil
}

// NewAMQPSender opens a channel on conn, declares queue as durable and puts
// the channel into confirm mode.
func NewAMQPSender(conn *amqp.Connection, queue string) (*AMQPSender, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}

	return &AMQPSender{
		ch:       ch,
		closer:   ch.Close,
		queue:    queue,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// Send publishes msg.Payload and blocks until the broker confirms it.
func (s *AMQPSender) Send(ctx context.Context, msg Message) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub := amqp.Publishing{
		ContentType:  ContentType,
		MessageId:    msg.Key,
		Timestamp:    time.Now().UTC(),
		DeliveryMode: amqp.Persistent,
		Body:         msg.Payload,
	}

	for s.unconfirmed > 0 {
		if _, err := s.awaitConfirm(ctx); err != nil {
			return nil, err
		}
		s.unconfirmed--
	}

	start := time.Now()
	if err := s.ch.PublishWithContext(ctx, "", s.queue, false, false, pub); err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", s.queue, err)
	}

	confirmed, err := s.awaitConfirm(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.unconfirmed++
		}
		return nil, err
	}
	if !confirmed.Ack {
		return nil, fmt.Errorf("publishing to %s: %w", s.queue, ErrNotConfirmed)
	}
	return &Result{Duration: time.Since(start)}, nil
}

func (s *AMQPSender) awaitConfirm(ctx context.Context) (amqp.Confirmation, error) {
	select {
	case confirmed, ok := <-s.confirms:
		if !ok {
			return amqp.Confirmation{}, fmt.Errorf("publishing to %s: channel closed", s.queue)
		}
		return confirmed, nil
	case <-ctx.Done():
		return amqp.Confirmation{}, fmt.Errorf("publishing to %s: %w", s.queue, ctx.Err())
	}
}

// Close releases the channel, and the connection when the sender dialed it.
func (s *AMQPSender) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
