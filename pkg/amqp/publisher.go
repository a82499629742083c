// Package amqp publishes outbox events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

const exchangeKind = "topic"

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Message is one event body plus the headers copied onto the delivery.
type Message struct {
	ID        string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time
}

type Publisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
}

// NewPublisher dials the broker and declares the durable topic exchange.
func NewPublisher(ctx context.Context, cfg config.AMQPConfig, logg *logger.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("amqp url is required")
	}
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil, errors.New("amqp exchange is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "amqp publisher initialized")
	}

	return &Publisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

func newPublisherWithChannel(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// Publish sends msg as a persistent delivery routed by routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, msg Message) error {
	if p == nil || p.ch == nil {
		return errors.New("amqp publisher not initialized")
	}
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    ts,
		Headers:      headers,
		Body:         msg.Body,
	})
}

// Ping reports whether the broker connection is still open.
func (p *Publisher) Ping(context.Context) error {
	if p == nil || p.conn == nil {
		return errors.New("amqp publisher not initialized")
	}
	if p.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
