// Package events publishes document lifecycle notifications to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"sparkai/pkg/domain"
)

const (
	exchangeName = "spark.documents"

	routingIngested = "document.ingested"
	routingDeleted  = "document.deleted"
)

// AMQPPublisher emits one JSON message per document lifecycle change on a
// topic exchange. Consumers are free to come and go; nothing in the request
// path waits on them.
type AMQPPublisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	now     func() time.Time
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, now: time.Now}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	p.channel = channel
	return nil
}

type documentEvent struct {
	Event      string    `json:"event"`
	DocumentID string    `json:"document_id"`
	UserID     int64     `json:"user_id"`
	FileName   string    `json:"file_name,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DocumentIngested announces a completed ingest.
func (p *AMQPPublisher) DocumentIngested(ctx context.Context, doc domain.Document) error {
	return p.publish(ctx, routingIngested, documentEvent{
		Event:      routingIngested,
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		FileName:   doc.FileName,
		ChunkCount: doc.ChunkCount,
		OccurredAt: p.now().UTC(),
	})
}

// DocumentDeleted announces a document removal.
func (p *AMQPPublisher) DocumentDeleted(ctx context.Context, doc domain.Document) error {
	return p.publish(ctx, routingDeleted, documentEvent{
		Event:      routingDeleted,
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		FileName:   doc.FileName,
		ChunkCount: doc.ChunkCount,
		OccurredAt: p.now().UTC(),
	})
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event documentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.channel.IsClosed() {
		if err := p.reconnectLocked(); err != nil {
			return err
		}
	}
	err = p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *AMQPPublisher) reconnectLocked() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	return p.connect()
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
