package events

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/segmentio/kafka-go"
)

const (
	AuthTopic     = "auth-events"
	CheckoutTopic = "checkout-outbox"

	EventTypeHeader = "event_type"
)

// Reader is the part of *kafka.Reader the consumer needs
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler processes one message. Errors are logged; the message is not redelivered.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer reads messages and dispatches them by their event_type header
type Consumer struct {
	reader   Reader
	handlers map[string]Handler
}

func NewReader(groupID string, brokers []string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MaxBytes:    10e6, // 10MB
	})
}

func NewConsumer(reader Reader) *Consumer {
	return &Consumer{reader: reader, handlers: make(map[string]Handler)}
}

// Handle registers h for messages whose event_type header equals eventType
func (c *Consumer) Handle(eventType string, h Handler) {
	c.handlers[eventType] = h
}

// Run blocks until ctx is done or the reader is closed
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !c.processMessage(ctx) {
			return
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		log.Printf("error closing kafka reader: %v", err)
	}
}

// processMessage reports false once the reader can no longer deliver
func (c *Consumer) processMessage(ctx context.Context) bool {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return false
		}
		log.Printf("error reading message: %v", err)
		return true
	}

	eventType := header(m, EventTypeHeader)
	h, ok := c.handlers[eventType]
	if !ok {
		return true
	}
	if err := h(ctx, m); err != nil {
		log.Printf("failed to handle %s event from %s: %v", eventType, m.Topic, err)
	}
	return true
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
