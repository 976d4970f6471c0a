// Package events publishes auth audit events to Kafka. Publishing is
// best-effort: a broker outage must never surface to the browser.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	TypeLoginSucceeded = "login_succeeded"
	TypeLoginFailed    = "login_failed"
	TypeGoogleAuth     = "google_auth"
	TypeRefreshFailed  = "refresh_failed"
	TypeLoggedOut      = "logged_out"
)

type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Subject string         `json:"subject"`
	At      time.Time      `json:"at"`
	Detail  map[string]any `json:"detail,omitempty"`
}

type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewProducer builds a producer for the given brokers. With no brokers
// configured it returns nil; a nil Producer drops every event.
func NewProducer(brokers []string, topic string, log *slog.Logger) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 50 * time.Millisecond,
		},
		log: log,
	}
}

// Publish emits one audit event keyed by subject. Errors are logged
// and swallowed.
func (p *Producer) Publish(ctx context.Context, eventType, subject string, detail map[string]any) {
	if p == nil {
		return
	}

	evt := Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Subject: subject,
		At:      time.Now().UTC(),
		Detail:  detail,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("audit event marshal failed", "type", eventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(subject),
		Value: value,
	}); err != nil {
		p.log.Error("audit event publish failed", "type", eventType, "error", err)
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
