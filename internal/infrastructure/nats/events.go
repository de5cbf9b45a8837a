// Package nats carries lot events over NATS core subjects, one subject per lot
// under a shared prefix so subscribers can take every lot with a wildcard.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	DefaultSubjectPrefix = "lot_events"
	subscribeBuffer      = 256
)

// Conn is the part of *nats.Conn the event bus uses.
type Conn interface {
	Publish(subj string, data []byte) error
	ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error)
}

func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("auction-engine"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

type EventPublisher struct {
	conn   Conn
	prefix string
}

func NewEventPublisher(conn Conn, prefix string) *EventPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &EventPublisher{conn: conn, prefix: prefix}
}

// PublishLotEvent sends event to <prefix>.<lotID>.
func (p *EventPublisher) PublishLotEvent(_ context.Context, event *domain.LotEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode lot event: %w", err)
	}
	if err := p.conn.Publish(p.prefix+"."+event.LotID, payload); err != nil {
		return fmt.Errorf("publish lot event: %w", err)
	}
	return nil
}

type EventSubscriber struct {
	conn   Conn
	prefix string
	log    logger.Logger
}

func NewEventSubscriber(conn Conn, prefix string, log logger.Logger) *EventSubscriber {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &EventSubscriber{conn: conn, prefix: prefix, log: log}
}

// SubscribeToLotEvents blocks on <prefix>.* until ctx is done.
func (s *EventSubscriber) SubscribeToLotEvents(ctx context.Context, handler domain.EventHandler) error {
	subject := s.prefix + ".*"
	msgs := make(chan *nats.Msg, subscribeBuffer)

	sub, err := s.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Debug("Unsubscribe failed", "subject", subject, "error", err)
		}
	}()

	s.log.Info("Subscribed to lot events", "subject", subject)

	for {
		select {
		case msg := <-msgs:
			var event domain.LotEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil || event.LotID == "" || event.Type == "" {
				s.log.Error("Failed to parse event", "subject", msg.Subject, "error", err)
				continue
			}
			if err := handler(&event); err != nil {
				s.log.Error("Failed to handle event", "type", event.Type, "lot_id", event.LotID, "error", err)
			}

		case <-ctx.Done():
			s.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}
