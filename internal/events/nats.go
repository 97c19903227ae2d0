package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("storytime-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}

	log.WithField("url", url).Info("nats connected")
	return &NatsPublisher{conn: conn}, nil
}

func (p *NatsPublisher) Publish(_ context.Context, subject string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	return p.conn.Publish(subject, payload)
}

// Subscribe delivers every event under the story.> hierarchy to handler.
func (p *NatsPublisher) Subscribe(handler func(subject string, event Event)) (*nats.Subscription, error) {
	return p.conn.Subscribe("story.>", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.WithError(err).WithField("subject", msg.Subject).Warn("dropping malformed event")
			return
		}
		handler(msg.Subject, event)
	})
}

// Close flushes pending messages before closing the connection.
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
