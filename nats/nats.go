package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/edgeee/social-backend/social"
)

// SubjectPrefix prefixes the event type in every published subject.
const SubjectPrefix = "social"

// NATS publishes social events to a NATS server.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect connects to the NATS server at url.
func Connect(url string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("social-backend"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, logger: logger}, nil
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

// Subject returns the subject an event type is published on.
func Subject(eventType string) string {
	return SubjectPrefix + "." + eventType
}

// Publish encodes e as JSON and publishes it on social.<type>.
func (n *NATS) Publish(_ context.Context, e social.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.conn.Publish(Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Subscribe calls handle for every event published under the prefix.
func (n *NATS) Subscribe(handle func(social.Event)) (*nats.Subscription, error) {
	return n.conn.Subscribe(SubjectPrefix+".>", n.handler(handle))
}

// handler decodes messages for handle. Messages that are not events are
// logged and skipped.
func (n *NATS) handler(handle func(social.Event)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var e social.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			n.logger.Warn("Could not decode event", "subject", msg.Subject, "error", err.Error())
			return
		}
		handle(e)
	}
}
