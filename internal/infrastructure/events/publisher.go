package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"patchtriage/internal/errs"
	"patchtriage/internal/ports"
)

// NATSPublisher publishes triage events as JSON to "<prefix>.<action>".
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

func ConnectNATS(url string, clientName string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(clientName), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %q", url)
	}
	return conn, nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "patchtriage"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(action string) string {
	return p.prefix + "." + action
}

func (p *NATSPublisher) Publish(ctx context.Context, event ports.TriageEvent) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(event.Action) == "" {
		return errors.New("event action is required")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "marshal triage event")
	}
	if err := p.conn.Publish(p.Subject(event.Action), data); err != nil {
		return errs.Wrap(err, "publish triage event")
	}
	return nil
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ ports.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, ports.TriageEvent) error { return nil }
