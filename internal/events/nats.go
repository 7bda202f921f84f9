package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix; the event type is appended.
const DefaultSubject = "cartoonify"

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher sends events as JSON on "<prefix>.<type>".
type NATSPublisher struct {
	conn    *nats.Conn
	pub     msgPublisher
	subject string
}

// NewNATSPublisher connects to url. The connection is owned by the publisher
// and drained on Close.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("events: nats url is required")
	}
	conn, err := nats.Connect(url, nats.Name("cartoonify"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("events: connect to nats: %w", err)
	}
	return newNATSPublisher(conn, conn, subject), nil
}

func newNATSPublisher(conn *nats.Conn, pub msgPublisher, subject string) *NATSPublisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, pub: pub, subject: subject}
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.subject + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}
	msg := nats.NewMsg(p.Subject(ev.Type))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Job-Id", ev.JobID)
	if err := p.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
