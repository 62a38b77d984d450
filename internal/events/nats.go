package events

import (
	"context"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("nnecfa-payments"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Printf("[EVENTS] Publishing to NATS subject %s", subject)
	return NewNATSPublisher(conn, subject), nil
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) PublishPaymentVerified(ctx context.Context, ev PaymentVerified) error {
	if p.conn == nil || p.conn.IsClosed() {
		return nats.ErrConnectionClosed
	}

	body, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(p.subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.conn.FlushWithContext(flushCtx)
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
