package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nnecfa/payments/internal/config"
	"github.com/nnecfa/payments/internal/models"
)

const PaymentVerifiedType = "payment.verified"

// PaymentVerified is emitted once a confirmed payment has flipped its account flag.
type PaymentVerified struct {
	EventType       string    `json:"eventType"`
	TransactionCode string    `json:"transactionCode"`
	AccountID       string    `json:"accountId"`
	PhoneNumber     string    `json:"phoneNumber"`
	Amount          int64     `json:"amount"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewPaymentVerified(p *models.ConfirmedPayment, at time.Time) PaymentVerified {
	return PaymentVerified{
		EventType:       PaymentVerifiedType,
		TransactionCode: p.TransactionCode,
		AccountID:       p.LinkedAccountID,
		PhoneNumber:     p.PhoneNumber,
		Amount:          p.Amount,
		Source:          string(p.Source),
		Timestamp:       at.UTC(),
	}
}

type Publisher interface {
	PublishPaymentVerified(ctx context.Context, ev PaymentVerified) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishPaymentVerified(ctx context.Context, ev PaymentVerified) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

// NewPublisher connects the configured broker. A nil error always comes with
// a usable Publisher.
func NewPublisher(cfg *config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case config.EventsDriverAMQP:
		p, err := DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EventsDriverNATS:
		p, err := ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.EventsDriverNone, "":
		log.Println("[EVENTS] Event publishing disabled")
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

func marshalEvent(ev PaymentVerified) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.EventType, err)
	}
	return body, nil
}
