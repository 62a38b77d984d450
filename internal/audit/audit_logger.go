package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp       time.Time `json:"timestamp"`
	EventType       string    `json:"event_type"`
	TransactionCode string    `json:"transaction_code,omitempty"`
	CheckoutID      string    `json:"checkout_request_id,omitempty"`
	AccountID       string    `json:"account_id,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	Status          string    `json:"status"`
	Details         any       `json:"details,omitempty"`
}

// AuditLogger writes one JSON line per payment event, prefixed with AUDIT:.
type AuditLogger struct {
	now func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{now: time.Now}
}

func (a *AuditLogger) LogConfirmation(transactionCode, accountID string, amount int64, source, status string) {
	a.log(AuditEvent{
		EventType:       "PAYMENT_CONFIRMATION",
		TransactionCode: transactionCode,
		AccountID:       accountID,
		Amount:          amount,
		Status:          status,
		Details:         map[string]string{"source": source},
	})
}

// LogCodeReuse records an attempt to verify a second account with a code that
// is already linked elsewhere.
func (a *AuditLogger) LogCodeReuse(transactionCode, accountID, ownerAccountID string) {
	a.log(AuditEvent{
		EventType:       "CODE_REUSE",
		TransactionCode: transactionCode,
		AccountID:       accountID,
		Status:          "REJECTED",
		Details:         map[string]string{"linked_account_id": ownerAccountID},
	})
}

func (a *AuditLogger) LogFlagFailure(transactionCode, accountID string, err error) {
	a.log(AuditEvent{
		EventType:       "ACCOUNT_FLAG",
		TransactionCode: transactionCode,
		AccountID:       accountID,
		Status:          "FAILED",
		Details:         map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) LogRequestOutcome(checkoutRequestID, accountID, status, resultDesc string) {
	a.log(AuditEvent{
		EventType:  "PUSH_OUTCOME",
		CheckoutID: checkoutRequestID,
		AccountID:  accountID,
		Status:     status,
		Details:    map[string]string{"result_desc": resultDesc},
	})
}

func (a *AuditLogger) LogError(checkoutRequestID, accountID string, err error) {
	a.log(AuditEvent{
		EventType:  "ERROR",
		CheckoutID: checkoutRequestID,
		AccountID:  accountID,
		Status:     "FAILED",
		Details:    map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
