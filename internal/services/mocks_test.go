package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nnecfa/payments/internal/events"
	"github.com/nnecfa/payments/internal/models"
	"github.com/nnecfa/payments/internal/mpesa"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestPush(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.PushResponse), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.StatusResult, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mpesa.StatusResult), args.Error(1)
}

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountStore) SetPaymentVerified(ctx context.Context, id string, at time.Time, by string) error {
	args := m.Called(ctx, id, at, by)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPaymentVerified(ctx context.Context, ev events.PaymentVerified) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockRateLimiter) Record(ctx context.Context, key string) {
	m.Called(ctx, key)
}

// memoryLedger mirrors PostgresLedger semantics, including the unique index on
// transaction_code, so workflow tests can run concurrent confirmations.
type memoryLedger struct {
	mu       sync.Mutex
	requests map[string]models.PaymentRequest
	payments map[string]models.ConfirmedPayment
	rejected map[string]string
	inserts  int
	now      func() time.Time
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		requests: make(map[string]models.PaymentRequest),
		payments: make(map[string]models.ConfirmedPayment),
		rejected: make(map[string]string),
		now:      time.Now,
	}
}

func (l *memoryLedger) RecordPendingRequest(ctx context.Context, req *models.PaymentRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.requests[req.CheckoutRequestID]; ok {
		return ErrDuplicateRequest
	}
	if req.ID == "" {
		req.ID = "req-" + req.CheckoutRequestID
	}
	req.Status = models.PaymentStatusPending
	if req.CreatedAt.IsZero() {
		req.CreatedAt = l.now()
	}
	req.UpdatedAt = req.CreatedAt
	l.requests[req.CheckoutRequestID] = *req
	return nil
}

func (l *memoryLedger) GetRequest(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[checkoutRequestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (l *memoryLedger) MarkRequestOutcome(ctx context.Context, checkoutRequestID string, outcome models.RequestOutcome) (*models.PaymentRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, ok := l.requests[checkoutRequestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status.IsTerminal() {
		if req.Status != outcome.Status {
			return &req, &InvalidTransitionError{CheckoutRequestID: checkoutRequestID, From: req.Status, To: outcome.Status}
		}
		if needsReceipt(&req, outcome) {
			req.ReceiptNumber = outcome.ReceiptNumber
			req.UpdatedAt = l.now()
			l.requests[checkoutRequestID] = req
		}
		return &req, nil
	}

	req.Status = outcome.Status
	req.ResultCode = outcome.ResultCode
	req.ResultDesc = outcome.ResultDesc
	req.ReceiptNumber = outcome.ReceiptNumber
	req.UpdatedAt = l.now()
	l.requests[checkoutRequestID] = req
	return &req, nil
}

func (l *memoryLedger) RecordConfirmedPayment(ctx context.Context, payment models.ConfirmedPayment) (*models.ConfirmedPayment, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.payments[payment.TransactionCode]; ok {
		if existing.LinkedAccountID != payment.LinkedAccountID {
			return nil, false, ErrTransactionCodeReuse
		}
		return &existing, false, nil
	}

	payment.ConfirmedAt = l.now()
	payment.FlagApplied = false
	l.payments[payment.TransactionCode] = payment
	l.inserts++
	return &payment, true, nil
}

func (l *memoryLedger) LookupByCode(ctx context.Context, transactionCode string) (*models.ConfirmedPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payment, ok := l.payments[transactionCode]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &payment, nil
}

func (l *memoryLedger) FindRequestByReceipt(ctx context.Context, receiptNumber string) (*models.PaymentRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, req := range l.requests {
		if req.ReceiptNumber == receiptNumber && req.Status == models.PaymentStatusCompleted {
			return &req, nil
		}
	}
	return nil, ErrRequestNotFound
}

func (l *memoryLedger) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []string
	for id, req := range l.requests {
		if req.Status == models.PaymentStatusPending && req.CreatedAt.Before(cutoff) {
			req.Status = models.PaymentStatusExpired
			req.UpdatedAt = l.now()
			l.requests[id] = req
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)
	return expired, nil
}

func (l *memoryLedger) MarkFlagApplied(ctx context.Context, transactionCode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	payment, ok := l.payments[transactionCode]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.FlagApplied = true
	l.payments[transactionCode] = payment
	return nil
}

func (l *memoryLedger) ListUnappliedFlags(ctx context.Context, limit int) ([]models.ConfirmedPayment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []models.ConfirmedPayment
	for _, payment := range l.payments {
		if !payment.FlagApplied && len(pending) < limit {
			pending = append(pending, payment)
		}
	}
	return pending, nil
}

func (l *memoryLedger) ListUnreconciledReceipts(ctx context.Context, limit int) ([]models.PaymentRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []models.PaymentRequest
	for id, req := range l.requests {
		if req.Status != models.PaymentStatusCompleted || req.ReceiptNumber == "" || req.AccountID == "" {
			continue
		}
		if _, ok := l.rejected[id]; ok {
			continue
		}
		if _, ok := l.payments[req.ReceiptNumber]; ok {
			continue
		}
		pending = append(pending, req)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CheckoutRequestID < pending[j].CheckoutRequestID })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (l *memoryLedger) MarkReconcileRejected(ctx context.Context, checkoutRequestID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.requests[checkoutRequestID]; !ok {
		return ErrRequestNotFound
	}
	l.rejected[checkoutRequestID] = reason
	return nil
}

func (l *memoryLedger) rejection(checkoutRequestID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reason, ok := l.rejected[checkoutRequestID]
	return reason, ok
}

func (l *memoryLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

func (l *memoryLedger) request(checkoutRequestID string) models.PaymentRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[checkoutRequestID]
}
