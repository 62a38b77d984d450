package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nnecfa/payments/internal/audit"
	"github.com/nnecfa/payments/internal/config"
	"github.com/nnecfa/payments/internal/models"
	"github.com/nnecfa/payments/internal/mpesa"
	"github.com/shopspring/decimal"
)

const maxAccountReferenceLen = 12

type PushInput struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	AccountID        string
}

type PushResult struct {
	CorrelationID     string `json:"correlationId"`
	MerchantRequestID string `json:"merchantRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

// PaymentService is the workflow entry point used by the HTTP handlers and
// the ops CLI.
type PaymentService struct {
	gateway    mpesa.Gateway
	ledger     Ledger
	reconciler *Reconciler
	limiter    RateLimiter
	audit      *audit.AuditLogger
	cfg        *config.PaymentConfig
}

func NewPaymentService(gateway mpesa.Gateway, ledger Ledger, reconciler *Reconciler, limiter RateLimiter, auditLogger *audit.AuditLogger, cfg *config.PaymentConfig) *PaymentService {
	if limiter == nil {
		limiter = NewRedisRateLimiter(nil, 0, 0)
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	return &PaymentService{
		gateway:    gateway,
		ledger:     ledger,
		reconciler: reconciler,
		limiter:    limiter,
		audit:      auditLogger,
		cfg:        cfg,
	}
}

// InitiatePush sends an STK push and records it as Pending. Invalid input is
// rejected before any gateway call.
func (s *PaymentService) InitiatePush(ctx context.Context, in PushInput) (*PushResult, error) {
	phone, err := NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}

	amount := in.Amount.Ceil()
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}

	reference := strings.TrimSpace(in.AccountReference)
	if reference == "" {
		return nil, &ValidationError{Field: "accountReference", Message: "is required"}
	}
	if len(reference) > maxAccountReferenceLen {
		return nil, &ValidationError{Field: "accountReference", Message: fmt.Sprintf("must be at most %d characters", maxAccountReferenceLen)}
	}

	if err := s.limiter.Allow(ctx, phone); err != nil {
		log.Printf("[PAYMENT] Push rate limited for %s", phone)
		return nil, err
	}

	resp, err := s.gateway.RequestPush(ctx, mpesa.PushRequest{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: reference,
		TransactionDesc:  s.cfg.TransactionDesc,
	})
	s.limiter.Record(ctx, phone)
	if err != nil {
		log.Printf("[PAYMENT] Push failed for %s: %v", phone, err)
		return nil, err
	}

	req := &models.PaymentRequest{
		PhoneNumber:       phone,
		Amount:            amount.IntPart(),
		AccountReference:  reference,
		AccountID:         in.AccountID,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
	}
	if err := s.ledger.RecordPendingRequest(ctx, req); err != nil {
		log.Printf("[PAYMENT] ERROR push %s sent but not recorded: %v", resp.CheckoutRequestID, err)
		s.audit.LogError(resp.CheckoutRequestID, in.AccountID, err)
		return nil, err
	}

	return &PushResult{
		CorrelationID:     resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// ConfirmPayment is the manual-entry path: the user paid and typed in the code.
func (s *PaymentService) ConfirmPayment(ctx context.Context, transactionCode, phoneNumber, accountID string) (*ConfirmResult, error) {
	return s.reconciler.ConfirmPayment(ctx, ConfirmInput{
		TransactionCode: transactionCode,
		PhoneNumber:     phoneNumber,
		AccountID:       accountID,
		ExpectedAmount:  s.cfg.DefaultAmount,
		Source:          models.SourceManual,
	})
}

// HandleProviderCallback applies an authenticated STK callback. A success also
// runs reconciliation for the account that started the push, so the callback
// and manual paths share one uniqueness guarantee.
func (s *PaymentService) HandleProviderCallback(ctx context.Context, body []byte) error {
	result, err := mpesa.ParseCallback(body)
	if err != nil {
		log.Printf("[CALLBACK] Rejected payload: %v", err)
		return err
	}

	outcome := models.RequestOutcome{
		Status:     models.PaymentStatusFailed,
		ResultCode: fmt.Sprintf("%d", result.ResultCode),
		ResultDesc: result.ResultDesc,
	}
	if result.Kind == mpesa.StatusSuccess {
		outcome.Status = models.PaymentStatusCompleted
		outcome.ReceiptNumber = result.ReceiptNumber
	}

	req, err := s.ledger.MarkRequestOutcome(ctx, result.CheckoutRequestID, outcome)
	var transitionErr *InvalidTransitionError
	switch {
	case err == nil:
		s.audit.LogRequestOutcome(req.CheckoutRequestID, req.AccountID, string(outcome.Status), outcome.ResultDesc)
	case errors.As(err, &transitionErr) && req != nil && result.Kind == mpesa.StatusSuccess:
		// Money moved even though the request was already closed; keep the receipt.
		s.audit.LogError(result.CheckoutRequestID, req.AccountID, err)
	default:
		log.Printf("[CALLBACK] Failed to apply outcome for %s: %v", result.CheckoutRequestID, err)
		return err
	}

	if result.Kind != mpesa.StatusSuccess {
		log.Printf("[CALLBACK] Push %s failed: code=%d desc=%s", result.CheckoutRequestID, result.ResultCode, result.ResultDesc)
		return nil
	}

	if req.AccountID == "" {
		log.Printf("[CALLBACK] Push %s paid with %s but has no linked account; awaiting manual confirmation", req.CheckoutRequestID, result.ReceiptNumber)
		return nil
	}

	// An already-closed request may not carry this receipt; reconcile the one paid.
	paid := *req
	paid.ReceiptNumber = result.ReceiptNumber
	if _, err := s.reconciler.ReconcileRequest(ctx, &paid, result.Amount.Ceil().IntPart(), s.cfg.DefaultAmount); err != nil {
		log.Printf("[CALLBACK] Receipt %s for %s not reconciled: %v", result.ReceiptNumber, req.CheckoutRequestID, err)
		return err
	}

	return nil
}

// GetRequest returns a request only to the account that initiated it. An
// empty accountID skips the ownership check.
func (s *PaymentService) GetRequest(ctx context.Context, checkoutRequestID, accountID string) (*models.PaymentRequest, error) {
	req, err := s.ledger.GetRequest(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	if accountID != "" && req.AccountID != accountID {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// QueryStatus polls the provider for a request that is still Pending and
// applies any final answer to the ledger.
func (s *PaymentService) QueryStatus(ctx context.Context, checkoutRequestID, accountID string) (*models.PaymentRequest, error) {
	req, err := s.GetRequest(ctx, checkoutRequestID, accountID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return req, nil
	}

	result, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		log.Printf("[PAYMENT] Status query failed for %s: %v", checkoutRequestID, err)
		return nil, err
	}

	if result.Kind == mpesa.StatusPending {
		return req, nil
	}

	outcome := models.RequestOutcome{
		Status:     models.PaymentStatusFailed,
		ResultCode: result.ResultCode,
		ResultDesc: result.ResultDesc,
	}
	if result.Kind == mpesa.StatusSuccess {
		outcome.Status = models.PaymentStatusCompleted
	}

	updated, err := s.ledger.MarkRequestOutcome(ctx, checkoutRequestID, outcome)
	if err != nil {
		return nil, err
	}

	s.audit.LogRequestOutcome(checkoutRequestID, updated.AccountID, string(updated.Status), updated.ResultDesc)
	return updated, nil
}
