package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nnecfa/payments/internal/audit"
	"github.com/nnecfa/payments/internal/events"
	"github.com/nnecfa/payments/internal/models"
)

// ConfirmInput is a user-asserted (or provider-reported) transaction code.
type ConfirmInput struct {
	TransactionCode string
	PhoneNumber     string
	AccountID       string
	ExpectedAmount  int64
	// PaidAmount is the amount the provider reported, zero when unknown.
	PaidAmount int64
	Source     models.ConfirmationSource
}

type ConfirmResult struct {
	Verified         bool                     `json:"verified"`
	AlreadyConfirmed bool                     `json:"alreadyConfirmed"`
	Payment          *models.ConfirmedPayment `json:"payment,omitempty"`
}

// Reconciler turns a transaction code into an account-level verification.
// The ledger write is the source of truth; the account flag is a projection
// that the repair job re-applies when it fails.
type Reconciler struct {
	ledger    Ledger
	accounts  AccountStore
	publisher events.Publisher
	audit     *audit.AuditLogger
	now       func() time.Time
}

func NewReconciler(ledger Ledger, accounts AccountStore, publisher events.Publisher, auditLogger *audit.AuditLogger) *Reconciler {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	return &Reconciler{
		ledger:    ledger,
		accounts:  accounts,
		publisher: publisher,
		audit:     auditLogger,
		now:       time.Now,
	}
}

func (r *Reconciler) ConfirmPayment(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	code, err := NormalizeTransactionCode(in.TransactionCode)
	if err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	accountID := strings.TrimSpace(in.AccountID)
	if accountID == "" {
		return nil, &ValidationError{Field: "accountId", Message: "is required"}
	}
	if in.Source == "" {
		in.Source = models.SourceManual
	}

	// Early exit only; the unique index decides concurrent confirmations.
	existing, err := r.ledger.LookupByCode(ctx, code)
	switch {
	case err == nil:
		return r.resolveExisting(ctx, existing, accountID)
	case !errors.Is(err, ErrPaymentNotFound):
		return nil, err
	}

	amount, err := r.verifyAgainstPush(ctx, code, phone, in)
	if err != nil {
		return nil, err
	}

	if _, err := r.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	payment, created, err := r.ledger.RecordConfirmedPayment(ctx, models.ConfirmedPayment{
		TransactionCode: code,
		PhoneNumber:     phone,
		Amount:          amount,
		LinkedAccountID: accountID,
		Source:          in.Source,
	})
	if errors.Is(err, ErrTransactionCodeReuse) {
		r.audit.LogCodeReuse(code, accountID, "")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if !created {
		log.Printf("[PAYMENT] Code %s confirmed concurrently for account %s", code, accountID)
		if !payment.FlagApplied {
			r.ApplyAccountFlag(ctx, payment)
		}
		return &ConfirmResult{Verified: true, AlreadyConfirmed: true, Payment: payment}, nil
	}

	r.audit.LogConfirmation(code, accountID, amount, string(in.Source), "SUCCESS")
	r.ApplyAccountFlag(ctx, payment)

	return &ConfirmResult{Verified: true, Payment: payment}, nil
}

// ReconcileRequest confirms the receipt of a completed push for the account
// that started it. The receipt must cover expectedAmount whatever amount the
// push asked for. Rejections that no retry can fix are recorded on the request
// so the reconcile sweep stops picking it up; anything else is left for the
// sweep to retry.
func (r *Reconciler) ReconcileRequest(ctx context.Context, req *models.PaymentRequest, paidAmount, expectedAmount int64) (*ConfirmResult, error) {
	result, err := r.ConfirmPayment(ctx, ConfirmInput{
		TransactionCode: req.ReceiptNumber,
		PhoneNumber:     req.PhoneNumber,
		AccountID:       req.AccountID,
		ExpectedAmount:  expectedAmount,
		PaidAmount:      paidAmount,
		Source:          models.SourceCallback,
	})
	if err == nil {
		return result, nil
	}

	log.Printf("[PAYMENT] ERROR reconciliation failed for %s receipt=%s: %v", req.CheckoutRequestID, req.ReceiptNumber, err)
	r.audit.LogError(req.CheckoutRequestID, req.AccountID, err)
	if isPermanentRejection(err) {
		if markErr := r.ledger.MarkReconcileRejected(ctx, req.CheckoutRequestID, err.Error()); markErr != nil {
			log.Printf("[PAYMENT] Failed to record rejection for %s: %v", req.CheckoutRequestID, markErr)
		}
	}
	return nil, err
}

func isPermanentRejection(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr) ||
		errors.Is(err, ErrTransactionCodeReuse) ||
		errors.Is(err, ErrAccountNotFound)
}

func (r *Reconciler) resolveExisting(ctx context.Context, existing *models.ConfirmedPayment, accountID string) (*ConfirmResult, error) {
	if existing.LinkedAccountID != accountID {
		log.Printf("[PAYMENT] Code %s rejected for account %s: already linked", existing.TransactionCode, accountID)
		r.audit.LogCodeReuse(existing.TransactionCode, accountID, existing.LinkedAccountID)
		return nil, ErrTransactionCodeReuse
	}

	if !existing.FlagApplied {
		r.ApplyAccountFlag(ctx, existing)
	}
	return &ConfirmResult{Verified: true, AlreadyConfirmed: true, Payment: existing}, nil
}

// verifyAgainstPush cross-checks the code against a completed push carrying the
// same receipt. Codes with no matching push are accepted on first presentation.
func (r *Reconciler) verifyAgainstPush(ctx context.Context, code, phone string, in ConfirmInput) (int64, error) {
	amount := in.PaidAmount

	req, err := r.ledger.FindRequestByReceipt(ctx, code)
	switch {
	case err == nil:
		if req.PhoneNumber != phone {
			return 0, &ValidationError{Field: "phoneNumber", Message: "does not match the phone number that made this payment"}
		}
		if amount == 0 {
			amount = req.Amount
		}
	case !errors.Is(err, ErrRequestNotFound):
		return 0, err
	}

	if amount == 0 {
		amount = in.ExpectedAmount
	}
	if in.ExpectedAmount > 0 && amount < in.ExpectedAmount {
		return 0, &ValidationError{Field: "transactionCode", Message: fmt.Sprintf("payment of KES %d is less than the required KES %d", amount, in.ExpectedAmount)}
	}

	return amount, nil
}

// ApplyAccountFlag writes the account projection for a recorded payment. It
// reports whether the flag is now applied; failures are logged and audited,
// never returned, because the payment itself is already recorded.
func (r *Reconciler) ApplyAccountFlag(ctx context.Context, payment *models.ConfirmedPayment) bool {
	at := r.now()
	if err := r.accounts.SetPaymentVerified(ctx, payment.LinkedAccountID, at, payment.TransactionCode); err != nil {
		log.Printf("[PAYMENT] ERROR account flag not applied for code=%s account=%s: %v", payment.TransactionCode, payment.LinkedAccountID, err)
		r.audit.LogFlagFailure(payment.TransactionCode, payment.LinkedAccountID, err)
		return false
	}

	if err := r.ledger.MarkFlagApplied(ctx, payment.TransactionCode); err != nil {
		// The repair job will re-apply; SetPaymentVerified is idempotent.
		log.Printf("[PAYMENT] Failed to mark flag applied for %s: %v", payment.TransactionCode, err)
	}
	payment.FlagApplied = true

	if err := r.publisher.PublishPaymentVerified(ctx, events.NewPaymentVerified(payment, at)); err != nil {
		log.Printf("[PAYMENT] Failed to publish %s for %s: %v", events.PaymentVerifiedType, payment.TransactionCode, err)
	}

	log.Printf("[PAYMENT] Account %s verified by %s", payment.LinkedAccountID, payment.TransactionCode)
	return true
}
