package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nnecfa/payments/internal/models"
)

// Ledger is the single source of truth for payment requests and confirmed
// payments.
type Ledger interface {
	RecordPendingRequest(ctx context.Context, req *models.PaymentRequest) error
	GetRequest(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error)
	MarkRequestOutcome(ctx context.Context, checkoutRequestID string, outcome models.RequestOutcome) (*models.PaymentRequest, error)
	RecordConfirmedPayment(ctx context.Context, payment models.ConfirmedPayment) (*models.ConfirmedPayment, bool, error)
	LookupByCode(ctx context.Context, transactionCode string) (*models.ConfirmedPayment, error)
	FindRequestByReceipt(ctx context.Context, receiptNumber string) (*models.PaymentRequest, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error)
	MarkFlagApplied(ctx context.Context, transactionCode string) error
	ListUnappliedFlags(ctx context.Context, limit int) ([]models.ConfirmedPayment, error)
	ListUnreconciledReceipts(ctx context.Context, limit int) ([]models.PaymentRequest, error)
	MarkReconcileRejected(ctx context.Context, checkoutRequestID, reason string) error
}

const uniqueViolation = "23505"

const requestColumns = `id, phone_number, amount, account_reference, account_id, merchant_request_id,
	checkout_request_id, status, result_code, result_desc, receipt_number, created_at, updated_at`

const paymentColumns = `transaction_code, phone_number, amount, linked_account_id, source, flag_applied, confirmed_at`

type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{
		db:  db,
		now: time.Now,
	}
}

// RecordPendingRequest stores a new request. Status is always Pending on insert.
func (l *PostgresLedger) RecordPendingRequest(ctx context.Context, req *models.PaymentRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	now := l.now()
	req.Status = models.PaymentStatusPending
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, phone_number, amount, account_reference, account_id,
			merchant_request_id, checkout_request_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.PhoneNumber, req.Amount, req.AccountReference, req.AccountID,
		req.MerchantRequestID, req.CheckoutRequestID, string(req.Status), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[LEDGER] ERROR duplicate payment request checkout=%s", req.CheckoutRequestID)
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.CheckoutRequestID)
		}
		return fmt.Errorf("failed to record payment request: %w", err)
	}

	log.Printf("[LEDGER] Recorded pending request id=%s checkout=%s", req.ID, req.CheckoutRequestID)
	return nil
}

func (l *PostgresLedger) GetRequest(ctx context.Context, checkoutRequestID string) (*models.PaymentRequest, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE checkout_request_id = $1`, checkoutRequestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment request: %w", err)
	}
	return req, nil
}

// MarkRequestOutcome moves a Pending request to a terminal state. Repeating the
// same terminal outcome is a no-op, except that a Completed request with no
// receipt takes the receipt of a later success. A conflicting outcome is an
// InvalidTransitionError and the stored row is left untouched.
func (l *PostgresLedger) MarkRequestOutcome(ctx context.Context, checkoutRequestID string, outcome models.RequestOutcome) (*models.PaymentRequest, error) {
	if !outcome.Status.IsTerminal() {
		return nil, fmt.Errorf("outcome status %q is not terminal", outcome.Status)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM payment_requests WHERE checkout_request_id = $1 FOR UPDATE`, checkoutRequestID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment request: %w", err)
	}

	if req.Status.IsTerminal() {
		if req.Status != outcome.Status {
			transitionErr := &InvalidTransitionError{CheckoutRequestID: checkoutRequestID, From: req.Status, To: outcome.Status}
			log.Printf("[LEDGER] ERROR %v", transitionErr)
			return req, transitionErr
		}
		if !needsReceipt(req, outcome) {
			return req, nil
		}
		return l.fillReceipt(ctx, tx, req, outcome.ReceiptNumber)
	}

	now := l.now()
	_, err = tx.ExecContext(ctx, `
		UPDATE payment_requests
		SET status = $1, result_code = $2, result_desc = $3, receipt_number = $4, updated_at = $5
		WHERE checkout_request_id = $6`,
		string(outcome.Status), outcome.ResultCode, outcome.ResultDesc, outcome.ReceiptNumber, now, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	req.Status = outcome.Status
	req.ResultCode = outcome.ResultCode
	req.ResultDesc = outcome.ResultDesc
	req.ReceiptNumber = outcome.ReceiptNumber
	req.UpdatedAt = now

	log.Printf("[LEDGER] Request %s marked %s", checkoutRequestID, outcome.Status)
	return req, nil
}

// needsReceipt reports whether a repeated Completed outcome carries the receipt
// that the first one (a status query) could not.
func needsReceipt(req *models.PaymentRequest, outcome models.RequestOutcome) bool {
	return req.Status == models.PaymentStatusCompleted && req.ReceiptNumber == "" && outcome.ReceiptNumber != ""
}

func (l *PostgresLedger) fillReceipt(ctx context.Context, tx *sql.Tx, req *models.PaymentRequest, receiptNumber string) (*models.PaymentRequest, error) {
	now := l.now()
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_requests SET receipt_number = $1, updated_at = $2
		WHERE checkout_request_id = $3 AND receipt_number = ''`,
		receiptNumber, now, req.CheckoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	req.ReceiptNumber = receiptNumber
	req.UpdatedAt = now

	log.Printf("[LEDGER] Request %s receipt stored: %s", req.CheckoutRequestID, receiptNumber)
	return req, nil
}

// RecordConfirmedPayment inserts the payment and lets the unique index on
// transaction_code decide the race. The bool reports whether a new row was
// written. A loser re-reads the winner: same account is an idempotent success,
// another account is ErrTransactionCodeReuse.
func (l *PostgresLedger) RecordConfirmedPayment(ctx context.Context, payment models.ConfirmedPayment) (*models.ConfirmedPayment, bool, error) {
	payment.ConfirmedAt = l.now()
	payment.FlagApplied = false

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO confirmed_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, false, $6)`,
		payment.TransactionCode, payment.PhoneNumber, payment.Amount, payment.LinkedAccountID,
		string(payment.Source), payment.ConfirmedAt)
	if err == nil {
		log.Printf("[LEDGER] Confirmed payment code=%s account=%s source=%s", payment.TransactionCode, payment.LinkedAccountID, payment.Source)
		return &payment, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("failed to record confirmed payment: %w", err)
	}

	existing, err := l.LookupByCode(ctx, payment.TransactionCode)
	if err != nil {
		return nil, false, fmt.Errorf("failed to re-read confirmed payment: %w", err)
	}
	if existing.LinkedAccountID != payment.LinkedAccountID {
		log.Printf("[LEDGER] Code %s already linked to another account, rejected for %s", payment.TransactionCode, payment.LinkedAccountID)
		return nil, false, ErrTransactionCodeReuse
	}

	return existing, false, nil
}

func (l *PostgresLedger) LookupByCode(ctx context.Context, transactionCode string) (*models.ConfirmedPayment, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM confirmed_payments WHERE transaction_code = $1`, transactionCode)
	payment, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction code: %w", err)
	}
	return payment, nil
}

// FindRequestByReceipt returns the completed push that produced receiptNumber.
func (l *PostgresLedger) FindRequestByReceipt(ctx context.Context, receiptNumber string) (*models.PaymentRequest, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM payment_requests
		WHERE receipt_number = $1 AND status = $2
		LIMIT 1`, receiptNumber, string(models.PaymentStatusCompleted))
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up receipt: %w", err)
	}
	return req, nil
}

// ExpireStale moves every Pending request created before cutoff to Expired.
// The status predicate makes each request expire at most once.
func (l *PostgresLedger) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		UPDATE payment_requests
		SET status = $1, result_desc = $2, updated_at = $3
		WHERE status = $4 AND created_at < $5
		RETURNING checkout_request_id`,
		string(models.PaymentStatusExpired), "no resolution within expiry window", l.now(),
		string(models.PaymentStatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale requests: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		expired = append(expired, id)
	}

	return expired, rows.Err()
}

func (l *PostgresLedger) MarkFlagApplied(ctx context.Context, transactionCode string) error {
	_, err := l.db.ExecContext(ctx, `UPDATE confirmed_payments SET flag_applied = true WHERE transaction_code = $1`, transactionCode)
	if err != nil {
		return fmt.Errorf("failed to mark flag applied: %w", err)
	}
	return nil
}

// ListUnappliedFlags returns confirmed payments whose account flag write has
// not been acknowledged yet, oldest first.
func (l *PostgresLedger) ListUnappliedFlags(ctx context.Context, limit int) ([]models.ConfirmedPayment, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM confirmed_payments
		WHERE flag_applied = false
		ORDER BY confirmed_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unapplied flags: %w", err)
	}
	defer rows.Close()

	var payments []models.ConfirmedPayment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}

	return payments, rows.Err()
}

// ListUnreconciledReceipts returns completed pushes for a known account whose
// receipt never made it into confirmed_payments, oldest first. Requests with a
// recorded permanent rejection are skipped.
func (l *PostgresLedger) ListUnreconciledReceipts(ctx context.Context, limit int) ([]models.PaymentRequest, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM payment_requests r
		WHERE r.status = $1 AND r.receipt_number <> '' AND r.account_id <> ''
			AND r.reconcile_rejected_at IS NULL
			AND NOT EXISTS (SELECT 1 FROM confirmed_payments c WHERE c.transaction_code = r.receipt_number)
		ORDER BY r.updated_at
		LIMIT $2`, string(models.PaymentStatusCompleted), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreconciled receipts: %w", err)
	}
	defer rows.Close()

	var requests []models.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}

	return requests, rows.Err()
}

// MarkReconcileRejected records why a request's receipt can never be confirmed.
func (l *PostgresLedger) MarkReconcileRejected(ctx context.Context, checkoutRequestID, reason string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE payment_requests SET reconcile_rejected_at = $1, reconcile_error = $2
		WHERE checkout_request_id = $3`,
		l.now(), reason, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("failed to mark reconcile rejection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRequestNotFound
	}

	log.Printf("[LEDGER] Request %s will not be reconciled: %s", checkoutRequestID, reason)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	var status string
	err := row.Scan(&req.ID, &req.PhoneNumber, &req.Amount, &req.AccountReference, &req.AccountID,
		&req.MerchantRequestID, &req.CheckoutRequestID, &status, &req.ResultCode, &req.ResultDesc,
		&req.ReceiptNumber, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Status = models.PaymentStatus(status)
	return &req, nil
}

func scanPayment(row scanner) (*models.ConfirmedPayment, error) {
	var payment models.ConfirmedPayment
	var source string
	err := row.Scan(&payment.TransactionCode, &payment.PhoneNumber, &payment.Amount, &payment.LinkedAccountID,
		&source, &payment.FlagApplied, &payment.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	payment.Source = models.ConfirmationSource(source)
	return &payment, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
