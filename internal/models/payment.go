package models

import (
	"time"
)

// PaymentStatus is the lifecycle state of an STK push request
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusExpired   PaymentStatus = "Expired"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusExpired
}

func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPending || s.IsTerminal()
}

// ConfirmationSource records which path produced a confirmed payment
type ConfirmationSource string

const (
	SourceManual   ConfirmationSource = "manual"
	SourceCallback ConfirmationSource = "callback"
)

// PaymentRequest is one STK push and its outcome. Rows are never deleted.
type PaymentRequest struct {
	ID                string        `json:"id" db:"id"`
	PhoneNumber       string        `json:"phoneNumber" db:"phone_number"`
	Amount            int64         `json:"amount" db:"amount"` // whole KES
	AccountReference  string        `json:"accountReference" db:"account_reference"`
	AccountID         string        `json:"accountId,omitempty" db:"account_id"`
	MerchantRequestID string        `json:"merchantRequestId" db:"merchant_request_id"`
	CheckoutRequestID string        `json:"checkoutRequestId" db:"checkout_request_id"`
	Status            PaymentStatus `json:"status" db:"status"`
	ResultCode        string        `json:"resultCode,omitempty" db:"result_code"`
	ResultDesc        string        `json:"resultDesc,omitempty" db:"result_desc"`
	ReceiptNumber     string        `json:"receiptNumber,omitempty" db:"receipt_number"`
	CreatedAt         time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time     `json:"updatedAt" db:"updated_at"`
}

// RequestOutcome is the terminal result applied to a pending request
type RequestOutcome struct {
	Status        PaymentStatus
	ResultCode    string
	ResultDesc    string
	ReceiptNumber string
}

// ConfirmedPayment proves one real-world payment verified one account.
type ConfirmedPayment struct {
	TransactionCode string             `json:"transactionCode" db:"transaction_code"`
	PhoneNumber     string             `json:"phoneNumber" db:"phone_number"`
	Amount          int64              `json:"amount" db:"amount"`
	LinkedAccountID string             `json:"linkedAccountId" db:"linked_account_id"`
	Source          ConfirmationSource `json:"source" db:"source"`
	FlagApplied     bool               `json:"-" db:"flag_applied"`
	ConfirmedAt     time.Time          `json:"confirmedAt" db:"confirmed_at"`
}
