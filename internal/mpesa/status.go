package mpesa

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// StatusKind is the tagged outcome of a push, from a query or a callback.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusSuccess
	StatusFailure
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Provider error code returned while the subscriber has not yet answered the prompt.
const pendingErrorCode = "500.001.1001"

var schema = validator.New()

// StatusResult is built only from a schema-validated query response.
type StatusResult struct {
	Kind              StatusKind
	ResultCode        string
	ResultDesc        string
	MerchantRequestID string
	CheckoutRequestID string
}

type queryResponse struct {
	ResponseCode        string `json:"ResponseCode" validate:"required"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID" validate:"required"`
	ResultCode          string `json:"ResultCode" validate:"required"`
	ResultDesc          string `json:"ResultDesc"`
}

func (q *queryResponse) toResult() StatusResult {
	kind := StatusFailure
	if q.ResultCode == "0" {
		kind = StatusSuccess
	}
	return StatusResult{
		Kind:              kind,
		ResultCode:        q.ResultCode,
		ResultDesc:        q.ResultDesc,
		MerchantRequestID: q.MerchantRequestID,
		CheckoutRequestID: q.CheckoutRequestID,
	}
}

// errorResponse is Daraja's generic error body.
type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CallbackResult is a validated STK callback.
type CallbackResult struct {
	Kind              StatusKind
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            decimal.Decimal
	ReceiptNumber     string
	PhoneNumber       string
	TransactionDate   time.Time
}

type callbackEnvelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback" validate:"required"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID" validate:"required"`
	CheckoutRequestID string `json:"CheckoutRequestID" validate:"required"`
	ResultCode        *int   `json:"ResultCode" validate:"required"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes and validates an STK callback body. Successful
// callbacks must carry a receipt number and an amount.
func ParseCallback(body []byte) (*CallbackResult, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := schema.Struct(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	cb := env.Body.StkCallback
	result := &CallbackResult{
		Kind:              StatusFailure,
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if result.ResultCode != 0 {
		return result, nil
	}

	result.Kind = StatusSuccess
	if cb.CallbackMetadata == nil {
		return nil, fmt.Errorf("%w: success callback without metadata", ErrMalformedResponse)
	}

	for _, item := range cb.CallbackMetadata.Item {
		value := itemString(item.Value)
		switch item.Name {
		case "Amount":
			amount, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("%w: amount %q", ErrMalformedResponse, value)
			}
			result.Amount = amount
		case "MpesaReceiptNumber":
			result.ReceiptNumber = value
		case "PhoneNumber":
			result.PhoneNumber = value
		case "TransactionDate":
			if ts, err := time.ParseInLocation(timestampLayout, value, nairobi); err == nil {
				result.TransactionDate = ts
			}
		}
	}

	if result.ReceiptNumber == "" {
		return nil, fmt.Errorf("%w: success callback without receipt number", ErrMalformedResponse)
	}
	if !result.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: success callback without amount", ErrMalformedResponse)
	}

	return result, nil
}

// itemString renders a metadata value as text; Daraja sends phone numbers and
// dates as bare JSON numbers.
func itemString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// flexibleSeconds accepts expires_in as either "3599" or 3599.
type flexibleSeconds int64

func (f *flexibleSeconds) UnmarshalJSON(b []byte) error {
	s := itemString(b)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q: %w", s, err)
	}
	*f = flexibleSeconds(n)
	return nil
}
