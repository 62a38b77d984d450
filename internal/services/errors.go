package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nnecfa/payments/internal/models"
	"github.com/nnecfa/payments/internal/mpesa"
)

// GenericPaymentError is shown to users for every failure that is not their input.
const GenericPaymentError = "payment verification failed, please try again or contact support"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionCodeReuse = errors.New("this code was already used")
	ErrRateLimited          = errors.New("too many payment requests for this phone number, please wait a few minutes")
	ErrDuplicateRequest     = errors.New("payment request already recorded")
	ErrRequestNotFound      = errors.New("payment request not found")
	ErrPaymentNotFound      = errors.New("confirmed payment not found")
)

// ValidationError is bad caller input. It is never retryable as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidTransitionError means something tried to move a terminal payment
// request into a different terminal state.
type InvalidTransitionError struct {
	CheckoutRequestID string
	From              models.PaymentStatus
	To                models.PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.CheckoutRequestID, e.From, e.To)
}

// ClassifyError maps a workflow error to an HTTP status and the message the
// user is allowed to see.
func ClassifyError(err error) (int, string) {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, ErrTransactionCodeReuse):
		return http.StatusConflict, ErrTransactionCodeReuse.Error()
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound, ErrAccountNotFound.Error()
	case errors.Is(err, ErrRequestNotFound):
		return http.StatusNotFound, ErrRequestNotFound.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrRateLimited.Error()
	case mpesa.IsGatewayError(err):
		return http.StatusBadGateway, GenericPaymentError
	default:
		return http.StatusInternalServerError, GenericPaymentError
	}
}
