package mpesa

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a provider response fails schema validation.
var ErrMalformedResponse = errors.New("malformed provider response")

// GatewayAuthError means no usable bearer token could be obtained.
type GatewayAuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa auth failed: %v", e.Err)
	}
	return fmt.Sprintf("mpesa auth failed (status %d): %s", e.StatusCode, e.Message)
}

func (e *GatewayAuthError) Unwrap() error { return e.Err }

// GatewayPushError carries the provider's reason for rejecting an STK push.
type GatewayPushError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayPushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa push failed: %v", e.Err)
	}
	return fmt.Sprintf("mpesa push rejected (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *GatewayPushError) Unwrap() error { return e.Err }

// GatewayQueryError is a status query failure that is not a pending answer.
type GatewayQueryError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa status query failed: %v", e.Err)
	}
	return fmt.Sprintf("mpesa status query rejected (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *GatewayQueryError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err originated at the provider boundary.
func IsGatewayError(err error) bool {
	var authErr *GatewayAuthError
	var pushErr *GatewayPushError
	var queryErr *GatewayQueryError
	return errors.As(err, &authErr) || errors.As(err, &pushErr) || errors.As(err, &queryErr)
}
