package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response. Validator field errors and
// ValidationError are both rendered into Details.
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}

	var fieldErrs validator.ValidationErrors
	var workflowErr *ValidationError
	switch {
	case errors.As(validationErr, &fieldErrs):
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	case errors.As(validationErr, &workflowErr):
		errorResp.Details = map[string]string{workflowErr.Field: workflowErr.Message}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendWorkflowError writes err using the payment error taxonomy. Internal
// failures are logged with their cause and reported generically.
func SendWorkflowError(w http.ResponseWriter, err error) {
	status, message := ClassifyError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[PAYMENT] ERROR %d: %v", status, err)
	}
	SendErrorResponse(w, message, status, err)
}
