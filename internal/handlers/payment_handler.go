package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	mW "github.com/nnecfa/payments/internal/middleware"
	"github.com/nnecfa/payments/internal/models"
	"github.com/nnecfa/payments/internal/services"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1_048_576

// PaymentWorkflow is the part of services.PaymentService the HTTP layer uses.
type PaymentWorkflow interface {
	InitiatePush(ctx context.Context, in services.PushInput) (*services.PushResult, error)
	ConfirmPayment(ctx context.Context, transactionCode, phoneNumber, accountID string) (*services.ConfirmResult, error)
	GetRequest(ctx context.Context, checkoutRequestID, accountID string) (*models.PaymentRequest, error)
	QueryStatus(ctx context.Context, checkoutRequestID, accountID string) (*models.PaymentRequest, error)
	HandleProviderCallback(ctx context.Context, body []byte) error
}

type PaymentHandler struct {
	service       PaymentWorkflow
	validator     *services.ValidationHelper
	defaultAmount int64
}

func NewPaymentHandler(service PaymentWorkflow, defaultAmount int64) *PaymentHandler {
	return &PaymentHandler{
		service:       service,
		validator:     services.NewValidationHelper(),
		defaultAmount: defaultAmount,
	}
}

type pushRequest struct {
	PhoneNumber      string           `json:"phoneNumber" validate:"required"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	AccountReference string           `json:"accountReference" validate:"required,max=12"`
}

type confirmRequest struct {
	TransactionCode string `json:"transactionCode" validate:"required"`
	PhoneNumber     string `json:"phoneNumber" validate:"required"`
}

// InitiatePush sends an STK push to the caller's phone
// @Summary Initiate STK Push
// @Description Prompt the subscriber's phone for the registration payment
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body pushRequest true "STK push request"
// @Success 200 {object} services.PushResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payments/stkpush [post]
func (h *PaymentHandler) InitiatePush(w http.ResponseWriter, r *http.Request) {
	userID := mW.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req pushRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount := decimal.NewFromInt(h.defaultAmount)
	if req.Amount != nil {
		amount = *req.Amount
	}

	result, err := h.service.InitiatePush(r.Context(), services.PushInput{
		PhoneNumber:      req.PhoneNumber,
		Amount:           amount,
		AccountReference: req.AccountReference,
		AccountID:        userID,
	})
	if err != nil {
		services.SendWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// ConfirmPayment verifies a transaction code the user received by SMS
// @Summary Confirm Payment
// @Description Verify an M-Pesa transaction code and mark the caller's account as paid
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body confirmRequest true "Confirmation request"
// @Success 200 {object} services.ConfirmResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/confirm [post]
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID := mW.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), req.TransactionCode, req.PhoneNumber, userID)
	if err != nil {
		services.SendWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}

// GetRequest returns the ledger entry for one of the caller's pushes
// @Summary Get Payment Request
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param checkoutRequestId path string true "Checkout request ID"
// @Success 200 {object} models.PaymentRequest
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/requests/{checkoutRequestId} [get]
func (h *PaymentHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	userID := mW.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, err := h.service.GetRequest(r.Context(), chi.URLParam(r, "checkoutRequestId"), userID)
	if err != nil {
		services.SendWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    req,
	})
}

// QueryStatus asks the provider for the outcome of a pending push
// @Summary Query Payment Status
// @Description Poll M-Pesa for a push whose callback has not arrived
// @Tags Payments
// @Produce json
// @Security BearerAuth
// @Param checkoutRequestId path string true "Checkout request ID"
// @Success 200 {object} models.PaymentRequest
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /payments/requests/{checkoutRequestId}/query [post]
func (h *PaymentHandler) QueryStatus(w http.ResponseWriter, r *http.Request) {
	userID := mW.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, err := h.service.QueryStatus(r.Context(), chi.URLParam(r, "checkoutRequestId"), userID)
	if err != nil {
		services.SendWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    req,
	})
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[PAYMENT] Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
