package handlers

import (
	"context"
	"net/http"

	"github.com/nnecfa/payments/internal/services"
)

type InstructionsProvider interface {
	GetInstructions(ctx context.Context, accountReference string) (*services.PaymentInstructions, error)
}

type InstructionsHandler struct {
	service InstructionsProvider
}

func NewInstructionsHandler(service InstructionsProvider) *InstructionsHandler {
	return &InstructionsHandler{service: service}
}

// GetInstructions returns paybill details and a scannable QR code
// @Summary Paybill Instructions
// @Description How to pay the paybill directly and confirm with the SMS code
// @Tags Payments
// @Produce json
// @Param reference query string true "Account reference"
// @Success 200 {object} services.PaymentInstructions
// @Failure 400 {object} services.ErrorResponse
// @Router /payments/instructions [get]
func (h *InstructionsHandler) GetInstructions(w http.ResponseWriter, r *http.Request) {
	instructions, err := h.service.GetInstructions(r.Context(), r.URL.Query().Get("reference"))
	if err != nil {
		services.SendWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    instructions,
	})
}
