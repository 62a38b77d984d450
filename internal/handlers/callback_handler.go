package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nnecfa/payments/internal/mpesa"
	"github.com/nnecfa/payments/internal/services"
)

// CallbackHandler receives Daraja STK callbacks. Daraja does not sign them,
// so the callback URL carries a secret path segment.
type CallbackHandler struct {
	service PaymentWorkflow
	token   []byte
}

func NewCallbackHandler(service PaymentWorkflow, token string) *CallbackHandler {
	return &CallbackHandler{service: service, token: []byte(token)}
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// HandleCallback applies a push outcome reported by M-Pesa
// @Summary M-Pesa STK Callback
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param token path string true "Callback token"
// @Success 200 {object} callbackAck
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /mpesa/callback/{token} [post]
func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	token := []byte(chi.URLParam(r, "token"))
	if len(h.token) == 0 || subtle.ConstantTimeCompare(token, h.token) != 1 {
		log.Printf("[CALLBACK] Rejected callback from %s: bad token", r.RemoteAddr)
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := h.service.HandleProviderCallback(r.Context(), body); err != nil {
		if errors.Is(err, mpesa.ErrMalformedResponse) {
			services.SendErrorResponse(w, "Invalid callback payload", http.StatusBadRequest, nil)
			return
		}
		// A paid receipt that failed to reconcile is retried by the reconcile
		// sweep. An outcome the ledger never stored leaves the request Pending
		// for a status query. A non-zero ack only makes Daraja redeliver.
		log.Printf("[CALLBACK] ERROR processing callback: %v", err)
	}

	writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}
