package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/http/middleware"
	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/service"
)

// Callback acknowledgement codes. The gateway always receives HTTP 200.
const (
	CallbackOK               = "OK"
	CallbackInvalidSignature = "INVALID_SIGNATURE"
	CallbackAmountMismatch   = "AMOUNT_MISMATCH"
	CallbackTxnNotFound      = "TXN_NOT_FOUND"
	CallbackUnknownError     = "UNKNOWN_ERROR"
)

// PaymentHandlers serves payment intents, cash confirmation and the gateway callback.
type PaymentHandlers struct {
	svc    *service.PaymentService
	wallet *service.WalletService
	logger *zap.Logger
}

// NewPaymentHandlers returns handler.
func NewPaymentHandlers(svc *service.PaymentService, wallet *service.WalletService, logger *zap.Logger) *PaymentHandlers {
	return &PaymentHandlers{svc: svc, wallet: wallet, logger: logger}
}

type createPaymentRequest struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Method      string `json:"method"`
	ReferenceID *int64 `json:"referenceId"`
	Description string `json:"description"`
}

type paymentResponse struct {
	PaymentID  int64                `json:"paymentId"`
	TxnRef     string               `json:"txnRef"`
	Amount     int64                `json:"amount"`
	Type       models.PaymentType   `json:"type"`
	Method     models.PaymentMethod `json:"method"`
	Status     models.PaymentStatus `json:"status"`
	PaymentURL string               `json:"paymentUrl,omitempty"`
	ExpiresAt  *time.Time           `json:"expiresAt,omitempty"`
}

func newPaymentResponse(p *models.Payment, paymentURL string) paymentResponse {
	return paymentResponse{
		PaymentID:  p.ID,
		TxnRef:     p.TxnRef,
		Amount:     p.Amount,
		Type:       p.Type,
		Method:     p.Method,
		Status:     p.Status,
		PaymentURL: paymentURL,
		ExpiresAt:  p.ExpiresAt,
	}
}

// Create handles POST /api/payments.
func (h *PaymentHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	paymentType, err := models.ParsePaymentType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	method, err := models.ParsePaymentMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Create(r.Context(), service.CreatePaymentInput{
		UserID:      userID,
		Type:        paymentType,
		Method:      method,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		Description: req.Description,
		ClientIP:    middleware.ClientIP(r),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPaymentResponse(result.Payment, result.PaymentURL))
}

// Me handles GET /api/payments/me.
func (h *PaymentHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	payments, err := h.svc.ListMine(r.Context(), userID, listLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// ConfirmCash handles POST /api/payments/{id}/confirm-cash for staff.
func (h *PaymentHandlers) ConfirmCash(w http.ResponseWriter, r *http.Request) {
	staffID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payment, err := h.svc.ConfirmCash(r.Context(), staffID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(payment, ""))
}

// Wallet handles GET /api/wallet.
func (h *PaymentHandlers) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallet.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// Callback handles GET|POST /payments/callback. Parameters arrive in the query string or
// as a form body; the response is always 200 with a code.
func (h *PaymentHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unreadable gateway callback", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"code": CallbackUnknownError})
		return
	}
	params := make(map[string]string, len(r.Form))
	for key, values := range r.Form {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	err := h.svc.HandleGatewayCallback(r.Context(), params)
	writeJSON(w, http.StatusOK, map[string]string{"code": callbackCode(err, h.logger)})
}

func callbackCode(err error, logger *zap.Logger) string {
	switch {
	case err == nil:
		return CallbackOK
	case errors.Is(err, service.ErrInvalidSignature):
		return CallbackInvalidSignature
	case errors.Is(err, service.ErrAmountMismatch):
		return CallbackAmountMismatch
	case errors.Is(err, service.ErrNotFound):
		return CallbackTxnNotFound
	default:
		logger.Error("gateway callback failed", zap.Error(err))
		return CallbackUnknownError
	}
}
