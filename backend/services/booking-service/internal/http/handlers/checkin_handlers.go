package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/service"
)

// CheckInHandlers serves token issue and verification.
type CheckInHandlers struct {
	svc    *service.CheckInService
	logger *zap.Logger
}

// NewCheckInHandlers returns handler.
func NewCheckInHandlers(svc *service.CheckInService, logger *zap.Logger) *CheckInHandlers {
	return &CheckInHandlers{svc: svc, logger: logger}
}

type issueTokenRequest struct {
	ReservationID int64 `json:"reservationId"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

// Issue handles POST /api/checkin/tokens.
func (h *CheckInHandlers) Issue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req issueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReservationID <= 0 {
		writeError(w, http.StatusBadRequest, "reservationId is required")
		return
	}
	issued, err := h.svc.Issue(r.Context(), userID, req.ReservationID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

// Verify handles POST /api/checkin/verify. A token of another driver reads as a bad request.
func (h *CheckInHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req verifyTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.Verify(r.Context(), userID, req.Token)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
