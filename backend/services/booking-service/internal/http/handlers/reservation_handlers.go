package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/service"
)

// ReservationHandlers serves the reservation endpoints.
type ReservationHandlers struct {
	svc    *service.ReservationService
	logger *zap.Logger
}

// NewReservationHandlers returns handler.
func NewReservationHandlers(svc *service.ReservationService, logger *zap.Logger) *ReservationHandlers {
	return &ReservationHandlers{svc: svc, logger: logger}
}

type createReservationRequest struct {
	StationID   int64     `json:"stationId"`
	PillarID    int64     `json:"pillarId"`
	ConnectorID int64     `json:"connectorId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// Create handles POST /api/reservations.
func (h *ReservationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createReservationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reservation, err := h.svc.Create(r.Context(), service.CreateReservationInput{
		UserID:      userID,
		StationID:   req.StationID,
		PillarID:    req.PillarID,
		ConnectorID: req.ConnectorID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

// Me handles GET /api/reservations/me.
func (h *ReservationHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	reservations, err := h.svc.ListMine(r.Context(), userID, listLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": reservations})
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reservation, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

// Cancel handles POST /api/reservations/{id}/cancel.
func (h *ReservationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reservation, err := h.svc.Cancel(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}
