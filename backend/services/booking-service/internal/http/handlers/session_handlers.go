package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargeslot/backend/services/booking-service/internal/models"
	"chargeslot/backend/services/booking-service/internal/service"
	"chargeslot/backend/services/booking-service/internal/ws"
)

// SessionHandlers serves charging session endpoints and the live feed.
type SessionHandlers struct {
	svc    *service.SessionService
	live   *ws.Server
	logger *zap.Logger
}

// NewSessionHandlers returns handler. live may be nil, which disables the feed route.
func NewSessionHandlers(svc *service.SessionService, live *ws.Server, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{svc: svc, live: live, logger: logger}
}

type startSessionRequest struct {
	ReservationID *int64   `json:"reservationId"`
	PillarID      int64    `json:"pillarId"`
	ConnectorID   *int64   `json:"connectorId"`
	VehicleID     int64    `json:"vehicleId"`
	TargetSoc     *float64 `json:"targetSoc"`
	PaymentMethod string   `json:"paymentMethod"`
}

type meterRequest struct {
	Energy *float64 `json:"energy"`
}

// Start handles POST /api/sessions.
func (h *SessionHandlers) Start(w http.ResponseWriter, r *http.Request) {
	driverID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.svc.Start(r.Context(), service.StartSessionInput{
		ReservationID: req.ReservationID,
		PillarID:      req.PillarID,
		ConnectorID:   req.ConnectorID,
		DriverID:      driverID,
		VehicleID:     req.VehicleID,
		TargetSoc:     req.TargetSoc,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Stop handles POST /api/sessions/{id}/stop.
func (h *SessionHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	driverID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.Stop(r.Context(), driverID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Me handles GET /api/sessions/me.
func (h *SessionHandlers) Me(w http.ResponseWriter, r *http.Request) {
	driverID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessions, err := h.svc.ListMine(r.Context(), driverID, listLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Get handles GET /api/sessions/{id}.
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	driverID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.svc.Get(r.Context(), driverID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Live handles GET /api/sessions/{id}/live, upgrading to a websocket that streams
// session snapshots.
func (h *SessionHandlers) Live(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	driverID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	session, err := h.svc.Get(r.Context(), driverID, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.live.Serve(w, r, session)
}

// Meter handles PATCH /internal/sessions/{id}/meter from the station side.
func (h *SessionHandlers) Meter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req meterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Energy == nil {
		writeError(w, http.StatusBadRequest, "energy is required")
		return
	}
	session, err := h.svc.ApplyMeterReading(r.Context(), id, *req.Energy)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
