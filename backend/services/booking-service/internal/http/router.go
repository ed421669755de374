package httpserver

import (
	"net/http"

	"chargeslot/backend/services/booking-service/internal/http/handlers"
	"chargeslot/backend/services/booking-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Reservations *handlers.ReservationHandlers
	CheckIn      *handlers.CheckInHandlers
	Sessions     *handlers.SessionHandlers
	Payments     *handlers.PaymentHandlers
	Health       http.HandlerFunc
}

// NewRouter wires HTTP routes. limiter may be nil.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()

	authenticated := func(handler http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		return middleware.Chain(handler, append([]func(http.Handler) http.Handler{authMiddleware}, extra...)...)
	}
	limited := func(handler http.Handler) http.Handler {
		if limiter == nil {
			return handler
		}
		return limiter.Middleware(handler)
	}

	mux.Handle("GET /health", deps.Health)

	mux.Handle("POST /api/reservations", authenticated(deps.Reservations.Create))
	mux.Handle("GET /api/reservations/me", authenticated(deps.Reservations.Me))
	mux.Handle("GET /api/reservations/{id}", authenticated(deps.Reservations.Get))
	mux.Handle("POST /api/reservations/{id}/cancel", authenticated(deps.Reservations.Cancel))

	mux.Handle("POST /api/checkin/tokens", authenticated(deps.CheckIn.Issue))
	mux.Handle("POST /api/checkin/verify", limited(authenticated(deps.CheckIn.Verify)))

	mux.Handle("POST /api/sessions", authenticated(deps.Sessions.Start))
	mux.Handle("GET /api/sessions/me", authenticated(deps.Sessions.Me))
	mux.Handle("GET /api/sessions/{id}", authenticated(deps.Sessions.Get))
	mux.Handle("GET /api/sessions/{id}/live", authenticated(deps.Sessions.Live))
	mux.Handle("POST /api/sessions/{id}/stop", authenticated(deps.Sessions.Stop))
	mux.Handle("PATCH /internal/sessions/{id}/meter", authenticated(deps.Sessions.Meter, middleware.RequireRole(middleware.RoleStation)))

	mux.Handle("POST /api/payments", authenticated(deps.Payments.Create))
	mux.Handle("GET /api/payments/me", authenticated(deps.Payments.Me))
	mux.Handle("POST /api/payments/{id}/confirm-cash", authenticated(deps.Payments.ConfirmCash, middleware.RequireRole(middleware.RoleStaff)))
	mux.Handle("GET /api/wallet", authenticated(deps.Payments.Wallet))

	callback := limited(http.HandlerFunc(deps.Payments.Callback))
	mux.Handle("GET /payments/callback", callback)
	mux.Handle("POST /payments/callback", callback)

	return mux
}
