package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffing/internal/config"
	"github.com/garnizeh/staffing/internal/engine"
	"github.com/garnizeh/staffing/pkg/repository"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, eng *engine.Engine, store repository.Store) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	systemHandler := &SystemHandler{}
	h := NewHandlers(eng, store)
	otpLimiter := NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	customer := RequireRole(RoleCustomer)
	customerOrAdmin := RequireRole(RoleCustomer, RoleAdmin)
	agency := RequireRole(RoleAgency)
	admin := RequireRole(RoleAdmin)

	route := func(path string, mw mux.MiddlewareFunc, fn http.HandlerFunc) {
		apiV1.Handle(path, mw(fn)).Methods("POST")
	}

	// Reservations and contracts
	route("/workers/{id:[0-9]+}/reservations", customer, h.Reserve)
	route("/reservations/{id:[0-9]+}/cancel", customerOrAdmin, h.CancelReservation)
	route("/reservations/{id:[0-9]+}/contract", customer, h.CreateContract)
	route("/contracts/{id:[0-9]+}/complete", admin, h.CompleteContract)

	// Payments
	route("/contracts/{id:[0-9]+}/payment-sessions", customer, h.CreatePaymentSession)
	apiV1.Handle("/payment-sessions/{token}/verify", customer(otpLimiter.Middleware(http.HandlerFunc(h.VerifyPayment)))).Methods("POST")
	route("/payment-sessions/{token}/cancel", customer, h.CancelPayment)

	// Allocation
	route("/requests/{id:[0-9]+}/proposals", agency, h.SubmitProposal)
	route("/requests/{id:[0-9]+}/close", admin, h.CloseRequest)
	route("/proposals/{id:[0-9]+}/approve", admin, h.ApproveProposal)
	route("/proposals/{id:[0-9]+}/reject", admin, h.RejectProposal)
	route("/proposals/{id:[0-9]+}/withdraw", agency, h.WithdrawProposal)

	route("/admin/sweep", admin, h.Sweep)

	return r
}
