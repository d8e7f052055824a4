package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

type RouterConfig struct {
	Service *reservation.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(SessionMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Patient reservations
	r.Post("/reservations", reserveHandler(cfg.Service))

	// Appointments for the logged-in user
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Service))

	// Caregiver-side mutations
	r.Post("/availabilities", publishAvailabilityHandler(cfg.Service))
	r.Post("/vaccines", addDosesHandler(cfg.Service))

	// Read-only lookups
	r.Get("/vaccines/{name}", getVaccineHandler(cfg.Service))
	r.Get("/schedule", scheduleHandler(cfg.Service))

	return r
}
