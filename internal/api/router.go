package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service))

	r.Post("/holds", placeHoldHandler(cfg.Service))
	r.Delete("/holds/{id}", releaseHoldHandler(cfg.Service))
	r.Post("/holds/{id}/book", bookHandler(cfg.Service))

	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Service, appointment.StatusCancelled))
	r.Post("/appointments/{id}/check-in", transitionHandler(cfg.Service, appointment.StatusCheckedIn))
	r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service, appointment.StatusCompleted))
	r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Service, appointment.StatusNoShow))

	r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Service))

	return r
}
