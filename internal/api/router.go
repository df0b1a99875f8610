package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/clinicore/session-scheduling/internal/booking"
)

type RouterConfig struct {
	Bookings *booking.Service
	Breaks   *booking.BreakWorkflow
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Log      *logrus.Entry
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/clinics/{clinicID}/doctors/{doctorName}", func(r chi.Router) {
		r.Get("/walk-in/estimate", walkInEstimateHandler(cfg.Bookings))
		r.Post("/walk-in", bookWalkInHandler(cfg.Bookings))
		r.Post("/appointments", bookAdvanceHandler(cfg.Bookings))
		r.Get("/schedule", dayScheduleHandler(cfg.Bookings))

		r.Route("/sessions/{date}/{sessionIndex}/breaks", func(r chi.Router) {
			r.Post("/prepare", prepareBreakHandler(cfg.Breaks))
			r.Post("/", commitBreakHandler(cfg.Breaks))
			r.Delete("/{breakID}", removeBreakHandler(cfg.Breaks))
		})
	})

	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))

	return r
}
