package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// backlogLimit is the queued event count at which readiness reports degraded.
const backlogLimit = 512

type HealthHandler struct {
	pg      Pinger
	redis   *redis.Client
	backlog func() int
	pool    func() db.PoolStats
	env     string
	version string
}

// NewHealthHandler builds the liveness and readiness checks. redis, backlog and pool may be nil.
func NewHealthHandler(pg Pinger, redis *redis.Client, backlog func() int, pool func() db.PoolStats, env, version string) *HealthHandler {
	return &HealthHandler{
		pg:      pg,
		redis:   redis,
		backlog: backlog,
		pool:    pool,
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	EventBacklog int               `json:"event_backlog"`
	Pool         *db.PoolStats     `json:"pool,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness fails only when Postgres is down. Redis and the event backlog
// degrade the status because booking stays correct without them.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	pgCtx, pgCancel := context.WithTimeout(ctx, 1*time.Second)
	err := h.pg.Ping(pgCtx)
	pgCancel()
	if err != nil {
		deps["postgres"] = "down"
		status = "error"
	} else {
		deps["postgres"] = "ok"
	}

	degrade := func() {
		if status == "ok" {
			status = "degraded"
		}
	}

	switch {
	case h.redis == nil:
		deps["redis"] = "disabled"
	default:
		redisCtx, redisCancel := context.WithTimeout(ctx, 1*time.Second)
		err = h.redis.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			deps["redis"] = "down"
			degrade()
		} else {
			deps["redis"] = "ok"
		}
	}

	backlog := 0
	if h.backlog != nil {
		backlog = h.backlog()
		if backlog >= backlogLimit {
			deps["events"] = "backlogged"
			degrade()
		} else {
			deps["events"] = "ok"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
		EventBacklog: backlog,
	}
	if h.pool != nil {
		stats := h.pool()
		resp.Pool = &stats
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, resp)
}
