package handler

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/database"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Pinger is satisfied by *pgxpool.Pool.
type Pinger = database.Pinger

type HealthHandler struct {
	db          Pinger
	pingTimeout time.Duration
	logger      *slog.Logger
}

// NewHealthHandler creates a health handler. db may be nil when the service
// runs without Postgres.
func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		pingTimeout: database.DefaultHealthCheckTimeout,
		logger:      logger,
	}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Database string `json:"database,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db == nil {
		return c.JSON(HealthResponse{Status: "ready"})
	}

	if err := database.HealthCheck(c.UserContext(), h.db, h.pingTimeout); err != nil {
		h.logger.WarnContext(c.UserContext(), "readiness check failed", slog.String("error", err.Error()))
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:   "unavailable",
			Database: "down",
		})
	}

	return c.JSON(HealthResponse{
		Status:   "ready",
		Database: "up",
	})
}
