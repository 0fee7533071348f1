package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// VerificationHistory reads the verification log
type VerificationHistory interface {
	ListByIdentity(ctx context.Context, id domain.Identity, limit int) ([]domain.Verification, error)
}

// HistoryHandler serves the verification log of a user
type HistoryHandler struct {
	history VerificationHistory
}

func NewHistoryHandler(history VerificationHistory) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// HistoryResponse response for the history endpoint
type HistoryResponse struct {
	UserID        string                `json:"user_id"`
	Verifications []domain.Verification `json:"verifications"`
}

// List GET /verifications/:user_id?limit=N - latest decisions, newest first
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	id, err := domain.ParseIdentity(c.Params("user_id"))
	if err != nil {
		return err
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return err
	}

	verifications, err := h.history.ListByIdentity(c.UserContext(), id, limit)
	if err != nil {
		return fmt.Errorf("list verifications: %w", err)
	}
	if verifications == nil {
		verifications = []domain.Verification{}
	}

	return c.JSON(HistoryResponse{
		UserID:        id.String(),
		Verifications: verifications,
	})
}

// parseLimit accepts an empty value or an integer within [1, maxHistoryLimit].
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		return 0, domain.ErrValidationFailed.WithError(
			fmt.Errorf("limit must be an integer between 1 and %d, got %q", maxHistoryLimit, raw))
	}
	return limit, nil
}
