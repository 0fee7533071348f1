package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

// RequestContext copies the request id set by the requestid middleware into
// the user context, so service code and audit events can see it.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.GetRespHeader(fiber.HeaderXRequestID)
		c.SetUserContext(audit.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}

func statusOf(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return fiber.StatusInternalServerError
}
