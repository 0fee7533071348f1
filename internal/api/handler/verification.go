package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

// VerificationService interface for the service
type VerificationService interface {
	Enroll(ctx context.Context, id domain.Identity) (*domain.Enrollment, error)
	Verify(ctx context.Context, id domain.Identity) (*domain.Verification, error)
	Check(ctx context.Context, id domain.Identity) (bool, error)
}

// VerificationHandler serves the capture, detect and check routes
type VerificationHandler struct {
	service         VerificationService
	defaultIdentity string
}

// NewVerificationHandler creates a handler. defaultIdentity is used by the
// single-user routes that carry no user_id.
func NewVerificationHandler(service VerificationService, defaultIdentity string) *VerificationHandler {
	return &VerificationHandler{
		service:         service,
		defaultIdentity: defaultIdentity,
	}
}

// CaptureResponse response for capture endpoint
type CaptureResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	ImgPath string `json:"img_path"`
}

// DetectResponse response for detect endpoint
type DetectResponse struct {
	Message        string  `json:"message"`
	UserID         string  `json:"user_id"`
	Recognized     bool    `json:"recognized"`
	Score          float64 `json:"score"`
	Reason         string  `json:"reason"`
	VerificationID string  `json:"verification_id"`
	LatencyMs      int64   `json:"latency_ms"`
}

// CheckResponse response for check endpoint
type CheckResponse struct {
	Message string `json:"message"`
	Exists  bool   `json:"exists"`
}

const (
	msgImageSaved        = "image read and saved"
	msgImageExists       = "image already exists"
	msgFacesIdentical    = "faces identical"
	msgFacesNotIdentical = "faces not identical"
	msgAmbiguousFaces    = "ambiguous face count"
	msgReferenceExists   = "image exists"
	msgReferenceMissing  = "image does not exist"
)

// Capture POST /capture/:user_id - enroll the reference image of a user
func (h *VerificationHandler) Capture(c *fiber.Ctx) error {
	id, err := h.identity(c)
	if err != nil {
		return err
	}

	enrollment, err := h.service.Enroll(c.UserContext(), id)
	if err != nil {
		return err
	}

	message := msgImageSaved
	if enrollment.Status == domain.EnrollmentAlreadyExists {
		message = msgImageExists
	}

	return c.JSON(CaptureResponse{
		Message: message,
		UserID:  enrollment.Identity.String(),
		Status:  string(enrollment.Status),
		ImgPath: enrollment.ImagePath,
	})
}

// Detect POST /detect/:user_id - verify a live frame against the reference
func (h *VerificationHandler) Detect(c *fiber.Ctx) error {
	id, err := h.identity(c)
	if err != nil {
		return err
	}

	verification, err := h.service.Verify(c.UserContext(), id)
	if err != nil {
		return err
	}

	message := msgFacesNotIdentical
	switch {
	case verification.Reason == domain.ReasonAmbiguousFaceCount:
		message = msgAmbiguousFaces
	case verification.Recognized:
		message = msgFacesIdentical
	}

	return c.JSON(DetectResponse{
		Message:        message,
		UserID:         verification.Identity.String(),
		Recognized:     verification.Recognized,
		Score:          verification.Score,
		Reason:         string(verification.Reason),
		VerificationID: verification.ID.String(),
		LatencyMs:      verification.LatencyMs,
	})
}

// Check GET /check/:user_id - reference image existence probe
func (h *VerificationHandler) Check(c *fiber.Ctx) error {
	id, err := domain.ParseIdentity(c.Params("user_id"))
	if err != nil {
		return err
	}

	exists, err := h.service.Check(c.UserContext(), id)
	if err != nil {
		return err
	}

	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(CheckResponse{
			Message: msgReferenceMissing,
			Exists:  false,
		})
	}

	return c.JSON(CheckResponse{
		Message: msgReferenceExists,
		Exists:  true,
	})
}

// identity reads user_id from the path, falling back to the configured
// default identity on the single-user routes.
func (h *VerificationHandler) identity(c *fiber.Ctx) (domain.Identity, error) {
	raw := c.Params("user_id")
	if raw == "" {
		raw = h.defaultIdentity
	}
	return domain.ParseIdentity(raw)
}
