package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the user_id a request claims to be. It doubles as the file
// name stem of the reference image.
type Identity string

// ParseIdentity trims raw and rejects values that are empty or that would
// escape the photos directory when used as a file name.
func ParseIdentity(raw string) (Identity, error) {
	id := strings.TrimSpace(raw)
	if id == "" || id == "." || id == ".." {
		return "", ErrInvalidIdentity
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return "", ErrInvalidIdentity
	}
	return Identity(id), nil
}

func (i Identity) String() string {
	return string(i)
}

// EnrollmentStatus tells whether Enroll stored a new reference image.
type EnrollmentStatus string

const (
	EnrollmentCreated       EnrollmentStatus = "ENROLLED"
	EnrollmentAlreadyExists EnrollmentStatus = "ALREADY_ENROLLED"
)

// Enrollment is the outcome of a successful Enroll call
type Enrollment struct {
	Identity  Identity         `json:"user_id"`
	Status    EnrollmentStatus `json:"status"`
	ImagePath string           `json:"img_path"`
}

// VerificationReason explains a Verification decision
type VerificationReason string

const (
	ReasonMatch              VerificationReason = "MATCH"
	ReasonNoMatch            VerificationReason = "NO_MATCH"
	ReasonAmbiguousFaceCount VerificationReason = "AMBIGUOUS_FACE_COUNT"
)

// Verification represents a verify decision (also the audit record)
type Verification struct {
	ID             uuid.UUID          `json:"id"`
	Identity       Identity           `json:"user_id"`
	Recognized     bool               `json:"recognized"`
	Reason         VerificationReason `json:"reason"`
	Score          float64            `json:"score"`
	LiveFaces      int                `json:"live_faces"`
	ReferenceFaces int                `json:"reference_faces"`
	LatencyMs      int64              `json:"latency_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}
