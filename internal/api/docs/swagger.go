package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// CaptureResponse represents the response of an enroll request
type CaptureResponse struct {
	Message string `json:"message" example:"image read and saved"`
	UserID  string `json:"user_id" example:"alice"`
	Status  string `json:"status" example:"ENROLLED"`
	ImgPath string `json:"img_path" example:"photos/alice.png"`
}

// DetectResponse represents the decision of a verify request
type DetectResponse struct {
	Message        string  `json:"message" example:"faces identical"`
	UserID         string  `json:"user_id" example:"alice"`
	Recognized     bool    `json:"recognized" example:"true"`
	Score          float64 `json:"score" example:"0.82"`
	Reason         string  `json:"reason" example:"MATCH"`
	VerificationID string  `json:"verification_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	LatencyMs      int64   `json:"latency_ms" example:"640"`
}

// CheckResponse represents the reference image existence probe
type CheckResponse struct {
	Message string `json:"message" example:"image exists"`
	Exists  bool   `json:"exists" example:"true"`
}

// VerificationRecord represents one logged verify decision
type VerificationRecord struct {
	ID             string  `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID         string  `json:"user_id" example:"alice"`
	Recognized     bool    `json:"recognized" example:"true"`
	Reason         string  `json:"reason" example:"MATCH"`
	Score          float64 `json:"score" example:"0.82"`
	LiveFaces      int     `json:"live_faces" example:"1"`
	ReferenceFaces int     `json:"reference_faces" example:"1"`
	LatencyMs      int64   `json:"latency_ms" example:"640"`
	CreatedAt      string  `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

// HistoryResponse represents the verification log of a user
type HistoryResponse struct {
	UserID        string               `json:"user_id" example:"alice"`
	Verifications []VerificationRecord `json:"verifications"`
}

// HealthResponse represents the health and readiness probes
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Version  string `json:"version,omitempty" example:"0.1.0"`
	Database string `json:"database,omitempty" example:"up"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error" example:"control image not found"`
	Code  string `json:"code" example:"NO_REFERENCE"`
}

var (
	errInvalidIdentity   = response.New(ErrorResponse{Code: "INVALID_IDENTITY", Error: "user_id is missing or cannot be used as a file name"}, "400", "Bad Request")
	errCameraUnavailable = response.New(ErrorResponse{Code: "CAMERA_UNAVAILABLE", Error: "camera could not be opened"}, "500", "Internal Server Error")
	errFrameRead         = response.New(ErrorResponse{Code: "FRAME_READ_FAILED", Error: "error while reading frame"}, "500", "Internal Server Error")
	errRateLimited       = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Error: "too many camera requests"}, "429", "Too Many Requests")
)

func userIDParam() *parameter.Parameter {
	return parameter.StrParam("user_id", parameter.Path, parameter.WithDescription("Identity the reference image belongs to"))
}

func captureEndpoint(path string, params ...*parameter.Parameter) *endpoint.EndPoint {
	return endpoint.New(
		endpoint.POST,
		path,
		endpoint.WithTags("Verification"),
		endpoint.WithSummary("Enroll a reference image"),
		endpoint.WithDescription("Captures one camera frame and stores it as the reference image when it contains exactly one face. An existing reference is never overwritten."),
		endpoint.WithProduce([]mime.MIME{mime.JSON}),
		endpoint.WithParams(params...),
		endpoint.WithSuccessfulReturns([]response.Response{
			response.New(CaptureResponse{}, "200", "Reference stored or already present"),
		}),
		endpoint.WithErrors([]response.Response{
			errInvalidIdentity,
			response.New(ErrorResponse{Code: "MULTIPLE_SUBJECTS", Error: "multiple persons in picture"}, "400", "Bad Request"),
			response.New(ErrorResponse{Code: "NO_SUBJECT", Error: "no person in picture"}, "400", "Bad Request"),
			errRateLimited,
			errCameraUnavailable,
			errFrameRead,
		}),
	)
}

func detectEndpoint(path string, params ...*parameter.Parameter) *endpoint.EndPoint {
	return endpoint.New(
		endpoint.POST,
		path,
		endpoint.WithTags("Verification"),
		endpoint.WithSummary("Verify the live subject"),
		endpoint.WithDescription("Captures one camera frame and compares it with the reference image. Frames or references with no face or several faces give recognized=false with reason AMBIGUOUS_FACE_COUNT."),
		endpoint.WithProduce([]mime.MIME{mime.JSON}),
		endpoint.WithParams(params...),
		endpoint.WithSuccessfulReturns([]response.Response{
			response.New(DetectResponse{}, "200", "Verification decision"),
		}),
		endpoint.WithErrors([]response.Response{
			errInvalidIdentity,
			response.New(ErrorResponse{Code: "NO_REFERENCE", Error: "control image not found"}, "404", "Not Found"),
			errRateLimited,
			errCameraUnavailable,
			errFrameRead,
		}),
	)
}

// NewSwagger builds the API document served under /swagger.
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Facecheck API",
		Version:     "v1.0.0",
		Description: "Kiosk face verification: enroll a reference photo per user_id and verify the live camera subject against it",
		Host:        "localhost:5200",
		Path:        "/",
	})

	endpoints := []*endpoint.EndPoint{
		captureEndpoint("/capture/{user_id}", userIDParam()),
		captureEndpoint("/capture"),
		detectEndpoint("/detect/{user_id}", userIDParam()),
		detectEndpoint("/detect"),

		endpoint.New(
			endpoint.GET,
			"/check/{user_id}",
			endpoint.WithTags("Verification"),
			endpoint.WithSummary("Check for a reference image"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(userIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CheckResponse{}, "200", "Reference image exists"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(CheckResponse{Message: "image does not exist"}, "404", "Reference image does not exist"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/verifications/{user_id}",
			endpoint.WithTags("Verification"),
			endpoint.WithSummary("List logged verify decisions"),
			endpoint.WithDescription("Newest first. Only served when DATABASE_URL is configured."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				userIDParam(),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of records (1-100, default: 20)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HistoryResponse{}, "200", "Verification log"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Error: "Request validation failed"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "INTERNAL_ERROR", Error: "An unexpected error occurred"}, "500", "Internal Server Error"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is up"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Pings Postgres when DATABASE_URL is configured"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{Status: "ready"}, "200", "Service is ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthResponse{Status: "unavailable", Database: "down"}, "503", "Database unreachable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
