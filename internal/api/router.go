package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/middleware"
)

type Dependencies struct {
	Verifier        handler.VerificationService
	DefaultIdentity string
	// DB and History are nil when running without Postgres.
	DB          handler.Pinger
	History     handler.VerificationHistory
	CORSOrigins string
	// RateLimit guards /capture and /detect when set.
	RateLimit *middleware.RateLimiter
}

type Router struct {
	app    *fiber.App
	logger *slog.Logger
	deps   *Dependencies
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(logger),
		AppName:               "Facecheck API",
		DisableStartupMessage: true,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	origins := "*"
	if r.deps != nil && r.deps.CORSOrigins != "" {
		origins = r.deps.CORSOrigins
	}

	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.RequestContext())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var db handler.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db, r.logger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil || r.deps.Verifier == nil {
		return
	}

	verificationHandler := handler.NewVerificationHandler(r.deps.Verifier, r.deps.DefaultIdentity)

	camera := func(h fiber.Handler) []fiber.Handler {
		if r.deps.RateLimit == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{r.deps.RateLimit.Handler(), h}
	}

	r.app.Post("/capture/:user_id", camera(verificationHandler.Capture)...)
	r.app.Post("/capture", camera(verificationHandler.Capture)...)
	r.app.Post("/detect/:user_id", camera(verificationHandler.Detect)...)
	r.app.Post("/detect", camera(verificationHandler.Detect)...)
	r.app.Get("/check/:user_id", verificationHandler.Check)

	if r.deps.History != nil {
		historyHandler := handler.NewHistoryHandler(r.deps.History)
		r.app.Get("/verifications/:user_id", historyHandler.List)
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}
