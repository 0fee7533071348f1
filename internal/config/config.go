package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"5200"`
	Environment string `envconfig:"ENV" default:"development"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`

	// Per-client limit on /capture and /detect; 0 disables it
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"0"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Reference images
	PhotosDir       string `envconfig:"PHOTOS_DIR" default:"./photos"`
	ImageFormat     string `envconfig:"IMAGE_FORMAT" default:"png"`
	DefaultIdentity string `envconfig:"DEFAULT_IDENTITY" default:"control"`

	// Matching
	MatchThreshold float64 `envconfig:"MATCH_THRESHOLD" default:"0.65"`

	// Providers
	Locator          string        `envconfig:"LOCATOR" default:"deepface"`
	Extractor        string        `envconfig:"EXTRACTOR" default:"deepface"`
	DeepFaceURL      string        `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	DeepFaceModel    string        `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceDetector string        `envconfig:"DEEPFACE_DETECTOR" default:"mtcnn"`
	DeepFaceTimeout  time.Duration `envconfig:"DEEPFACE_TIMEOUT" default:"30s"`
	DeepFaceRetries  int           `envconfig:"DEEPFACE_RETRY_COUNT" default:"2"`
	AWSRegion        string        `envconfig:"AWS_REGION" default:"us-east-1"`

	// Camera
	Camera               string        `envconfig:"CAMERA" default:"ffmpeg"`
	CameraDevice         string        `envconfig:"CAMERA_DEVICE" default:"/dev/video0"`
	CameraSnapshotURL    string        `envconfig:"CAMERA_SNAPSHOT_URL"`
	CameraFile           string        `envconfig:"CAMERA_FILE"`
	CameraWarmup         time.Duration `envconfig:"CAMERA_WARMUP" default:"2s"`
	CameraAcquireTimeout time.Duration `envconfig:"CAMERA_ACQUIRE_TIMEOUT" default:"3s"`
	FFmpegPath           string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	// Reference embedding cache: none, memory or postgres
	EmbeddingCache    string        `envconfig:"EMBEDDING_CACHE" default:"none"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"24h"`

	// Database (optional; enables the postgres cache and the verification log)
	DatabaseURL         string `envconfig:"DATABASE_URL"`
	DatabaseAutoMigrate bool   `envconfig:"DATABASE_AUTO_MIGRATE" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be within [-1, 1], got %v", c.MatchThreshold)
	}
	switch c.ImageFormat {
	case "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("IMAGE_FORMAT %q not supported (png, jpg)", c.ImageFormat)
	}
	if c.RateLimitMax < 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must not be negative, got %d", c.RateLimitMax)
	}
	if c.EmbeddingCache != "none" && c.EmbeddingCacheTTL <= 0 {
		return fmt.Errorf("EMBEDDING_CACHE_TTL must be positive, got %s", c.EmbeddingCacheTTL)
	}
	if c.EmbeddingCache == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("EMBEDDING_CACHE=postgres requires DATABASE_URL")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasDatabase reports whether a Postgres connection is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}
