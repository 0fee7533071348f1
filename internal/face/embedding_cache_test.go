package face

import (
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/cache"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
)

func TestNewEmbeddingCache(t *testing.T) {
	db, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer db.Close()

	tests := []struct {
		name    string
		kind    string
		db      cache.DB
		check   func(cache.EmbeddingCache) bool
		wantErr bool
	}{
		{
			name:  "empty defaults to none",
			kind:  "",
			check: func(c cache.EmbeddingCache) bool { _, ok := c.(cache.Noop); return ok },
		},
		{
			name:  "none",
			kind:  "none",
			check: func(c cache.EmbeddingCache) bool { _, ok := c.(cache.Noop); return ok },
		},
		{
			name:  "memory",
			kind:  "memory",
			check: func(c cache.EmbeddingCache) bool { _, ok := c.(*cache.MemoryCache); return ok },
		},
		{
			name:  "postgres",
			kind:  "postgres",
			db:    db,
			check: func(c cache.EmbeddingCache) bool { _, ok := c.(*cache.PGCache); return ok },
		},
		{
			name:    "postgres without database",
			kind:    "postgres",
			wantErr: true,
		},
		{
			name:    "unknown",
			kind:    "redis",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{EmbeddingCache: tt.kind, EmbeddingCacheTTL: time.Hour}

			c, err := NewEmbeddingCache(cfg, tt.db)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(c) {
				t.Errorf("unexpected cache type %T", c)
			}
		})
	}
}

func TestEmbeddingNamespace(t *testing.T) {
	tests := []struct {
		extractor string
		model     string
		want      string
	}{
		{extractor: "deepface", model: "Facenet512", want: "deepface/Facenet512"},
		{extractor: "", model: "Facenet", want: "deepface/Facenet"},
		{extractor: "mock", model: "Facenet512", want: "mock"},
	}

	for _, tt := range tests {
		got := EmbeddingNamespace(&config.Config{Extractor: tt.extractor, DeepFaceModel: tt.model})
		if got != tt.want {
			t.Errorf("EmbeddingNamespace(%q, %q) = %q, want %q", tt.extractor, tt.model, got, tt.want)
		}
	}
}
