package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
)

type VerificationRepository struct {
	pool PgxPool
}

func NewVerificationRepository(pool PgxPool) *VerificationRepository {
	return &VerificationRepository{pool: pool}
}

// Create stores one verification decision. The score is NULL for
// ambiguous face counts, where no comparison took place.
func (r *VerificationRepository) Create(ctx context.Context, v *domain.Verification) error {
	query := `
		INSERT INTO verifications (id, user_id, recognized, reason, score, live_faces, reference_faces, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	var score *float64
	if v.Reason != domain.ReasonAmbiguousFaceCount {
		s := v.Score
		score = &s
	}

	err := r.pool.QueryRow(ctx, query,
		v.ID,
		v.Identity.String(),
		v.Recognized,
		string(v.Reason),
		score,
		v.LiveFaces,
		v.ReferenceFaces,
		v.LatencyMs,
	).Scan(&v.CreatedAt)

	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}

	return nil
}

// ListByIdentity returns the latest verifications of id, newest first.
func (r *VerificationRepository) ListByIdentity(ctx context.Context, id domain.Identity, limit int) ([]domain.Verification, error) {
	query := `
		SELECT id, user_id, recognized, reason, score, live_faces, reference_faces, latency_ms, created_at
		FROM verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, query, id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Verification
	for rows.Next() {
		var (
			v        domain.Verification
			identity string
			reason   string
			score    *float64
		)
		if err := rows.Scan(
			&v.ID,
			&identity,
			&v.Recognized,
			&reason,
			&score,
			&v.LiveFaces,
			&v.ReferenceFaces,
			&v.LatencyMs,
			&v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}

		v.Identity = domain.Identity(identity)
		v.Reason = domain.VerificationReason(reason)
		if score != nil {
			v.Score = *score
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}

	return out, nil
}
