package matcher

import (
	"errors"
	"math"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// DefaultThreshold is the FaceNet cosine threshold for 160x160 crops.
const DefaultThreshold = 0.65

// Unknown is the label returned when the best score does not clear the threshold.
const Unknown = "Unknown"

var (
	ErrNoCandidates      = errors.New("matcher: no candidates")
	ErrDimensionMismatch = errors.New("matcher: embedding dimensions differ")
	ErrNonFinite         = errors.New("matcher: embedding has NaN or Inf values")
)

// Candidate is one labelled reference embedding.
type Candidate struct {
	Embedding provider.Embedding
	Label     string
}

// Result is the best label and its similarity score.
type Result struct {
	Label string
	Score float64
}

// Recognized reports whether the result names a candidate.
func (r Result) Recognized() bool {
	return r.Label != Unknown
}

// Matcher compares a probe against candidates with cosine similarity.
type Matcher struct {
	threshold float64
}

func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match scores probe against every candidate separately and keeps the
// highest score; ties go to the earliest candidate. The label is returned
// only when the score is strictly above the threshold.
func (m *Matcher) Match(probe provider.Embedding, candidates []Candidate) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	if !finite(probe) {
		return Result{}, ErrNonFinite
	}

	best := Result{Label: Unknown, Score: math.Inf(-1)}
	bestIdx := -1
	for i, c := range candidates {
		if len(c.Embedding) != len(probe) || len(probe) == 0 {
			return Result{}, ErrDimensionMismatch
		}
		if !finite(c.Embedding) {
			return Result{}, ErrNonFinite
		}
		score := CosineSimilarity(probe, c.Embedding)
		if score > best.Score {
			best.Score = score
			bestIdx = i
		}
	}

	if best.Score > m.threshold {
		best.Label = candidates[bestIdx].Label
	}

	return best, nil
}

func finite(e provider.Embedding) bool {
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Mismatched, empty or zero vectors score 0.
func CosineSimilarity(a, b provider.Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// floating point error can push identical vectors past 1
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return similarity
}
