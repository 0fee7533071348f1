package mock

import (
	"context"
	"crypto/sha256"
	"image"
	"image/draw"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

const embeddingDimension = 128

// Provider implementa provider.FaceLocator e provider.EmbeddingExtractor
// para testes e desenvolvimento
type Provider struct {
	faces int
}

// New cria um Provider que encontra exatamente uma face por imagem
func New() *Provider {
	return &Provider{faces: 1}
}

// NewWithFaces cria um Provider que encontra n faces por imagem
func NewWithFaces(n int) *Provider {
	if n < 0 {
		n = 0
	}
	return &Provider{faces: n}
}

// Locate divide a imagem em colunas iguais e devolve uma face centrada em cada
func (p *Provider) Locate(ctx context.Context, img image.Image) ([]provider.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faces := make([]provider.DetectedFace, 0, p.faces)
	if p.faces == 0 {
		return faces, nil
	}

	b := img.Bounds()
	colW := float64(b.Dx()) / float64(p.faces)
	h := float64(b.Dy())

	for i := 0; i < p.faces; i++ {
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(i)*colW + colW*0.1,
				Y:      h * 0.1,
				Width:  colW * 0.8,
				Height: h * 0.8,
			},
			Confidence: 0.99,
		})
	}

	return faces, nil
}

// Embed gera embedding determinístico baseado no hash dos pixels do recorte
func (p *Provider) Embed(ctx context.Context, crop image.Image) (provider.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := provider.CheckCropSize(crop); err != nil {
		return nil, err
	}

	rgba := image.NewRGBA(image.Rect(0, 0, provider.FaceInputSize, provider.FaceInputSize))
	draw.Draw(rgba, rgba.Bounds(), crop, crop.Bounds().Min, draw.Src)

	return generateEmbedding(rgba.Pix), nil
}

// generateEmbedding gera embedding determinístico e normalizado
func generateEmbedding(data []byte) provider.Embedding {
	hash := sha256.Sum256(data)
	embedding := make(provider.Embedding, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	return embedding.Normalize()
}

var (
	_ provider.FaceLocator        = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)
