package features

import (
	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// DefaultEpsilon норма ниже этого порога считается вырожденной
const DefaultEpsilon = 1e-9

// CosineScorer косинусное сходство векторов признаков
type CosineScorer struct {
	Epsilon float64
}

func NewCosineScorer() *CosineScorer {
	return &CosineScorer{Epsilon: DefaultEpsilon}
}

// Score возвращает dot(a,b)/(|a||b|) и процент clamp(raw,0,1)*100.
func (s *CosineScorer) Score(a, b entity.EmbeddingVector) (float64, float64, error) {
	if len(a) != len(b) {
		return 0, 0, entity.ExtractionFailed(nil, "embedding lengths differ: %d and %d", len(a), len(b))
	}
	na, nb := a.Norm(), b.Norm()
	if na < s.Epsilon || nb < s.Epsilon {
		return 0, 0, entity.DegenerateVector("image is flat neutral gray and has no usable features")
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	raw := dot / (na * nb)
	if raw > 1 {
		raw = 1
	} else if raw < -1 {
		raw = -1
	}
	return raw, entity.Percentage(raw), nil
}

var _ port.SemanticScorer = (*CosineScorer)(nil)
