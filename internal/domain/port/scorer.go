package port

import "image-similarity/internal/domain/entity"

// StructuralScorer считает SSIM между двумя изображениями одного размера
type StructuralScorer interface {
	Score(a, b *entity.NormalizedImage) (m *entity.SSIMMap, score, percentage float64, err error)
}
