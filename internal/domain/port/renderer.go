package port

import "image-similarity/internal/domain/entity"

// Renderer рисует визуализации результата
type Renderer interface {
	// RenderHeatmap накладывает карту SSIM на базовое изображение
	RenderHeatmap(m *entity.SSIMMap, base *entity.NormalizedImage) ([]byte, error)

	// RenderMatches рисует изображения рядом и соединяет совпавшие точки
	RenderMatches(a, b *entity.NormalizedImage, set *entity.MatchSet) ([]byte, error)
}
