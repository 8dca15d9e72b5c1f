package port

import (
	"context"

	"image-similarity/internal/domain/entity"
)

// FeatureExtractor извлекает вектор признаков из изображения
type FeatureExtractor interface {
	Extract(ctx context.Context, img *entity.NormalizedImage) (entity.EmbeddingVector, error)
}

// ExtractorProvider выдаёт загруженный экстрактор для модели
type ExtractorProvider interface {
	Extractor(kind entity.ModelKind) (FeatureExtractor, error)
}

// SemanticScorer сравнивает два вектора признаков
type SemanticScorer interface {
	// Score возвращает косинусное сходство и процент
	Score(a, b entity.EmbeddingVector) (raw, percentage float64, err error)
}
