package port

import (
	"context"

	"image-similarity/internal/domain/entity"
)

// ImageNormalizer декодирует и приводит изображение к общему холсту
type ImageNormalizer interface {
	// Normalize декодирует байты и применяет политику масштабирования
	Normalize(ctx context.Context, data []byte, policy entity.ResizePolicy) (*entity.NormalizedImage, error)
}
