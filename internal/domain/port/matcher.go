package port

import (
	"context"

	"image-similarity/internal/domain/entity"
)

// KeypointMatcher находит соответствия ключевых точек двух изображений
type KeypointMatcher interface {
	// Match возвращает не более maxMatches соответствий, ближайшие первыми
	Match(ctx context.Context, a, b *entity.NormalizedImage, maxMatches int) (*entity.MatchSet, error)
}
