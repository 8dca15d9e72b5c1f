//go:build !gocv
// +build !gocv

package features

import (
	"context"
	"errors"

	"image-similarity/internal/domain/entity"
)

type DNNExtractor struct{}

// NewDNNExtractor возвращает ошибку, если сборка без тега gocv.
func NewDNNExtractor(kind entity.ModelKind, spec ModelSpec) (*DNNExtractor, error) {
	_ = kind
	_ = spec
	return nil, errors.New("gocv build tag is not enabled")
}

// Extract возвращает ошибку, если сборка без тега gocv.
func (e *DNNExtractor) Extract(ctx context.Context, img *entity.NormalizedImage) (entity.EmbeddingVector, error) {
	_ = ctx
	_ = img
	return nil, errors.New("gocv build tag is not enabled")
}
