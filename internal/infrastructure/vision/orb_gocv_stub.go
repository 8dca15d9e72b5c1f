//go:build !gocv
// +build !gocv

package vision

import (
	"context"
	"errors"

	"image-similarity/internal/domain/entity"
)

var errNoGoCV = errors.New("gocv build tag is not enabled")

type GoCVMatcher struct {
	Features      int
	ScaleFactor   float32
	Levels        int
	EdgeThreshold int
	FastThreshold int
	Ratio         float64
}

// NewGoCVMatcher возвращает ошибку, если сборка без тега gocv.
func NewGoCVMatcher(features int, ratio float64) (*GoCVMatcher, error) {
	return nil, errNoGoCV
}

// Match возвращает ошибку, если сборка без тега gocv.
func (m *GoCVMatcher) Match(ctx context.Context, a, b *entity.NormalizedImage, maxMatches int) (*entity.MatchSet, error) {
	_ = ctx
	return nil, errNoGoCV
}
