package entity

import (
	"math"
	"time"
)

// Stage стадия обработки запроса на сравнение
type Stage string

const (
	StageIdle        Stage = "idle"
	StageValidating  Stage = "validating"
	StageNormalizing Stage = "normalizing"
	StageScoring     Stage = "scoring"
	StageRendering   Stage = "rendering"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// ComparisonOptions параметры сравнения. Нулевые значения заменяются умолчаниями.
type ComparisonOptions struct {
	FeatureExtractor ModelKind
	MaxMatches       int
	ResizePolicy     ResizePolicy
}

// ComparisonRequest входные данные сравнения
type ComparisonRequest struct {
	ImageA  []byte
	ImageB  []byte
	Options ComparisonOptions
}

// ComparisonResult итог сравнения двух изображений.
// Собирается один раз и дальше не меняется.
type ComparisonResult struct {
	CosineSimilarity float64
	CosinePercentage float64
	SSIMScore        float64
	SSIMPercentage   float64
	Heatmap          []byte // PNG
	MatchesImage     []byte // PNG

	MatchCount       int
	KeypointsA       int
	KeypointsB       int
	FeatureExtractor ModelKind
	ResizePolicy     ResizePolicy
	Elapsed          time.Duration
}

// Percentage переводит сходство в проценты: отрицательное даёт 0, округление до сотых.
func Percentage(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return math.Round(v*10000) / 100
}
