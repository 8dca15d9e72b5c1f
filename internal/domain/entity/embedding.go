package entity

import (
	"fmt"
	"math"
	"strings"
)

// ModelKind конфигурация сети для извлечения признаков
type ModelKind string

const (
	ModelResNet50  ModelKind = "resnet50"  // точнее и дороже, 2048 признаков
	ModelMobileNet ModelKind = "mobilenet" // быстрее, 1024 признака
)

// Dimension длина вектора признаков для модели
func (k ModelKind) Dimension() int {
	switch k {
	case ModelResNet50:
		return 2048
	case ModelMobileNet:
		return 1024
	}
	return 0
}

// ModelKinds все поддерживаемые модели
func ModelKinds() []ModelKind {
	return []ModelKind{ModelResNet50, ModelMobileNet}
}

// ParseModelKind разбирает имя модели; пустая строка даёт def.
func ParseModelKind(s string, def ModelKind) (ModelKind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def, nil
	}
	k := ModelKind(s)
	if k.Dimension() == 0 {
		return "", fmt.Errorf("unknown feature extractor %q", s)
	}
	return k, nil
}

// EmbeddingVector вектор признаков изображения
type EmbeddingVector []float32

// Norm евклидова норма вектора
func (v EmbeddingVector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
