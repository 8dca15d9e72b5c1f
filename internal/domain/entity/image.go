package entity

import (
	"fmt"
	"image"
	"strings"
)

// ResizePolicy способ приведения изображения к общему холсту
type ResizePolicy string

const (
	PolicyFit        ResizePolicy = "fit"         // растянуть без сохранения пропорций
	PolicyCrop       ResizePolicy = "crop"        // заполнить и обрезать по центру
	PolicyKeepAspect ResizePolicy = "keep_aspect" // вписать и дополнить фоном
)

// ParseResizePolicy разбирает политику; пустая строка даёт def.
func ParseResizePolicy(s string, def ResizePolicy) (ResizePolicy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return def, nil
	}
	switch p := ResizePolicy(s); p {
	case PolicyFit, PolicyCrop, PolicyKeepAspect:
		return p, nil
	}
	return "", fmt.Errorf("unknown resize policy %q", s)
}

// Affine отображение координат холста в координаты исходника:
// orig = normalized*Scale + Offset по каждой оси.
type Affine struct {
	ScaleX, ScaleY   float64
	OffsetX, OffsetY float64
}

// Apply переводит точку холста в координаты исходного изображения
func (a Affine) Apply(x, y float64) (float64, float64) {
	return x*a.ScaleX + a.OffsetX, y*a.ScaleY + a.OffsetY
}

// NormalizedImage изображение, приведённое к общему размеру.
// Создаётся один раз на запрос и не меняется после создания.
type NormalizedImage struct {
	pix        *image.RGBA
	luma       []float64
	policy     ResizePolicy
	origWidth  int
	origHeight int
	content    image.Rectangle
	toOriginal Affine
}

// NewNormalizedImage собирает NormalizedImage и считает плоскость яркости.
// pix не должен меняться после вызова.
func NewNormalizedImage(pix *image.RGBA, policy ResizePolicy, origWidth, origHeight int, content image.Rectangle, toOriginal Affine) *NormalizedImage {
	b := pix.Bounds()
	w, h := b.Dx(), b.Dy()
	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := pix.Pix[(y)*pix.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			r, g, bl := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			luma[y*w+x] = 0.299*r + 0.587*g + 0.114*bl
		}
	}
	return &NormalizedImage{
		pix:        pix,
		luma:       luma,
		policy:     policy,
		origWidth:  origWidth,
		origHeight: origHeight,
		content:    content,
		toOriginal: toOriginal,
	}
}

// Image возвращает пиксельный буфер (только для чтения)
func (n *NormalizedImage) Image() *image.RGBA { return n.pix }

// Width ширина холста
func (n *NormalizedImage) Width() int { return n.pix.Bounds().Dx() }

// Height высота холста
func (n *NormalizedImage) Height() int { return n.pix.Bounds().Dy() }

// Luma плоскость яркости 0..255, построчно (только для чтения)
func (n *NormalizedImage) Luma() []float64 { return n.luma }

// LumaAt яркость пикселя (x, y)
func (n *NormalizedImage) LumaAt(x, y int) float64 { return n.luma[y*n.Width()+x] }

func (n *NormalizedImage) Policy() ResizePolicy { return n.policy }

func (n *NormalizedImage) OriginalSize() (int, int) { return n.origWidth, n.origHeight }

// Content область холста, занятая содержимым (для keep_aspect меньше холста)
func (n *NormalizedImage) Content() image.Rectangle { return n.content }

// ToOriginal переводит координаты холста в координаты исходника
func (n *NormalizedImage) ToOriginal(x, y float64) (float64, float64) {
	return n.toOriginal.Apply(x, y)
}

// SameSize проверяет совпадение размеров двух изображений
func (n *NormalizedImage) SameSize(other *NormalizedImage) bool {
	return n.Width() == other.Width() && n.Height() == other.Height()
}
