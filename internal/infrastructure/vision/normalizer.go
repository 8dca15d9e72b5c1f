package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// neutralFill цвет полей для keep_aspect
var neutralFill = color.RGBA{R: 128, G: 128, B: 128, A: 255}

var supportedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Normalizer декодирует загруженные байты и приводит их к холсту Width x Height.
type Normalizer struct {
	Width     int
	Height    int
	MaxBytes  int64
	MaxPixels int
	Fill      color.RGBA
}

// NewNormalizer создаёт нормализатор с заданным холстом и ограничениями.
func NewNormalizer(width, height int, maxBytes int64, maxPixels int) *Normalizer {
	return &Normalizer{
		Width:     width,
		Height:    height,
		MaxBytes:  maxBytes,
		MaxPixels: maxPixels,
		Fill:      neutralFill,
	}
}

// Normalize декодирует изображение и применяет политику масштабирования.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, policy entity.ResizePolicy) (*entity.NormalizedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, entity.InvalidImage(nil, "image is empty")
	}
	if n.MaxBytes > 0 && int64(len(data)) > n.MaxBytes {
		return nil, entity.ImageTooLarge("image exceeds %d bytes", n.MaxBytes)
	}

	// Заголовок проверяем до полного декодирования, чтобы не распаковывать огромные картинки.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, entity.InvalidImage(errors.Wrap(err, "decode config"), "cannot decode image")
	}
	if !supportedFormats[format] {
		return nil, entity.InvalidImage(nil, "unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, entity.InvalidImage(nil, "image has zero area")
	}
	if n.MaxPixels > 0 && cfg.Width*cfg.Height > n.MaxPixels {
		return nil, entity.ImageTooLarge("image exceeds %d pixels", n.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, entity.InvalidImage(errors.Wrap(err, "decode"), "cannot decode image")
	}
	if src.Bounds().Empty() {
		return nil, entity.InvalidImage(nil, "image has zero area")
	}

	return n.FromImage(src, policy)
}

// FromImage приводит уже декодированное изображение к холсту.
func (n *Normalizer) FromImage(src image.Image, policy entity.ResizePolicy) (*entity.NormalizedImage, error) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, entity.InvalidImage(nil, "image has zero area")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, n.Width, n.Height))
	W, H := float64(n.Width), float64(n.Height)
	fw, fh := float64(w), float64(h)

	switch policy {
	case entity.PolicyFit, "":
		scaled := resize.Resize(uint(n.Width), uint(n.Height), src, resize.Bilinear)
		draw.Draw(canvas, canvas.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
		return entity.NewNormalizedImage(canvas, entity.PolicyFit, w, h, canvas.Bounds(), entity.Affine{
			ScaleX: fw / W,
			ScaleY: fh / H,
		}), nil

	case entity.PolicyCrop:
		scale := math.Max(W/fw, H/fh)
		sw := maxInt(n.Width, int(math.Round(fw*scale)))
		sh := maxInt(n.Height, int(math.Round(fh*scale)))
		scaled := resize.Resize(uint(sw), uint(sh), src, resize.Bilinear)
		offX, offY := (sw-n.Width)/2, (sh-n.Height)/2
		draw.Draw(canvas, canvas.Bounds(), scaled, scaled.Bounds().Min.Add(image.Pt(offX, offY)), draw.Src)
		sx, sy := fw/float64(sw), fh/float64(sh)
		return entity.NewNormalizedImage(canvas, entity.PolicyCrop, w, h, canvas.Bounds(), entity.Affine{
			ScaleX:  sx,
			ScaleY:  sy,
			OffsetX: float64(offX) * sx,
			OffsetY: float64(offY) * sy,
		}), nil

	case entity.PolicyKeepAspect:
		scale := math.Min(W/fw, H/fh)
		sw := clampInt(int(math.Round(fw*scale)), 1, n.Width)
		sh := clampInt(int(math.Round(fh*scale)), 1, n.Height)
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(n.Fill), image.Point{}, draw.Src)
		scaled := resize.Resize(uint(sw), uint(sh), src, resize.Bilinear)
		offX, offY := (n.Width-sw)/2, (n.Height-sh)/2
		content := image.Rect(offX, offY, offX+sw, offY+sh)
		draw.Draw(canvas, content, scaled, scaled.Bounds().Min, draw.Src)
		sx, sy := fw/float64(sw), fh/float64(sh)
		return entity.NewNormalizedImage(canvas, entity.PolicyKeepAspect, w, h, content, entity.Affine{
			ScaleX:  sx,
			ScaleY:  sy,
			OffsetX: -float64(offX) * sx,
			OffsetY: -float64(offY) * sy,
		}), nil
	}

	return nil, entity.InvalidRequest("unknown resize policy %q", policy)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	return maxInt(lo, minInt(v, hi))
}

var _ port.ImageNormalizer = (*Normalizer)(nil)
