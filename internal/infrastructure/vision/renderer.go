package vision

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

const (
	defaultHeatmapAlpha = 0.4
	markerRadius        = 4
	matchLineWidth      = 1.5
)

// Renderer рисует тепловую карту SSIM и картинку с совпадениями точек.
type Renderer struct {
	HeatmapAlpha float64
}

// NewRenderer создаёт рендерер; alpha задаёт непрозрачность тепловой карты.
func NewRenderer(alpha float64) *Renderer {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultHeatmapAlpha
	}
	return &Renderer{HeatmapAlpha: alpha}
}

// RenderHeatmap переносит сетку SSIM на пиксели base билинейно,
// раскрашивает от красного (низкое) к зелёному (высокое) и накладывает на base.
func (r *Renderer) RenderHeatmap(m *entity.SSIMMap, base *entity.NormalizedImage) ([]byte, error) {
	if m == nil || m.Rows == 0 || m.Cols == 0 || len(m.Values) != m.Rows*m.Cols {
		return nil, entity.Internal(errors.New("empty ssim map"))
	}

	bounds := base.Image().Bounds()
	up := upsampleSSIM(m, bounds)

	overlay := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := float64(up.Gray16At(x, y).Y)/0xffff*2 - 1
			overlay.SetRGBA(x, y, HeatColor(v))
		}
	}

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, base.Image(), bounds.Min, draw.Src)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(r.HeatmapAlpha * 255))})
	draw.DrawMask(out, bounds, overlay, bounds.Min, mask, image.Point{}, draw.Over)

	return encodePNG(out)
}

// RenderMatches кладёт изображения рядом и соединяет совпавшие точки линиями.
// Рисуем от худших к лучшим, чтобы лучшие оказались сверху.
func (r *Renderer) RenderMatches(a, b *entity.NormalizedImage, set *entity.MatchSet) ([]byte, error) {
	wA := a.Width()
	dc := gg.NewContext(wA+b.Width(), maxInt(a.Height(), b.Height()))
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.DrawImage(a.Image(), 0, 0)
	dc.DrawImage(b.Image(), wA, 0)

	if set != nil {
		n := len(set.Matches)
		for i := n - 1; i >= 0; i-- {
			mt := set.Matches[i]
			if mt.QueryIdx < 0 || mt.QueryIdx >= len(set.KeypointsA) || mt.TrainIdx < 0 || mt.TrainIdx >= len(set.KeypointsB) {
				return nil, entity.Internal(errors.Errorf("match %d references missing keypoint", i))
			}
			ka, kb := set.KeypointsA[mt.QueryIdx], set.KeypointsB[mt.TrainIdx]
			bx := kb.X + float64(wA)

			dc.SetColor(RankColor(i, n))
			dc.SetLineWidth(matchLineWidth)
			dc.DrawLine(ka.X, ka.Y, bx, kb.Y)
			dc.Stroke()
			dc.DrawCircle(ka.X, ka.Y, markerRadius)
			dc.DrawCircle(bx, kb.Y, markerRadius)
			dc.Stroke()
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, entity.Internal(errors.Wrap(err, "encode matches png"))
	}
	return buf.Bytes(), nil
}

// upsampleSSIM кладёт значение окна в пиксель его центра
// (col*stride + window/2, row*stride + window/2), между центрами интерполирует,
// за крайними центрами повторяет крайнее значение.
// Значения кодируются в Gray16: -1 -> 0, 1 -> 0xffff.
func upsampleSSIM(m *entity.SSIMMap, bounds image.Rectangle) *image.Gray16 {
	grid := image.NewGray16(image.Rect(0, 0, m.Cols, m.Rows))
	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			v := (clamp(m.At(row, col), -1, 1) + 1) / 2
			grid.SetGray16(col, row, color.Gray16{Y: uint16(math.Round(v * 0xffff))})
		}
	}

	// Каждая ячейка занимает stride пикселей, центр ячейки совпадает с центром окна
	stride := maxInt(m.Stride, 1)
	off := m.Window/2 - (stride-1)/2
	inset := image.Rect(off, off, off+m.Cols*stride, off+m.Rows*stride).Add(bounds.Min)
	scaled := image.NewGray16(inset)
	draw.BiLinear.Scale(scaled, inset, grid, grid.Bounds(), draw.Src, nil)

	up := image.NewGray16(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		sy := clampInt(y, inset.Min.Y, inset.Max.Y-1)
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sx := clampInt(x, inset.Min.X, inset.Max.X-1)
			up.SetGray16(x, y, scaled.Gray16At(sx, sy))
		}
	}
	return up
}

// HeatColor цвет шкалы для значения SSIM: <=0 красный, 0.5 жёлтый, 1 зелёный.
func HeatColor(v float64) color.RGBA {
	t := clamp(v, 0, 1)
	if t < 0.5 {
		return color.RGBA{R: 255, G: uint8(math.Round(510 * t)), A: 255}
	}
	return color.RGBA{R: uint8(math.Round(510 * (1 - t))), G: 255, A: 255}
}

// RankColor цвет линии по рангу: первое совпадение зелёное, последнее красное.
func RankColor(rank, total int) color.RGBA {
	if total <= 1 {
		return HeatColor(1)
	}
	return HeatColor(1 - float64(rank)/float64(total-1))
}

// DataURI кодирует PNG в data URI для JSON-ответа
func DataURI(pngData []byte) string {
	if len(pngData) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, entity.Internal(errors.Wrap(err, "encode png"))
	}
	return buf.Bytes(), nil
}

var _ port.Renderer = (*Renderer)(nil)
