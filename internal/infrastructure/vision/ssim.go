package vision

import (
	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

const (
	ssimK1 = 0.01
	ssimK2 = 0.03
	ssimL  = 255.0
)

// SSIMScorer считает оконный SSIM по яркости.
// Окно равномерное, ковариации выборочные, как в skimage.
type SSIMScorer struct {
	Window int
	Stride int
}

// NewSSIMScorer создаёт скорер с окном window и шагом stride.
func NewSSIMScorer(window, stride int) *SSIMScorer {
	return &SSIMScorer{Window: window, Stride: stride}
}

// Score возвращает карту SSIM, её среднее и процент.
func (s *SSIMScorer) Score(a, b *entity.NormalizedImage) (*entity.SSIMMap, float64, float64, error) {
	m, err := ComputeSSIM(a, b, s.Window, s.Stride)
	if err != nil {
		return nil, 0, 0, err
	}
	score := m.Mean()
	return m, score, entity.Percentage(score), nil
}

// ComputeSSIM строит карту SSIM. Статистики окон берутся из интегральных изображений.
func ComputeSSIM(a, b *entity.NormalizedImage, window, stride int) (*entity.SSIMMap, error) {
	if !a.SameSize(b) {
		return nil, entity.DimensionMismatch("images are %dx%d and %dx%d", a.Width(), a.Height(), b.Width(), b.Height())
	}
	w, h := a.Width(), a.Height()
	if window < 3 || window%2 == 0 || stride < 1 {
		return nil, entity.InvalidRequest("ssim window must be odd and >= 3, stride >= 1")
	}
	rows, cols := entity.SSIMGridSize(w, h, window, stride)
	if rows == 0 || cols == 0 {
		return nil, entity.InvalidRequest("ssim window %d does not fit %dx%d image", window, w, h)
	}

	la, lb := a.Luma(), b.Luma()
	sa := newIntegral(w, h, func(i int) float64 { return la[i] })
	sb := newIntegral(w, h, func(i int) float64 { return lb[i] })
	saa := newIntegral(w, h, func(i int) float64 { return la[i] * la[i] })
	sbb := newIntegral(w, h, func(i int) float64 { return lb[i] * lb[i] })
	sab := newIntegral(w, h, func(i int) float64 { return la[i] * lb[i] })

	c1 := (ssimK1 * ssimL) * (ssimK1 * ssimL)
	c2 := (ssimK2 * ssimL) * (ssimK2 * ssimL)
	np := float64(window * window)
	cov := np / (np - 1)

	values := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		y0 := r * stride
		for c := 0; c < cols; c++ {
			x0 := c * stride
			x1, y1 := x0+window, y0+window

			ma := sa.sum(x0, y0, x1, y1) / np
			mb := sb.sum(x0, y0, x1, y1) / np
			va := cov * (saa.sum(x0, y0, x1, y1)/np - ma*ma)
			vb := cov * (sbb.sum(x0, y0, x1, y1)/np - mb*mb)
			vab := cov * (sab.sum(x0, y0, x1, y1)/np - ma*mb)

			num := (2*ma*mb + c1) * (2*vab + c2)
			den := (ma*ma + mb*mb + c1) * (va + vb + c2)
			values[r*cols+c] = clamp(num/den, -1, 1)
		}
	}

	return &entity.SSIMMap{
		Rows:   rows,
		Cols:   cols,
		Window: window,
		Stride: stride,
		Values: values,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// integral таблица сумм с нулевой первой строкой и колонкой
type integral struct {
	w    int
	data []float64
}

func newIntegral(w, h int, at func(i int) float64) *integral {
	stride := w + 1
	data := make([]float64, stride*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += at(y*w + x)
			data[(y+1)*stride+x+1] = data[y*stride+x+1] + row
		}
	}
	return &integral{w: w, data: data}
}

// sum сумма по прямоугольнику [x0, x1) x [y0, y1)
func (t *integral) sum(x0, y0, x1, y1 int) float64 {
	s := t.w + 1
	return t.data[y1*s+x1] - t.data[y0*s+x1] - t.data[y1*s+x0] + t.data[y0*s+x0]
}

var _ port.StructuralScorer = (*SSIMScorer)(nil)
