package features

import (
	"context"
	"math"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// poolGrid сторона сетки адаптивного усреднения: 8x8 = 64 признака на карту
const poolGrid = 8

// neutralLuma яркость нейтрально-серого фона, относительно неё центрируется вход
const neutralLuma = 128.0 / 255

// kernel3 ядро свёртки 3x3, построчно
type kernel3 [9]float64

var (
	kernelGauss   = kernel3{1.0 / 16, 2.0 / 16, 1.0 / 16, 2.0 / 16, 4.0 / 16, 2.0 / 16, 1.0 / 16, 2.0 / 16, 1.0 / 16}
	kernelSobelX  = kernel3{-0.25, 0, 0.25, -0.5, 0, 0.5, -0.25, 0, 0.25}
	kernelSobelY  = kernel3{-0.25, -0.5, -0.25, 0, 0, 0, 0.25, 0.5, 0.25}
	kernelDiag45  = kernel3{0, 0.25, 0.5, -0.25, 0, 0.25, -0.5, -0.25, 0}
	kernelDiag135 = kernel3{0.5, 0.25, 0, 0.25, 0, -0.25, 0, -0.25, -0.5}
	kernelLaplace = kernel3{0, 0.25, 0, 0.25, -1, 0.25, 0, 0.25, 0}
	kernelHLine   = kernel3{-1.0 / 6, -1.0 / 6, -1.0 / 6, 2.0 / 6, 2.0 / 6, 2.0 / 6, -1.0 / 6, -1.0 / 6, -1.0 / 6}
	kernelVLine   = kernel3{-1.0 / 6, 2.0 / 6, -1.0 / 6, -1.0 / 6, 2.0 / 6, -1.0 / 6, -1.0 / 6, 2.0 / 6, -1.0 / 6}
)

// filter ядро первого слоя. Знаковое ядро даёт две карты, ReLU(x) и ReLU(-x),
// остальные одну карту |x|.
type filter struct {
	k      kernel3
	signed bool
}

func (f filter) maps() int {
	if f.signed {
		return 2
	}
	return 1
}

// lumaBank ядра для яркости: 8 карт на масштаб
var lumaBank = []filter{
	{k: kernelGauss, signed: true},
	{k: kernelSobelX},
	{k: kernelSobelY},
	{k: kernelDiag45},
	{k: kernelDiag135},
	{k: kernelHLine},
	{k: kernelVLine},
}

// colorBank ядра для оппонентных каналов: 8 карт на канал, знак цвета сохраняется
var colorBank = []filter{
	{k: kernelGauss, signed: true},
	{k: kernelSobelX, signed: true},
	{k: kernelSobelY, signed: true},
	{k: kernelLaplace, signed: true},
}

// plane одноканальная карта
type plane struct {
	w, h int
	v    []float64
}

// FilterBankExtractor встроенная сеть без файлов весов:
// свёртка набором ядер, выпрямление, пулинг 2x2 и адаптивное усреднение до 8x8.
// Яркость центрируется относительно нейтрально-серого, поэтому сплошной
// серый фон даёт нулевой вектор. Профиль resnet50 добавляет оппонентные
// цветовые каналы r-g и (r+g)/2-b.
type FilterBankExtractor struct {
	kind     entity.ModelKind
	opponent bool
}

// NewFilterBankExtractor создаёт экстрактор с профилем модели kind.
func NewFilterBankExtractor(kind entity.ModelKind) (*FilterBankExtractor, error) {
	switch kind {
	case entity.ModelResNet50:
		return &FilterBankExtractor{kind: kind, opponent: true}, nil
	case entity.ModelMobileNet:
		return &FilterBankExtractor{kind: kind}, nil
	}
	return nil, entity.ExtractionFailed(nil, "unknown model %q", kind)
}

// Kind модель, которую реализует экстрактор
func (e *FilterBankExtractor) Kind() entity.ModelKind { return e.kind }

// Extract строит вектор признаков длины kind.Dimension(), нормированный целиком.
func (e *FilterBankExtractor) Extract(ctx context.Context, img *entity.NormalizedImage) (entity.EmbeddingVector, error) {
	w, h := img.Width(), img.Height()
	if w < 2*poolGrid || h < 2*poolGrid {
		return nil, entity.ExtractionFailed(nil, "image %dx%d is smaller than the network input", w, h)
	}

	luma := plane{w: w, h: h, v: make([]float64, w*h)}
	for i, v := range img.Luma() {
		luma.v[i] = v/255 - neutralLuma
	}

	type layer struct {
		in   plane
		bank []filter
	}
	layers := []layer{{luma, lumaBank}, {avgPool2(luma), lumaBank}}

	if e.opponent {
		rg := plane{w: w, h: h, v: make([]float64, w*h)}
		yb := plane{w: w, h: h, v: make([]float64, w*h)}
		pix := img.Image().Pix
		stride := img.Image().Stride
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := y*stride + x*4
				r, g, b := float64(pix[o])/255, float64(pix[o+1])/255, float64(pix[o+2])/255
				rg.v[y*w+x] = r - g
				yb.v[y*w+x] = (r+g)/2 - b
			}
		}
		layers = append(layers, layer{rg, colorBank}, layer{yb, colorBank})
	}

	vec := make([]float64, 0, e.kind.Dimension())
	for _, l := range layers {
		for _, f := range l.bank {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			resp := conv(l.in, f.k)
			if !f.signed {
				vec = append(vec, adaptivePool(rectify(resp, math.Abs), poolGrid)...)
				continue
			}
			vec = append(vec, adaptivePool(rectify(resp, relu), poolGrid)...)
			vec = append(vec, adaptivePool(rectify(resp, negRelu), poolGrid)...)
		}
	}

	if len(vec) != e.kind.Dimension() {
		return nil, entity.ExtractionFailed(nil, "network produced %d features, want %d", len(vec), e.kind.Dimension())
	}
	normalizeL2(vec)

	out := make(entity.EmbeddingVector, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

func relu(x float64) float64 { return math.Max(x, 0) }

func negRelu(x float64) float64 { return math.Max(-x, 0) }

// conv свёртка 3x3 с зеркальными краями, отклик со знаком
func conv(p plane, k kernel3) plane {
	out := plane{w: p.w, h: p.h, v: make([]float64, len(p.v))}
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var s float64
			i := 0
			for dy := -1; dy <= 1; dy++ {
				yy := mirror(y+dy, p.h)
				for dx := -1; dx <= 1; dx++ {
					s += k[i] * p.v[yy*p.w+mirror(x+dx, p.w)]
					i++
				}
			}
			out.v[y*p.w+x] = s
		}
	}
	return out
}

// rectify применяет нелинейность к копии карты
func rectify(p plane, fn func(float64) float64) plane {
	out := plane{w: p.w, h: p.h, v: make([]float64, len(p.v))}
	for i, v := range p.v {
		out.v[i] = fn(v)
	}
	return out
}

// avgPool2 усреднение блоками 2x2
func avgPool2(p plane) plane {
	w, h := p.w/2, p.h/2
	out := plane{w: w, h: h, v: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := p.v[2*y*p.w+2*x] + p.v[2*y*p.w+2*x+1] + p.v[(2*y+1)*p.w+2*x] + p.v[(2*y+1)*p.w+2*x+1]
			out.v[y*w+x] = s / 4
		}
	}
	return out
}

// adaptivePool усредняет карту по сетке grid x grid
func adaptivePool(p plane, grid int) []float64 {
	out := make([]float64, grid*grid)
	for gy := 0; gy < grid; gy++ {
		y0, y1 := gy*p.h/grid, (gy+1)*p.h/grid
		for gx := 0; gx < grid; gx++ {
			x0, x1 := gx*p.w/grid, (gx+1)*p.w/grid
			var s float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					s += p.v[y*p.w+x]
				}
			}
			if n := (y1 - y0) * (x1 - x0); n > 0 {
				out[gy*grid+gx] = s / float64(n)
			}
		}
	}
	return out
}

// normalizeL2 нормирует вектор на месте; нулевой вектор не трогает
func normalizeL2(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func mirror(i, n int) int {
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - i - 2
	}
	return i
}

var _ port.FeatureExtractor = (*FilterBankExtractor)(nil)
