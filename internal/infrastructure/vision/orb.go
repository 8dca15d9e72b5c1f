package vision

import (
	"context"
	"image"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/image/draw"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

const (
	orbPatchRadius  = 15 // радиус патча для ориентации
	orbPairRadius   = 13 // предел координат пар BRIEF
	orbEdge         = 22 // отступ от края: пары после поворота не выходят за него
	orbHarrisBlock  = 3  // полуразмер окна Харриса (7x7)
	orbHarrisK      = 0.04
	orbPatternSeed  = 0x0b5e
	fastArcLength   = 9
	fastCircleSize  = 16
	defaultFeatures = 500
)

// fastCircle окружность Брезенхэма радиуса 3 для детектора FAST
var fastCircle = [fastCircleSize]struct{ X, Y int }{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// briefPair пара точек сравнения относительно центра ключевой точки
type briefPair struct {
	x1, y1, x2, y2 float64
}

// briefPattern фиксированный набор пар; генератор с постоянным seed делает его одинаковым между запусками.
var briefPattern = func() [entity.DescriptorBits]briefPair {
	rng := rand.New(rand.NewSource(orbPatternSeed))
	sigma := float64(2*orbPatchRadius+1) / 5
	sample := func() float64 {
		return math.Round(clamp(rng.NormFloat64()*sigma, -orbPairRadius, orbPairRadius))
	}
	var p [entity.DescriptorBits]briefPair
	for i := range p {
		p[i] = briefPair{x1: sample(), y1: sample(), x2: sample(), y2: sample()}
	}
	return p
}()

// ORBMatcher находит ключевые точки (FAST + Харрис на пирамиде),
// строит повёрнутые BRIEF-дескрипторы и сопоставляет их по Хэммингу с тестом отношения.
type ORBMatcher struct {
	Features      int
	Levels        int
	ScaleFactor   float64
	FastThreshold int
	Ratio         float64
}

// NewORBMatcher создаёт матчер с параметрами как у cv2.ORB_create по умолчанию.
func NewORBMatcher(features int, ratio float64) *ORBMatcher {
	if features <= 0 {
		features = defaultFeatures
	}
	return &ORBMatcher{
		Features:      features,
		Levels:        4,
		ScaleFactor:   1.2,
		FastThreshold: 20,
		Ratio:         ratio,
	}
}

// Match детектирует точки на обоих изображениях и возвращает лучшие соответствия.
func (m *ORBMatcher) Match(ctx context.Context, a, b *entity.NormalizedImage, maxMatches int) (*entity.MatchSet, error) {
	kpA := m.Detect(a)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kpB := m.Detect(b)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &entity.MatchSet{
		KeypointsA: kpA,
		KeypointsB: kpB,
		Matches:    MatchDescriptors(kpA, kpB, m.Ratio, maxMatches),
	}, nil
}

// Detect находит ключевые точки и считает их дескрипторы.
func (m *ORBMatcher) Detect(img *entity.NormalizedImage) []entity.Keypoint {
	base := lumaGray(img)
	perLevel := m.featuresPerLevel()

	var keypoints []entity.Keypoint
	scale := 1.0
	level := base
	for l := 0; l < m.Levels; l++ {
		if l > 0 {
			scale *= m.ScaleFactor
			w := int(math.Round(float64(base.Bounds().Dx()) / scale))
			h := int(math.Round(float64(base.Bounds().Dy()) / scale))
			if w < 2*orbEdge+1 || h < 2*orbEdge+1 {
				break
			}
			next := image.NewGray(image.Rect(0, 0, w, h))
			draw.BiLinear.Scale(next, next.Bounds(), base, base.Bounds(), draw.Src, nil)
			level = next
		}
		keypoints = append(keypoints, m.detectLevel(level, l, scale, perLevel[l])...)
	}
	return keypoints
}

// featuresPerLevel распределяет бюджет точек по уровням пропорционально площади.
func (m *ORBMatcher) featuresPerLevel() []int {
	levels := m.Levels
	if levels < 1 {
		levels = 1
	}
	f := 1 / (m.ScaleFactor * m.ScaleFactor)
	n := make([]int, levels)
	first := float64(m.Features) * (1 - f) / (1 - math.Pow(f, float64(levels)))
	total := 0
	for i := 0; i < levels-1; i++ {
		n[i] = int(math.Round(first * math.Pow(f, float64(i))))
		total += n[i]
	}
	n[levels-1] = maxInt(m.Features-total, 0)
	return n
}

type corner struct {
	x, y   int
	score  float64
	harris float64
}

func (m *ORBMatcher) detectLevel(g *image.Gray, octave int, scale float64, budget int) []entity.Keypoint {
	if budget <= 0 {
		return nil
	}
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	scores := make([]float64, w*h)
	for y := orbEdge; y < h-orbEdge; y++ {
		for x := orbEdge; x < w-orbEdge; x++ {
			scores[y*w+x] = fastScore(g, x, y, m.FastThreshold)
		}
	}

	var corners []corner
	for y := orbEdge; y < h-orbEdge; y++ {
		for x := orbEdge; x < w-orbEdge; x++ {
			s := scores[y*w+x]
			if s <= 0 || !isLocalMax(scores, w, x, y) {
				continue
			}
			corners = append(corners, corner{x: x, y: y, score: s, harris: harrisResponse(g, x, y)})
		}
	}

	sort.Slice(corners, func(i, j int) bool {
		if corners[i].harris != corners[j].harris {
			return corners[i].harris > corners[j].harris
		}
		if corners[i].y != corners[j].y {
			return corners[i].y < corners[j].y
		}
		return corners[i].x < corners[j].x
	})
	if len(corners) > budget {
		corners = corners[:budget]
	}
	if len(corners) == 0 {
		return nil
	}

	smooth := binomialBlur(g)
	out := make([]entity.Keypoint, 0, len(corners))
	for _, c := range corners {
		angle := intensityCentroidAngle(g, c.x, c.y)
		deg := angle * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		out = append(out, entity.Keypoint{
			X:          float64(c.x) * scale,
			Y:          float64(c.y) * scale,
			Angle:      deg,
			Size:       float64(2*orbPatchRadius+1) * scale,
			Response:   c.harris,
			Octave:     octave,
			Descriptor: briefDescriptor(smooth, w, c.x, c.y, angle),
		})
	}
	return out
}

// fastScore возвращает силу угла FAST-9 или 0, если угла нет.
func fastScore(g *image.Gray, x, y, threshold int) float64 {
	center := int(g.Pix[y*g.Stride+x])
	var vals [fastCircleSize]int
	for i, p := range fastCircle {
		vals[i] = int(g.Pix[(y+p.Y)*g.Stride+x+p.X])
	}

	best := 0.0
	for _, sign := range [2]int{1, -1} {
		run, maxRun := 0, 0
		var sum float64
		for i := 0; i < 2*fastCircleSize; i++ {
			d := sign * (vals[i%fastCircleSize] - center)
			if d > threshold {
				run++
				if run > maxRun {
					maxRun = run
				}
			} else {
				run = 0
			}
		}
		if maxRun < fastArcLength {
			continue
		}
		for _, v := range vals {
			if d := sign * (v - center); d > threshold {
				sum += float64(d - threshold)
			}
		}
		if sum > best {
			best = sum
		}
	}
	return best
}

// isLocalMax подавление немаксимумов 3x3 с детерминированным разрешением равенств
func isLocalMax(scores []float64, w, x, y int) bool {
	s := scores[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if n > s || (before && n == s) {
				return false
			}
		}
	}
	return true
}

// harrisResponse отклик Харриса по окну 7x7 градиентов Собеля
func harrisResponse(g *image.Gray, x, y int) float64 {
	at := func(px, py int) float64 { return float64(g.Pix[py*g.Stride+px]) }
	var sxx, syy, sxy float64
	for dy := -orbHarrisBlock; dy <= orbHarrisBlock; dy++ {
		for dx := -orbHarrisBlock; dx <= orbHarrisBlock; dx++ {
			px, py := x+dx, y+dy
			ix := (at(px+1, py-1) + 2*at(px+1, py) + at(px+1, py+1)) -
				(at(px-1, py-1) + 2*at(px-1, py) + at(px-1, py+1))
			iy := (at(px-1, py+1) + 2*at(px, py+1) + at(px+1, py+1)) -
				(at(px-1, py-1) + 2*at(px, py-1) + at(px+1, py-1))
			sxx += ix * ix
			syy += iy * iy
			sxy += ix * iy
		}
	}
	trace := sxx + syy
	return sxx*syy - sxy*sxy - orbHarrisK*trace*trace
}

// intensityCentroidAngle ориентация точки по центроиду яркости круга радиуса 15, радианы
func intensityCentroidAngle(g *image.Gray, x, y int) float64 {
	var m01, m10 float64
	r2 := orbPatchRadius * orbPatchRadius
	for dy := -orbPatchRadius; dy <= orbPatchRadius; dy++ {
		for dx := -orbPatchRadius; dx <= orbPatchRadius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := float64(g.Pix[(y+dy)*g.Stride+x+dx])
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// briefDescriptor сравнивает пары точек, повёрнутые на angle, на сглаженном уровне
func briefDescriptor(smooth []float64, w, x, y int, angle float64) entity.Descriptor {
	sin, cos := math.Sincos(angle)
	at := func(px, py float64) float64 {
		rx := int(math.Round(px*cos - py*sin))
		ry := int(math.Round(px*sin + py*cos))
		return smooth[(y+ry)*w+x+rx]
	}
	var d entity.Descriptor
	for i, p := range briefPattern {
		if at(p.x1, p.y1) < at(p.x2, p.y2) {
			d.SetBit(i)
		}
	}
	return d
}

// binomialBlur сепарабельное сглаживание ядром [1 4 6 4 1]/16 с зеркальными краями
func binomialBlur(g *image.Gray) []float64 {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	kernel := [5]float64{1, 4, 6, 4, 1}
	tmp := make([]float64, w*h)
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k := -2; k <= 2; k++ {
				s += kernel[k+2] * float64(g.Pix[y*g.Stride+reflect(x+k, w)])
			}
			tmp[y*w+x] = s / 16
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for k := -2; k <= 2; k++ {
				s += kernel[k+2] * tmp[reflect(y+k, h)*w+x]
			}
			out[y*w+x] = s / 16
		}
	}
	return out
}

func reflect(i, n int) int {
	if i < 0 {
		i = -i - 1
	}
	if i >= n {
		i = 2*n - i - 1
	}
	return clampInt(i, 0, n-1)
}

// lumaGray переводит плоскость яркости в image.Gray
func lumaGray(img *entity.NormalizedImage) *image.Gray {
	w, h := img.Width(), img.Height()
	g := image.NewGray(image.Rect(0, 0, w, h))
	luma := img.Luma()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Pix[y*g.Stride+x] = uint8(clamp(math.Round(luma[y*w+x]), 0, 255))
		}
	}
	return g
}

// MatchDescriptors сопоставляет каждую точку A с ближайшей в B.
// Соответствие остаётся, если best < ratio*second; точка B используется один раз.
// Результат отсортирован по расстоянию и обрезан до maxMatches.
func MatchDescriptors(a, b []entity.Keypoint, ratio float64, maxMatches int) []entity.Match {
	if len(a) == 0 || len(b) == 0 || maxMatches <= 0 {
		return []entity.Match{}
	}

	byTrain := make(map[int]entity.Match)
	for qi, qa := range a {
		best, second := math.MaxInt, math.MaxInt
		bestIdx := -1
		for ti, tb := range b {
			d := qa.Descriptor.Hamming(tb.Descriptor)
			if d < best {
				second = best
				best, bestIdx = d, ti
			} else if d < second {
				second = d
			}
		}
		if bestIdx < 0 {
			continue
		}
		if second != math.MaxInt && !(float64(best) < ratio*float64(second)) {
			continue
		}
		if prev, ok := byTrain[bestIdx]; ok && !matchLess(entity.Match{QueryIdx: qi, TrainIdx: bestIdx, Distance: best}, prev) {
			continue
		}
		byTrain[bestIdx] = entity.Match{QueryIdx: qi, TrainIdx: bestIdx, Distance: best}
	}

	matches := make([]entity.Match, 0, len(byTrain))
	for _, mt := range byTrain {
		matches = append(matches, mt)
	}
	sort.Slice(matches, func(i, j int) bool { return matchLess(matches[i], matches[j]) })
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	return matches
}

func matchLess(a, b entity.Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.QueryIdx != b.QueryIdx {
		return a.QueryIdx < b.QueryIdx
	}
	return a.TrainIdx < b.TrainIdx
}

var _ port.KeypointMatcher = (*ORBMatcher)(nil)
