//go:build gocv
// +build gocv

package vision

import (
	"context"
	"errors"

	"gocv.io/x/gocv"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// GoCVMatcher ищет ключевые точки через cv::ORB, фильтрация общая с ORBMatcher.
type GoCVMatcher struct {
	Features      int
	ScaleFactor   float32
	Levels        int
	EdgeThreshold int
	FastThreshold int
	Ratio         float64
}

// NewGoCVMatcher создаёт матчер на OpenCV.
func NewGoCVMatcher(features int, ratio float64) (*GoCVMatcher, error) {
	if features <= 0 {
		features = defaultFeatures
	}
	return &GoCVMatcher{
		Features:      features,
		ScaleFactor:   1.2,
		Levels:        8,
		EdgeThreshold: 31,
		FastThreshold: 20,
		Ratio:         ratio,
	}, nil
}

// Match детектирует точки в обоих изображениях и сопоставляет дескрипторы.
func (m *GoCVMatcher) Match(ctx context.Context, a, b *entity.NormalizedImage, maxMatches int) (*entity.MatchSet, error) {
	orb := gocv.NewORBWithParams(m.Features, m.ScaleFactor, m.Levels, m.EdgeThreshold, 0, 2,
		gocv.ORBScoreTypeHarris, 31, m.FastThreshold)
	defer orb.Close()

	kpA, err := detectGoCV(orb, a)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kpB, err := detectGoCV(orb, b)
	if err != nil {
		return nil, err
	}

	return &entity.MatchSet{
		KeypointsA: kpA,
		KeypointsB: kpB,
		Matches:    MatchDescriptors(kpA, kpB, m.Ratio, maxMatches),
	}, nil
}

func detectGoCV(orb gocv.ORB, img *entity.NormalizedImage) ([]entity.Keypoint, error) {
	mat, err := gocv.ImageToMatRGB(img.Image())
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := orb.DetectAndCompute(gray, mask)
	defer desc.Close()
	if desc.Empty() || len(kps) == 0 {
		return nil, nil
	}

	out := make([]entity.Keypoint, 0, len(kps))
	for i, kp := range kps {
		if i >= desc.Rows() {
			break
		}
		var d entity.Descriptor
		for col := 0; col < desc.Cols() && col < entity.DescriptorBits/8; col++ {
			v := desc.GetUCharAt(i, col)
			for bit := 0; bit < 8; bit++ {
				if v&(1<<uint(bit)) != 0 {
					d.SetBit(col*8 + bit)
				}
			}
		}
		out = append(out, entity.Keypoint{
			X:          kp.X,
			Y:          kp.Y,
			Angle:      kp.Angle,
			Size:       kp.Size,
			Response:   kp.Response,
			Octave:     kp.Octave,
			Descriptor: d,
		})
	}
	return out, nil
}

var _ port.KeypointMatcher = (*GoCVMatcher)(nil)
