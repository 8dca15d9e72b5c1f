//go:build gocv
// +build gocv

package features

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

const dnnInputSide = 224

// Нормализация ImageNet: (pixel - mean) / std, std усреднено по каналам.
var (
	dnnMean  = gocv.NewScalar(123.675, 116.28, 103.53, 0)
	dnnScale = 1.0 / 58.4
)

// DNNExtractor предобученная сеть ONNX через модуль dnn OpenCV.
type DNNExtractor struct {
	mu     sync.Mutex // Forward меняет внутренние буферы сети
	net    gocv.Net
	kind   entity.ModelKind
	output string
}

// NewDNNExtractor загружает сеть из spec.Path.
func NewDNNExtractor(kind entity.ModelKind, spec ModelSpec) (*DNNExtractor, error) {
	if kind.Dimension() == 0 {
		return nil, errors.Errorf("unknown model %q", kind)
	}
	net := gocv.ReadNet(spec.Path, "")
	if net.Empty() {
		return nil, errors.Errorf("cannot read network from %s", spec.Path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set target")
	}
	return &DNNExtractor{net: net, kind: kind, output: spec.OutputLayer}, nil
}

// Extract прогоняет изображение через сеть и возвращает выход слоя output.
func (e *DNNExtractor) Extract(ctx context.Context, img *entity.NormalizedImage) (entity.EmbeddingVector, error) {
	mat, err := gocv.ImageToMatRGB(img.Image())
	if err != nil {
		return nil, entity.ExtractionFailed(errors.Wrap(err, "image to mat"), "cannot prepare network input")
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, dnnScale, image.Pt(dnnInputSide, dnnInputSide), dnnMean, true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.net.SetInput(blob, "")
	out := e.net.Forward(e.output)
	e.mu.Unlock()
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, entity.ExtractionFailed(errors.Wrap(err, "read output"), "network output is not readable")
	}
	if len(data) != e.kind.Dimension() {
		return nil, entity.ExtractionFailed(nil, "network produced %d features, want %d", len(data), e.kind.Dimension())
	}

	vec := make(entity.EmbeddingVector, len(data))
	copy(vec, data)
	return vec, nil
}

// Close освобождает сеть
func (e *DNNExtractor) Close() error {
	return e.net.Close()
}

var _ port.FeatureExtractor = (*DNNExtractor)(nil)
