package features

import (
	"io"
	"log"
	"sort"

	"github.com/pkg/errors"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// ModelSpec где лежит сеть для модели. Пустой Path означает встроенную сеть.
type ModelSpec struct {
	Path        string
	OutputLayer string
}

// Registry экстракторы по моделям. Заполняется при старте и дальше только читается.
type Registry struct {
	extractors map[entity.ModelKind]port.FeatureExtractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[entity.ModelKind]port.FeatureExtractor)}
}

// LoadRegistry загружает все модели один раз.
// Для модели с путём к файлу нужна сборка с тегом gocv.
func LoadRegistry(specs map[entity.ModelKind]ModelSpec) (*Registry, error) {
	r := NewRegistry()
	for _, kind := range entity.ModelKinds() {
		spec := specs[kind]
		if spec.Path == "" {
			ex, err := NewFilterBankExtractor(kind)
			if err != nil {
				return nil, err
			}
			r.Register(kind, ex)
			log.Printf("Model %s: built-in filter bank (%d features)", kind, kind.Dimension())
			continue
		}

		ex, err := NewDNNExtractor(kind, spec)
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "load %s model", kind)
		}
		r.Register(kind, ex)
		log.Printf("Model %s: loaded %s (%d features)", kind, spec.Path, kind.Dimension())
	}
	return r, nil
}

// Register добавляет экстрактор; вызывать только до начала обслуживания запросов.
func (r *Registry) Register(kind entity.ModelKind, ex port.FeatureExtractor) {
	r.extractors[kind] = ex
}

// Extractor возвращает экстрактор модели
func (r *Registry) Extractor(kind entity.ModelKind) (port.FeatureExtractor, error) {
	ex, ok := r.extractors[kind]
	if !ok {
		return nil, entity.ExtractionFailed(nil, "model %q is not loaded", kind)
	}
	return ex, nil
}

// Kinds загруженные модели в алфавитном порядке
func (r *Registry) Kinds() []entity.ModelKind {
	kinds := make([]entity.ModelKind, 0, len(r.extractors))
	for k := range r.extractors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Close освобождает ресурсы экстракторов, которые их держат
func (r *Registry) Close() error {
	var first error
	for kind, ex := range r.extractors {
		c, ok := ex.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s model", kind)
		}
	}
	return first
}

var _ port.ExtractorProvider = (*Registry)(nil)
