package app

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// ComparisonConfig умолчания и ограничения сравнения
type ComparisonConfig struct {
	DefaultExtractor  entity.ModelKind
	DefaultPolicy     entity.ResizePolicy
	DefaultMaxMatches int
	MaxMatchesCeiling int
	MaxBytes          int64
	Timeout           time.Duration
}

// allowedMIME типы, которые пропускает валидация до декодирования
var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ComparisonService проводит запрос через стадии
// validating, normalizing, scoring, rendering.
type ComparisonService struct {
	normalizer port.ImageNormalizer
	extractors port.ExtractorProvider
	semantic   port.SemanticScorer
	structural port.StructuralScorer
	matcher    port.KeypointMatcher
	renderer   port.Renderer
	cfg        ComparisonConfig
}

func NewComparisonService(
	normalizer port.ImageNormalizer,
	extractors port.ExtractorProvider,
	semantic port.SemanticScorer,
	structural port.StructuralScorer,
	matcher port.KeypointMatcher,
	renderer port.Renderer,
	cfg ComparisonConfig,
) *ComparisonService {
	return &ComparisonService{
		normalizer: normalizer,
		extractors: extractors,
		semantic:   semantic,
		structural: structural,
		matcher:    matcher,
		renderer:   renderer,
		cfg:        cfg,
	}
}

// Config текущие умолчания сервиса
func (s *ComparisonService) Config() ComparisonConfig {
	return s.cfg
}

// ResolveOptions подставляет умолчания и проверяет параметры.
func (s *ComparisonService) ResolveOptions(opts entity.ComparisonOptions) (entity.ComparisonOptions, error) {
	kind, err := entity.ParseModelKind(string(opts.FeatureExtractor), s.cfg.DefaultExtractor)
	if err != nil {
		return opts, entity.InvalidRequest("featureExtractor must be one of resnet50, mobilenet")
	}
	policy, err := entity.ParseResizePolicy(string(opts.ResizePolicy), s.cfg.DefaultPolicy)
	if err != nil {
		return opts, entity.InvalidRequest("resizePolicy must be one of fit, crop, keep_aspect")
	}

	maxMatches := opts.MaxMatches
	switch {
	case maxMatches == 0:
		maxMatches = s.cfg.DefaultMaxMatches
	case maxMatches < 0:
		return opts, entity.InvalidRequest("maxOrbMatches must be a positive integer")
	case s.cfg.MaxMatchesCeiling > 0 && maxMatches > s.cfg.MaxMatchesCeiling:
		return opts, entity.InvalidRequest("maxOrbMatches must not exceed %d", s.cfg.MaxMatchesCeiling)
	}

	return entity.ComparisonOptions{
		FeatureExtractor: kind,
		MaxMatches:       maxMatches,
		ResizePolicy:     policy,
	}, nil
}

// Compare сравнивает два изображения. Ошибка всегда *entity.ComparisonError,
// частичный результат не возвращается.
func (s *ComparisonService) Compare(ctx context.Context, req entity.ComparisonRequest) (*entity.ComparisonResult, error) {
	start := time.Now()
	tr := newTrace(ctx)

	tr.enter(entity.StageValidating)
	opts, err := s.validate(req)
	if err != nil {
		return nil, tr.fail(err)
	}
	extractor, err := s.extractors.Extractor(opts.FeatureExtractor)
	if err != nil {
		return nil, tr.fail(err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	// Конвейер идёт в своей горутине: по таймауту ответ уходит сразу,
	// а run останавливается на ближайшей границе стадий.
	type outcome struct {
		res *entity.ComparisonResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.run(ctx, tr, req, opts, extractor)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, tr.fail(classify(ctx, out.err))
		}
		out.res.Elapsed = time.Since(start)
		tr.enter(entity.StageComplete)
		return out.res, nil
	case <-ctx.Done():
		return nil, tr.fail(entity.Timeout(ctx.Err()))
	}
}

func (s *ComparisonService) validate(req entity.ComparisonRequest) (entity.ComparisonOptions, error) {
	if err := s.checkPayload("image1", req.ImageA); err != nil {
		return req.Options, err
	}
	if err := s.checkPayload("image2", req.ImageB); err != nil {
		return req.Options, err
	}
	return s.ResolveOptions(req.Options)
}

func (s *ComparisonService) checkPayload(field string, data []byte) error {
	if len(data) == 0 {
		return entity.InvalidRequest("%s is required", field)
	}
	if s.cfg.MaxBytes > 0 && int64(len(data)) > s.cfg.MaxBytes {
		return entity.ImageTooLarge("%s exceeds %d bytes", field, s.cfg.MaxBytes)
	}
	if mime := http.DetectContentType(data); !allowedMIME[mime] {
		return entity.InvalidImage(nil, "%s must be a JPEG, PNG or WebP image", field)
	}
	return nil
}

func (s *ComparisonService) run(
	ctx context.Context,
	tr *trace,
	req entity.ComparisonRequest,
	opts entity.ComparisonOptions,
	extractor port.FeatureExtractor,
) (*entity.ComparisonResult, error) {
	tr.enter(entity.StageNormalizing)
	var a, b *entity.NormalizedImage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = s.normalizer.Normalize(gctx, req.ImageA, opts.ResizePolicy)
		return err
	})
	g.Go(func() error {
		var err error
		b, err = s.normalizer.Normalize(gctx, req.ImageB, opts.ResizePolicy)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.enter(entity.StageScoring)
	var (
		vecA, vecB entity.EmbeddingVector
		ssimMap    *entity.SSIMMap
		ssimScore  float64
		ssimPct    float64
		matches    *entity.MatchSet
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecA, err = extractor.Extract(gctx, a)
		return extractionError(err)
	})
	g.Go(func() error {
		var err error
		vecB, err = extractor.Extract(gctx, b)
		return extractionError(err)
	})
	g.Go(func() error {
		var err error
		ssimMap, ssimScore, ssimPct, err = s.structural.Score(a, b)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matcher.Match(gctx, a, b, opts.MaxMatches)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cosine, cosinePct, err := s.semantic.Score(vecA, vecB)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.enter(entity.StageRendering)
	var heatmap, matchesImage []byte
	g, _ = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		heatmap, err = s.renderer.RenderHeatmap(ssimMap, a)
		return err
	})
	g.Go(func() error {
		var err error
		matchesImage, err = s.renderer.RenderMatches(a, b, matches)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &entity.ComparisonResult{
		CosineSimilarity: cosine,
		CosinePercentage: cosinePct,
		SSIMScore:        ssimScore,
		SSIMPercentage:   ssimPct,
		Heatmap:          heatmap,
		MatchesImage:     matchesImage,
		MatchCount:       len(matches.Matches),
		KeypointsA:       len(matches.KeypointsA),
		KeypointsB:       len(matches.KeypointsB),
		FeatureExtractor: opts.FeatureExtractor,
		ResizePolicy:     opts.ResizePolicy,
	}, nil
}

// extractionError оставляет доменные ошибки и ошибки контекста как есть,
// остальное считает сбоем сети.
func extractionError(err error) error {
	if err == nil || isContextErr(err) {
		return err
	}
	var ce *entity.ComparisonError
	if errors.As(err, &ce) {
		return err
	}
	return entity.ExtractionFailed(err, "feature extraction failed")
}

// classify приводит ошибку стадии к доменной; истёкший контекст даёт TIMEOUT.
func classify(ctx context.Context, err error) *entity.ComparisonError {
	if isContextErr(err) || (ctx.Err() != nil && !isDomainErr(err)) {
		return entity.Timeout(err)
	}
	return entity.AsComparisonError(err)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func isDomainErr(err error) bool {
	var ce *entity.ComparisonError
	return errors.As(err, &ce)
}

// trace пишет переходы между стадиями в лог.
// После таймаута конвейер ещё может менять стадию, поэтому под мьютексом.
type trace struct {
	mu    sync.Mutex
	id    string
	stage entity.Stage
}

func newTrace(ctx context.Context) *trace {
	return &trace{id: RequestID(ctx), stage: entity.StageIdle}
}

func (t *trace) enter(stage entity.Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == entity.StageFailed {
		return
	}
	log.Printf("[%s] %s -> %s", t.id, t.stage, stage)
	t.stage = stage
}

// fail фиксирует стадию ошибки и переводит запрос в failed
func (t *trace) fail(err error) *entity.ComparisonError {
	t.mu.Lock()
	defer t.mu.Unlock()
	ce := *entity.AsComparisonError(err)
	if ce.Stage == "" {
		ce.Stage = t.stage
	}
	log.Printf("[%s] %s -> %s: %v", t.id, t.stage, entity.StageFailed, &ce)
	t.stage = entity.StageFailed
	return &ce
}

type requestIDKey struct{}

// WithRequestID кладёт идентификатор запроса в контекст для логов
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID идентификатор запроса или "-"
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return "-"
}
