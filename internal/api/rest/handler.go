package rest

import (
	"context"
	"io"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	app "image-similarity/internal/application"
	"image-similarity/internal/domain/entity"
	"image-similarity/internal/infrastructure/vision"
)

// Comparer выполняет сравнение двух изображений
type Comparer interface {
	Compare(ctx context.Context, req entity.ComparisonRequest) (*entity.ComparisonResult, error)
}

// ModelLister сообщает, какие модели загружены
type ModelLister interface {
	Kinds() []entity.ModelKind
}

// CompareResponse тело успешного ответа POST /compare
type CompareResponse struct {
	CosineSimilarity float64 `json:"cosine_similarity"`
	CosinePercentage float64 `json:"cosine_percentage"`
	SSIMScore        float64 `json:"ssim_score"`
	SSIMPercentage   float64 `json:"ssim_percentage"`
	SSIMHeatmap      string  `json:"ssim_heatmap"`
	ORBMatches       string  `json:"orb_matches"`
	ORBMatchCount    int     `json:"orb_match_count"`
	FeatureExtractor string  `json:"feature_extractor"`
	ResizePolicy     string  `json:"resize_policy"`
	ProcessingMS     int64   `json:"processing_ms"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse тело ответа GET /health
type HealthResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
}

type Handler struct {
	svc      Comparer
	models   ModelLister
	maxBytes int64
}

func NewHandler(svc Comparer, models ModelLister, maxBytes int64) *Handler {
	return &Handler{svc: svc, models: models, maxBytes: maxBytes}
}

// Compare обрабатывает POST /compare
func (h *Handler) Compare(c *fiber.Ctx) error {
	imageA, err := h.readFile(c, "image1")
	if err != nil {
		return err
	}
	imageB, err := h.readFile(c, "image2")
	if err != nil {
		return err
	}

	opts := entity.ComparisonOptions{
		FeatureExtractor: entity.ModelKind(c.FormValue("featureExtractor")),
		ResizePolicy:     entity.ResizePolicy(c.FormValue("resizePolicy")),
	}
	if raw := strings.TrimSpace(c.FormValue("maxOrbMatches")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return entity.InvalidRequest("maxOrbMatches must be a positive integer")
		}
		opts.MaxMatches = n
	}

	ctx := app.WithRequestID(c.UserContext(), requestID(c))
	res, err := h.svc.Compare(ctx, entity.ComparisonRequest{
		ImageA:  imageA,
		ImageB:  imageB,
		Options: opts,
	})
	if err != nil {
		return err
	}

	return c.JSON(CompareResponse{
		CosineSimilarity: res.CosineSimilarity,
		CosinePercentage: res.CosinePercentage,
		SSIMScore:        res.SSIMScore,
		SSIMPercentage:   res.SSIMPercentage,
		SSIMHeatmap:      vision.DataURI(res.Heatmap),
		ORBMatches:       vision.DataURI(res.MatchesImage),
		ORBMatchCount:    res.MatchCount,
		FeatureExtractor: string(res.FeatureExtractor),
		ResizePolicy:     string(res.ResizePolicy),
		ProcessingMS:     res.Elapsed.Milliseconds(),
	})
}

// Health обрабатывает GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok", Models: []string{}}
	if h.models != nil {
		for _, k := range h.models.Kinds() {
			resp.Models = append(resp.Models, string(k))
		}
	}
	return c.JSON(resp)
}

// readFile читает файл формы, проверяя размер до чтения
func (h *Handler) readFile(c *fiber.Ctx, field string) ([]byte, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, entity.InvalidRequest("%s is required", field)
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		return nil, entity.ImageTooLarge("%s exceeds %d bytes", field, h.maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, entity.Internal(errors.Wrapf(err, "open %s", field))
	}
	defer f.Close()

	limit := h.maxBytes
	if limit <= 0 {
		limit = math.MaxInt64 - 1
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, entity.Internal(errors.Wrapf(err, "read %s", field))
	}
	if int64(len(data)) > limit {
		return nil, entity.ImageTooLarge("%s exceeds %d bytes", field, h.maxBytes)
	}
	return data, nil
}

// ErrorHandler отдаёт ошибки в виде {error, code}
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := entity.CodeInvalidRequest
		switch {
		case fe.Code == fiber.StatusRequestEntityTooLarge:
			code = entity.CodeImageTooLarge
		case fe.Code >= fiber.StatusInternalServerError:
			code = entity.CodeInternal
		}
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message, Code: string(code)})
	}

	ce := entity.AsComparisonError(err)
	if ce.HTTPStatus() >= fiber.StatusInternalServerError {
		log.Printf("[%s] Request failed: %v", requestID(c), err)
	}
	return c.Status(ce.HTTPStatus()).JSON(ErrorResponse{Error: ce.Message, Code: string(ce.Code)})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDKey).(string); ok {
		return id
	}
	return ""
}
