package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	app "image-similarity/internal/application"
	"image-similarity/internal/domain/entity"
	"image-similarity/internal/infrastructure/features"
	"image-similarity/internal/infrastructure/vision"
	"image-similarity/internal/testutil"
)

const testMaxBytes = 1 << 20

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	reg, err := features.LoadRegistry(nil)
	require.NoError(t, err)

	svc := app.NewComparisonService(
		vision.NewNormalizer(128, 128, testMaxBytes, 40_000_000),
		reg,
		features.NewCosineScorer(),
		vision.NewSSIMScorer(7, 1),
		vision.NewORBMatcher(500, 0.75),
		vision.NewRenderer(0.4),
		app.ComparisonConfig{
			DefaultExtractor:  entity.ModelResNet50,
			DefaultPolicy:     entity.PolicyFit,
			DefaultMaxMatches: 30,
			MaxMatchesCeiling: 500,
			MaxBytes:          testMaxBytes,
			Timeout:           30 * time.Second,
		},
	)
	return NewApp(NewHandler(svc, reg, testMaxBytes), 4*testMaxBytes)
}

type part struct {
	field, filename string
	data            []byte
}

func multipartRequest(t *testing.T, files []part, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/compare", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestCompare_IdenticalImages(t *testing.T) {
	a := newTestApp(t)
	img := testutil.PNG(testutil.Scene(128, 128, 51))

	resp, err := a.Test(multipartRequest(t, []part{
		{"image1", "a.png", img},
		{"image2", "b.png", img},
	}, map[string]string{"maxOrbMatches": "10"}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	body := decode[CompareResponse](t, resp)
	require.GreaterOrEqual(t, body.CosinePercentage, 99.0)
	require.GreaterOrEqual(t, body.SSIMPercentage, 99.0)
	require.GreaterOrEqual(t, body.ORBMatchCount, 1)
	require.LessOrEqual(t, body.ORBMatchCount, 10)
	require.True(t, strings.HasPrefix(body.SSIMHeatmap, "data:image/png;base64,"))
	require.True(t, strings.HasPrefix(body.ORBMatches, "data:image/png;base64,"))
	require.Equal(t, "resnet50", body.FeatureExtractor)
	require.Equal(t, "fit", body.ResizePolicy)
}

func TestCompare_UnrelatedImages(t *testing.T) {
	a := newTestApp(t)

	resp, err := a.Test(multipartRequest(t, []part{
		{"image1", "a.jpg", testutil.JPEG(testutil.Scene(240, 180, 52))},
		{"image2", "b.png", testutil.PNG(testutil.Scene(150, 200, 53))},
	}, map[string]string{"featureExtractor": "mobilenet", "resizePolicy": "crop"}), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[CompareResponse](t, resp)
	require.GreaterOrEqual(t, body.CosinePercentage, 0.0)
	require.LessOrEqual(t, body.CosinePercentage, 100.0)
	require.GreaterOrEqual(t, body.SSIMPercentage, 0.0)
	require.LessOrEqual(t, body.SSIMPercentage, 100.0)
	require.NotEmpty(t, body.SSIMHeatmap)
	require.NotEmpty(t, body.ORBMatches)
	require.Equal(t, "mobilenet", body.FeatureExtractor)
}

func TestCompare_TextFileRenamedToPNG(t *testing.T) {
	a := newTestApp(t)

	resp, err := a.Test(multipartRequest(t, []part{
		{"image1", "notes.png", []byte("just some plain text, definitely not an image\n")},
		{"image2", "b.png", testutil.PNG(testutil.Scene(64, 64, 54))},
	}, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	require.Equal(t, string(entity.CodeInvalidImage), body.Code)
	require.NotEmpty(t, body.Error)
}

func TestCompare_Oversized(t *testing.T) {
	a := newTestApp(t)
	big := make([]byte, testMaxBytes+1)
	copy(big, testutil.PNG(testutil.Scene(32, 32, 55)))

	resp, err := a.Test(multipartRequest(t, []part{
		{"image1", "big.png", big},
		{"image2", "b.png", testutil.PNG(testutil.Scene(64, 64, 56))},
	}, nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	require.Equal(t, string(entity.CodeImageTooLarge), body.Code)
}

func TestCompare_BadRequests(t *testing.T) {
	a := newTestApp(t)
	img := testutil.PNG(testutil.Scene(64, 64, 57))

	cases := []struct {
		name   string
		files  []part
		fields map[string]string
	}{
		{"missing image2", []part{{"image1", "a.png", img}}, nil},
		{"bad matches", []part{{"image1", "a.png", img}, {"image2", "b.png", img}}, map[string]string{"maxOrbMatches": "many"}},
		{"zero matches", []part{{"image1", "a.png", img}, {"image2", "b.png", img}}, map[string]string{"maxOrbMatches": "0"}},
		{"bad model", []part{{"image1", "a.png", img}, {"image2", "b.png", img}}, map[string]string{"featureExtractor": "vgg19"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, err := a.Test(multipartRequest(t, c.files, c.fields), -1)
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			body := decode[ErrorResponse](t, resp)
			require.Equal(t, string(entity.CodeInvalidRequest), body.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[HealthResponse](t, resp)
	require.Equal(t, "ok", body.Status)
	require.ElementsMatch(t, []string{"resnet50", "mobilenet"}, body.Models)
}
