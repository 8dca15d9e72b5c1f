package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/require"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/testutil"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(320, 320, 8<<20, 40_000_000)
}

func TestNormalizer_Fit(t *testing.T) {
	n := newTestNormalizer()
	img, err := n.Normalize(context.Background(), testutil.PNG(testutil.Scene(400, 200, 1)), entity.PolicyFit)
	require.NoError(t, err)
	require.Equal(t, 320, img.Width())
	require.Equal(t, 320, img.Height())
	require.Equal(t, image.Rect(0, 0, 320, 320), img.Content())
	require.Equal(t, entity.PolicyFit, img.Policy())

	x, y := img.ToOriginal(320, 320)
	require.InDelta(t, 400, x, 1e-9)
	require.InDelta(t, 200, y, 1e-9)
}

func TestNormalizer_Crop(t *testing.T) {
	n := newTestNormalizer()
	img, err := n.Normalize(context.Background(), testutil.PNG(testutil.Scene(400, 200, 2)), entity.PolicyCrop)
	require.NoError(t, err)
	require.Equal(t, 320, img.Width())
	require.Equal(t, 320, img.Height())

	// 400x200 масштабируется до 640x320, по центру отрезается по 160 пикселей с боков.
	x, y := img.ToOriginal(0, 0)
	require.InDelta(t, 100, x, 1e-9)
	require.InDelta(t, 0, y, 1e-9)
	x, _ = img.ToOriginal(320, 0)
	require.InDelta(t, 300, x, 1e-9)
}

func TestNormalizer_KeepAspectPreservesRatio(t *testing.T) {
	n := newTestNormalizer()
	cases := []struct{ w, h int }{{400, 200}, {150, 450}, {640, 480}, {333, 333}}
	for _, c := range cases {
		img, err := n.Normalize(context.Background(), testutil.PNG(testutil.Scene(c.w, c.h, 3)), entity.PolicyKeepAspect)
		require.NoError(t, err)

		content := img.Content()
		inRatio := float64(c.w) / float64(c.h)
		outRatio := float64(content.Dx()) / float64(content.Dy())
		// допуск на округление одной стороны до целого пикселя
		tol := inRatio * (1/float64(content.Dx()) + 1/float64(content.Dy()))
		require.InDelta(t, inRatio, outRatio, tol, "%dx%d", c.w, c.h)
		require.True(t, content.In(image.Rect(0, 0, 320, 320)))
	}
}

func TestNormalizer_KeepAspectPadsWithNeutralFill(t *testing.T) {
	n := newTestNormalizer()
	img, err := n.Normalize(context.Background(), testutil.PNG(testutil.Scene(400, 200, 4)), entity.PolicyKeepAspect)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 80, 320, 240), img.Content())
	require.Equal(t, neutralFill, img.Image().RGBAAt(5, 5))

	x, y := img.ToOriginal(0, 80)
	require.InDelta(t, 0, x, 1e-9)
	require.InDelta(t, 0, y, 1e-9)
}

func TestNormalizer_DecodesJPEG(t *testing.T) {
	n := newTestNormalizer()
	img, err := n.Normalize(context.Background(), testutil.JPEG(testutil.Scene(200, 200, 5)), entity.PolicyFit)
	require.NoError(t, err)
	w, h := img.OriginalSize()
	require.Equal(t, 200, w)
	require.Equal(t, 200, h)
}

// lossless1x1WebP однопиксельная картинка VP8L
var lossless1x1WebP = []byte{
	0x52, 0x49, 0x46, 0x46, 0x1a, 0x00, 0x00, 0x00, 0x57, 0x45, 0x42, 0x50,
	0x56, 0x50, 0x38, 0x4c, 0x0d, 0x00, 0x00, 0x00, 0x2f, 0x00, 0x00, 0x00,
	0x10, 0x07, 0x10, 0x11, 0x11, 0x88, 0x88, 0xfe, 0x07, 0x00,
}

func TestNormalizer_DecodesLosslessWebP(t *testing.T) {
	n := newTestNormalizer()
	img, err := n.Normalize(context.Background(), lossless1x1WebP, entity.PolicyKeepAspect)
	require.NoError(t, err)
	w, h := img.OriginalSize()
	require.Equal(t, 1, w)
	require.Equal(t, 1, h)
	require.Equal(t, 320, img.Width())
	require.Equal(t, 320, img.Height())
}

func TestNormalizer_InvalidImage(t *testing.T) {
	n := newTestNormalizer()
	_, err := n.Normalize(context.Background(), []byte("definitely not a png"), entity.PolicyFit)
	require.ErrorIs(t, err, entity.ErrInvalidImage)

	_, err = n.Normalize(context.Background(), nil, entity.PolicyFit)
	require.ErrorIs(t, err, entity.ErrInvalidImage)
}

func TestNormalizer_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White})
	require.NoError(t, gif.Encode(&buf, pal, nil))

	_, err := newTestNormalizer().Normalize(context.Background(), buf.Bytes(), entity.PolicyFit)
	require.ErrorIs(t, err, entity.ErrInvalidImage)
}

func TestNormalizer_TooLarge(t *testing.T) {
	data := testutil.PNG(testutil.Scene(400, 200, 6))

	n := NewNormalizer(320, 320, int64(len(data)-1), 0)
	_, err := n.Normalize(context.Background(), data, entity.PolicyFit)
	require.ErrorIs(t, err, entity.ErrImageTooLarge)

	n = NewNormalizer(320, 320, 0, 1000)
	_, err = n.Normalize(context.Background(), data, entity.PolicyFit)
	require.ErrorIs(t, err, entity.ErrImageTooLarge)
}

func TestNormalizer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestNormalizer().Normalize(ctx, testutil.PNG(testutil.Scene(100, 100, 7)), entity.PolicyFit)
	require.ErrorIs(t, err, context.Canceled)
}
