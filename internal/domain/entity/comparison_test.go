package entity

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	p, err := ParseResizePolicy("", PolicyFit)
	require.NoError(t, err)
	require.Equal(t, PolicyFit, p)

	p, err = ParseResizePolicy(" Keep_Aspect ", PolicyFit)
	require.NoError(t, err)
	require.Equal(t, PolicyKeepAspect, p)

	_, err = ParseResizePolicy("stretch", PolicyFit)
	require.Error(t, err)

	k, err := ParseModelKind("mobilenet", ModelResNet50)
	require.NoError(t, err)
	require.Equal(t, 1024, k.Dimension())

	_, err = ParseModelKind("vgg16", ModelResNet50)
	require.Error(t, err)
}

func TestSSIMGridSize(t *testing.T) {
	rows, cols := SSIMGridSize(320, 240, 7, 1)
	require.Equal(t, 234, rows)
	require.Equal(t, 314, cols)

	rows, cols = SSIMGridSize(32, 32, 7, 4)
	require.Equal(t, 7, rows)
	require.Equal(t, 7, cols)

	rows, cols = SSIMGridSize(5, 5, 7, 1)
	require.Zero(t, rows)
	require.Zero(t, cols)
}

func TestDescriptorHamming(t *testing.T) {
	var a, b Descriptor
	a.SetBit(0)
	a.SetBit(255)
	b.SetBit(255)
	require.True(t, a.Bit(0))
	require.Equal(t, 1, a.Hamming(b))
	require.Equal(t, 0, a.Hamming(a))
}

func TestNormalizedImage_LumaAndMapping(t *testing.T) {
	pix := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := 0; i < len(pix.Pix); i += 4 {
		pix.Pix[i], pix.Pix[i+1], pix.Pix[i+2], pix.Pix[i+3] = 100, 100, 100, 255
	}
	img := NewNormalizedImage(pix, PolicyFit, 8, 4, pix.Bounds(), Affine{ScaleX: 2, ScaleY: 2})

	require.InDelta(t, 100, img.LumaAt(3, 1), 1e-9)
	x, y := img.ToOriginal(1.5, 1)
	require.InDelta(t, 3, x, 1e-9)
	require.InDelta(t, 2, y, 1e-9)
	w, h := img.OriginalSize()
	require.Equal(t, 8, w)
	require.Equal(t, 4, h)
}

func TestPercentage(t *testing.T) {
	require.Equal(t, 0.0, Percentage(-0.3))
	require.Equal(t, 100.0, Percentage(1.2))
	require.Equal(t, 12.35, Percentage(0.123456))
}
