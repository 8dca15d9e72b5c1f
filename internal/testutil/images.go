// Package testutil генерирует изображения для тестов.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
)

// Scene рисует детерминированную сцену: шумный фон и набор прямоугольников.
// Разные seed дают разные сцены.
func Scene(width, height int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	base := uint8(40 + rng.Intn(60))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			n := uint8(rng.Intn(14))
			img.SetRGBA(x, y, color.RGBA{R: base + n, G: base + n/2, B: base, A: 255})
		}
	}

	margin := width / 8
	for i := 0; i < 18; i++ {
		w := 12 + rng.Intn(width/4)
		h := 12 + rng.Intn(height/4)
		x0 := margin + rng.Intn(width-2*margin-w)
		y0 := margin + rng.Intn(height-2*margin-h)
		c := color.RGBA{
			R: uint8(120 + rng.Intn(136)),
			G: uint8(rng.Intn(256)),
			B: uint8(rng.Intn(256)),
			A: 255,
		}
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}

// Solid однотонное изображение
func Solid(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// PNG кодирует изображение в PNG
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG кодирует изображение в JPEG
func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
