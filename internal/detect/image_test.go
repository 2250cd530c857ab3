package detect

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/kozaktomas/faceproc/internal/geometry"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPadToSquare(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	wide := PadToSquare(solidImage(40, 10, white))
	assert.Equal(t, image.Rect(0, 0, 40, 40), wide.Bounds())
	assert.Equal(t, white, wide.RGBAAt(39, 9))
	assert.Equal(t, color.RGBA{A: 255}, wide.RGBAAt(0, 10))

	tall := PadToSquare(solidImage(10, 30, white))
	assert.Equal(t, image.Rect(0, 0, 30, 30), tall.Bounds())
	assert.Equal(t, white, tall.RGBAAt(9, 29))
	assert.Equal(t, color.RGBA{A: 255}, tall.RGBAAt(10, 0))
}

func TestPadToSquare_OffsetBounds(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	src := solidImage(20, 20, white).SubImage(image.Rect(5, 5, 15, 10))

	out := PadToSquare(src)
	assert.Equal(t, image.Rect(0, 0, 10, 10), out.Bounds())
	assert.Equal(t, white, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 5))
}

func TestPrepareInput(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	out, err := PrepareInput(solidImage(200, 100, white), InputSizeXS, 0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, InputSizeXS, InputSizeXS), out.Bounds())
	assert.Greater(t, out.RGBAAt(10, 10).R, uint8(250))
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(10, InputSizeXS-1))

	bordered, err := PrepareInput(solidImage(50, 50, white), 64, 4)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{A: 255}, bordered.RGBAAt(1, 1))
	assert.Greater(t, bordered.RGBAAt(32, 32).G, uint8(250))

	_, err = PrepareInput(solidImage(5, 5, white), 0, 0)
	assert.Error(t, err)
	_, err = PrepareInput(solidImage(5, 5, white), 10, 5)
	assert.Error(t, err)
}

func TestImageDimensions(t *testing.T) {
	img := solidImage(31, 17, color.RGBA{R: 10, A: 255})

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, img))
	dims, format, err := ImageDimensions(bytes.NewReader(bmpBuf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, geometry.Dimensions{Width: 31, Height: 17}, dims)
	assert.Equal(t, "bmp", format)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	dims, format, err = ImageDimensions(&pngBuf)
	require.NoError(t, err)
	assert.Equal(t, geometry.Dimensions{Width: 31, Height: 17}, dims)
	assert.Equal(t, "png", format)

	decoded, err := DecodeImage(bytes.NewReader(bmpBuf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 31, decoded.Bounds().Dx())

	_, _, err = ImageDimensions(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}
