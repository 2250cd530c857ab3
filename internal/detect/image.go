package detect

import (
	"fmt"
	"image"
	"image/color"
	"io"

	// Registered decoders for ImageDimensions and DecodeImage.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/faceproc/internal/geometry"
)

// ImageDimensions reads the image header and returns its size and format name.
func ImageDimensions(r io.Reader) (geometry.Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return geometry.Dimensions{}, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return geometry.Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// DecodeImage decodes any registered image format.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// PadToSquare pads the image with black pixels on the right or bottom so it becomes square.
// The top-left corner stays in place, so relative coordinates only need RelativePadding to be undone.
func PadToSquare(img image.Image) *image.RGBA {
	b := img.Bounds()
	side := max(b.Dx(), b.Dy())

	out := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(0, 0, b.Dx(), b.Dy()), img, b.Min, draw.Src)
	return out
}

// PrepareInput letterboxes the image and scales it to inputSize x inputSize.
// A positive border keeps that many black pixels around the scaled image.
func PrepareInput(img image.Image, inputSize, border int) (*image.RGBA, error) {
	if inputSize <= 0 || border < 0 || 2*border >= inputSize {
		return nil, fmt.Errorf("invalid input size %d with border %d", inputSize, border)
	}
	square := PadToSquare(img)

	out := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	target := image.Rect(border, border, inputSize-border, inputSize-border)
	draw.CatmullRom.Scale(out, target, square, square.Bounds(), draw.Over, nil)
	return out, nil
}
