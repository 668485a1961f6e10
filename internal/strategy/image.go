package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

var (
	ErrNilImage   = errors.New("image is nil")
	ErrEmptyImage = errors.New("image has empty bounds")
)

// Image snapshots image.Image values as PNG.
//
// Every image is normalized to NRGBA anchored at (0,0) before encoding, so two
// images with the same pixels produce identical bytes regardless of their
// concrete type or origin.
type Image struct{}

func (Image) Kind() Kind        { return KindImage }
func (Image) Extension() string { return "png" }

func (Image) Serialize(img image.Image) ([]byte, error) {
	n, err := normalize(img)
	if err != nil {
		return nil, err
	}
	return encodePNG(n)
}

// RenderDifference draws the per-channel absolute difference of the two
// images over the union of their sizes. Identical pixels come out black;
// pixels present in only one image are compared against transparent black.
func (Image) RenderDifference(reference, failure image.Image) ([]byte, error) {
	ref, err := normalize(reference)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	fail, err := normalize(failure)
	if err != nil {
		return nil, fmt.Errorf("failure: %w", err)
	}

	w := max(ref.Bounds().Dx(), fail.Bounds().Dx())
	h := max(ref.Bounds().Dy(), fail.Bounds().Dy())
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := ref.NRGBAAt(x, y)
			b := fail.NRGBAAt(x, y)
			out.SetNRGBA(x, y, color.NRGBA{
				R: absDiff(a.R, b.R),
				G: absDiff(a.G, b.G),
				B: absDiff(a.B, b.B),
				A: 0xff,
			})
		}
	}
	return encodePNG(out)
}

func normalize(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, ErrEmptyImage
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
