package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"betamode/internal/services"
)

// MIMEType is the media type of encoded artifacts.
const MIMEType = "image/jpeg"

// Encoder implements the censoring image operations.
type Encoder struct{}

// NewEncoder returns an Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Decode parses data in any registered format.
func (Encoder) Decode(data []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrEncode, "censor", "decode", "unsupported or corrupt image", err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, services.Wrap(services.ErrEncode, "censor", "decode", fmt.Sprintf("empty %s image", format), nil)
	}
	return img, nil
}

// Blacken returns a copy of img with every box filled black. Boxes are
// clipped to the image bounds; boxes outside the image are ignored.
func (Encoder) Blacken(img image.Image, boxes []image.Rectangle) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	black := image.NewUniform(color.Black)
	for _, box := range boxes {
		// Detector coordinates are relative to the image origin.
		r := box.Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		draw.Draw(dst, r, black, image.Point{}, draw.Src)
	}
	return dst
}

// Downscale shrinks img so its longest edge is at most maxDimension,
// preserving aspect ratio. Images already within bounds are returned as is.
func (Encoder) Downscale(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return img
	}
	nw, nh := fitWithin(w, h, maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func fitWithin(w, h, maxDimension int) (int, int) {
	if w >= h {
		nh := max(1, (h*maxDimension+w/2)/w)
		return maxDimension, nh
	}
	nw := max(1, (w*maxDimension+h/2)/h)
	return nw, maxDimension
}

// Encode renders img as JPEG at quality. Transparent pixels are flattened
// onto white.
func (Encoder) Encode(img image.Image, quality int) ([]byte, error) {
	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, services.Wrap(services.ErrEncode, "censor", "encode", "jpeg", err)
	}
	return buf.Bytes(), nil
}
