package imaging_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"

	"betamode/internal/imaging"
	"betamode/internal/services"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecodeFormats(t *testing.T) {
	enc := imaging.NewEncoder()
	src := solid(4, 3, color.RGBA{G: 200, A: 255})

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	var bmpBuf bytes.Buffer
	if err := bmp.Encode(&bmpBuf, src); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		img, err := enc.Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
			t.Fatalf("%s decoded with bounds %v", name, img.Bounds())
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := imaging.NewEncoder().Decode([]byte("definitely not an image"))
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}
}

func TestBlackenFillsClippedBoxes(t *testing.T) {
	enc := imaging.NewEncoder()
	src := solid(10, 10, color.White)
	out := enc.Blacken(src, []image.Rectangle{image.Rect(2, 2, 4, 4), image.Rect(8, 8, 50, 50), image.Rect(-20, -20, -10, -10)})

	check := func(x, y int, wantBlack bool) {
		t.Helper()
		r, g, b, _ := out.At(x, y).RGBA()
		isBlack := r == 0 && g == 0 && b == 0
		if isBlack != wantBlack {
			t.Fatalf("pixel (%d,%d) black=%v, want %v", x, y, isBlack, wantBlack)
		}
	}
	check(2, 2, true)
	check(3, 3, true)
	check(4, 4, false)
	check(9, 9, true)
	check(0, 0, false)

	r, _, _, _ := src.At(2, 2).RGBA()
	if r == 0 {
		t.Fatal("Blacken modified the source image")
	}
}

func TestDownscaleBoundsLongestEdge(t *testing.T) {
	enc := imaging.NewEncoder()
	tests := []struct {
		w, h         int
		max          int
		wantW, wantH int
	}{
		{4000, 2000, 2000, 2000, 1000},
		{1000, 3000, 2000, 667, 2000},
		{800, 600, 2000, 800, 600},
		{2000, 2000, 2000, 2000, 2000},
	}
	for _, tt := range tests {
		out := enc.Downscale(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.max)
		if out.Bounds().Dx() != tt.wantW || out.Bounds().Dy() != tt.wantH {
			t.Fatalf("Downscale(%dx%d, %d) = %v, want %dx%d", tt.w, tt.h, tt.max, out.Bounds(), tt.wantW, tt.wantH)
		}
	}
}

func TestEncodeIsDeterministicJPEG(t *testing.T) {
	enc := imaging.NewEncoder()
	img := enc.Blacken(solid(32, 16, color.RGBA{R: 180, G: 40, B: 90, A: 255}), []image.Rectangle{image.Rect(0, 0, 8, 8)})

	first, err := enc.Encode(img, 60)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	second, err := enc.Encode(img, 60)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical output for identical input")
	}
	if !bytes.HasPrefix(first, []byte{0xFF, 0xD8, 0xFF}) {
		t.Fatal("expected JPEG SOI marker")
	}
}
