package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestEncodePNGRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 2))
	src.SetRGBA(2, 1, color.RGBA{1, 2, 3, 255})

	data, err := encodePNG(src)
	if err != nil {
		t.Fatalf("encodePNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(3, 2) {
		t.Fatalf("size = %v, want 3x2", got)
	}
	r, g, b, _ := img.At(2, 1).RGBA()
	if r>>8 != 1 || g>>8 != 2 || b>>8 != 3 {
		t.Fatalf("pixel = %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestEncodePNGOwnsBytes(t *testing.T) {
	a, err := encodePNG(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatal(err)
	}
	snapshot := append([]byte(nil), a...)
	if _, err := encodePNG(image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, snapshot) {
		t.Fatal("first result changed after the pooled buffer was reused")
	}
}

func TestEncodePNGEmptyImage(t *testing.T) {
	_, err := encodePNG(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	if !errors.Is(err, ErrEncodingFailed) || !errors.Is(err, ErrEncoding) {
		t.Fatalf("err = %v, want ErrEncodingFailed", err)
	}
}
