package boothcode

import (
	"bytes"
	"image/png"
	"testing"
)

func TestQR(t *testing.T) {
	data, err := QR("aztx-7821", 128)
	if err != nil {
		t.Fatalf("qr: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Fatalf("expected 128px image, got %d", img.Bounds().Dx())
	}
	if _, err := QR("nope", 128); err == nil {
		t.Fatalf("expected error for malformed code")
	}
}
