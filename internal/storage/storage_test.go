package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestBucket(t *testing.T, maxBytes int64) *Bucket {
	t.Helper()
	b, err := NewBucket(Config{Root: t.TempDir(), PublicBaseURL: "http://files.test/files/", MaxUploadBytes: maxBytes})
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	b.newName = func() string { return "fixed" }
	return b
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestKeys(t *testing.T) {
	key, err := BackgroundKey("u1", "b1", "home")
	if err != nil || key != "backgrounds/u1/b1/home" {
		t.Fatalf("unexpected key %q %v", key, err)
	}
	key, err = ProfilePictureKey("u1")
	if err != nil || key != "profilePictures/u1" {
		t.Fatalf("unexpected key %q %v", key, err)
	}
	for _, bad := range [][]string{{"..", "b1", "home"}, {"u1", "a/b", "home"}, {"u1", "b1", ""}} {
		if _, err := BackgroundKey(bad[0], bad[1], bad[2]); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected invalid key for %v, got %v", bad, err)
		}
	}
}

func TestPutImageResizes(t *testing.T) {
	b := newTestBucket(t, 0)
	obj, err := b.PutImage(context.Background(), "backgrounds/u1/b1/home", bytes.NewReader(pngBytes(t, 2400, 100)), BackgroundMaxWidth)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Key != "backgrounds/u1/b1/home/fixed.png" {
		t.Fatalf("unexpected key %s", obj.Key)
	}
	if obj.URL != "http://files.test/files/backgrounds/u1/b1/home/fixed.png" {
		t.Fatalf("unexpected url %s", obj.URL)
	}
	if obj.Width != BackgroundMaxWidth || obj.Height != 80 {
		t.Fatalf("expected 1920x80, got %dx%d", obj.Width, obj.Height)
	}

	f, err := os.Open(filepath.Join(b.root, "backgrounds", "u1", "b1", "home", "fixed.png"))
	if err != nil {
		t.Fatalf("open stored object: %v", err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode stored object: %v", err)
	}
	if format != "png" || cfg.Width != BackgroundMaxWidth {
		t.Fatalf("unexpected stored image %s %d", format, cfg.Width)
	}
}

func TestPutImageKeepsSmallImages(t *testing.T) {
	b := newTestBucket(t, 0)
	obj, err := b.PutImage(context.Background(), "profilePictures/u1", bytes.NewReader(pngBytes(t, 300, 200)), ProfilePictureMaxWidth)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Width != 300 || obj.Height != 200 {
		t.Fatalf("small image should keep its size, got %dx%d", obj.Width, obj.Height)
	}
}

func TestPutImageRejects(t *testing.T) {
	b := newTestBucket(t, 64)
	if _, err := b.PutImage(context.Background(), "p", bytes.NewReader(pngBytes(t, 200, 200)), 0); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
	if _, err := b.PutImage(context.Background(), "p", strings.NewReader("plain text"), 0); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected unsupported image, got %v", err)
	}
}

func TestHandlerAndDelete(t *testing.T) {
	b := newTestBucket(t, 0)
	obj, err := b.PutImage(context.Background(), "profilePictures/u1", bytes.NewReader(pngBytes(t, 10, 10)), ProfilePictureMaxWidth)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+obj.Key, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/profilePictures/u1/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("directory listing should be hidden, got %d", rec.Code)
	}

	if err := b.Delete(context.Background(), obj.URL); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(context.Background(), obj.URL); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := b.Delete(context.Background(), "https://elsewhere.test/x.png"); err != nil {
		t.Fatalf("foreign url: %v", err)
	}
	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+obj.Key, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rec.Code)
	}
}
