// Package storage keeps uploaded images in a local bucket served under /files/.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"photobox/internal/logging"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	BackgroundMaxWidth     = 1920
	ProfilePictureMaxWidth = 512
)

var (
	ErrTooLarge         = errors.New("upload exceeds size limit")
	ErrUnsupportedImage = errors.New("unsupported image format")
	ErrInvalidKey       = errors.New("invalid object key")
)

type Config struct {
	Root           string
	PublicBaseURL  string
	MaxUploadBytes int64
}

type Object struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type Bucket struct {
	root     string
	baseURL  string
	maxBytes int64
	newName  func() string
}

func NewBucket(cfg Config) (*Bucket, error) {
	if cfg.Root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Bucket{
		root:     cfg.Root,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes: cfg.MaxUploadBytes,
		newName:  uuid.NewString,
	}, nil
}

func ProfilePictureKey(userID string) (string, error) {
	return joinKey("profilePictures", userID)
}

func BackgroundKey(userID, boothID, slot string) (string, error) {
	return joinKey("backgrounds", userID, boothID, slot)
}

func joinKey(parts ...string) (string, error) {
	for _, part := range parts {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, part)
		}
	}
	return strings.Join(parts, "/"), nil
}

func (b *Bucket) MaxBytes() int64 {
	return b.maxBytes
}

func (b *Bucket) URL(key string) string {
	return b.baseURL + "/" + key
}

// PutImage decodes r, shrinks it to maxWidth when wider, and stores it under
// prefix with a generated file name in the original format.
func (b *Bucket) PutImage(ctx context.Context, prefix string, r io.Reader, maxWidth int) (Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, b.maxBytes+1))
	if err != nil {
		return Object{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > b.maxBytes {
		return Object{}, ErrTooLarge
	}
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Object{}, ErrUnsupportedImage
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return Object{}, ErrUnsupportedImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Object{}, ErrUnsupportedImage
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(90)); err != nil {
		return Object{}, fmt.Errorf("encode image: %w", err)
	}
	key := path.Join(prefix, b.newName()+"."+extension(name))
	if err := b.write(key, buf.Bytes()); err != nil {
		return Object{}, err
	}
	logging.Debug().Str("key", key).Int("bytes", buf.Len()).Msg("object stored")
	return Object{
		Key:    key,
		URL:    b.URL(key),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Format: name,
	}, nil
}

func extension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}

func (b *Bucket) write(key string, data []byte) error {
	target := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store object: %w", err)
	}
	return nil
}

// Delete removes the object behind a URL produced by this bucket. Foreign URLs are ignored.
func (b *Bucket) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, b.baseURL+"/")
	if !ok || key == "" {
		return nil
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	err := os.Remove(filepath.Join(b.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Handler serves stored objects. Mount it under /files/.
func (b *Bucket) Handler() http.Handler {
	files := http.FileServer(http.Dir(b.root))
	return http.StripPrefix("/files", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	}))
}
