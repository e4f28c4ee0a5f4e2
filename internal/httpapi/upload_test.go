package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"photobox/internal/docpath"
	"photobox/internal/storage"
)

type fakeImages struct {
	puts    []string
	deleted []string
}

func (f *fakeImages) PutImage(ctx context.Context, prefix string, r io.Reader, maxWidth int) (storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		return storage.Object{}, storage.ErrUnsupportedImage
	}
	key := prefix + "/img" + string(rune('0'+len(f.puts))) + ".png"
	f.puts = append(f.puts, key)
	return storage.Object{Key: key, URL: "http://files/" + key, Width: maxWidth, Format: "png"}, nil
}

func (f *fakeImages) Delete(ctx context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

func (f *fakeImages) MaxBytes() int64 { return 1 << 20 }

func multipartBody(t *testing.T, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "upload.png")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(content)
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestBackgroundUploadReplacesImage(t *testing.T) {
	env := newTestEnv(t, nil)
	images := &fakeImages{}
	env.dashboard.Images = images
	env.handler = env.dashboard.Routes()
	handler := env.handler

	post := func(path string, content []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, content)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer client-session")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := post("/api/booths/b1/backgrounds/home/image", []byte("\x89PNG....")); resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for a missing booth, got %d", resp.Code)
	}
	env.do(t, http.MethodPost, "/api/booths", "client-session", map[string]any{"id": "b1", "name": "Lobby"})

	resp := post("/api/booths/b1/backgrounds/home/image", []byte("\x89PNG...."))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d %s", resp.Code, resp.Body.String())
	}
	var rec map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &rec)
	first, _ := rec["url"].(string)
	if first == "" || rec["is_active"] != true {
		t.Fatalf("unexpected record %#v", rec)
	}
	resp = post("/api/booths/b1/backgrounds/home/image", []byte("\x89PNG...."))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(images.deleted) != 1 || images.deleted[0] != first {
		t.Fatalf("expected the first upload to be removed, got %v", images.deleted)
	}

	if resp := post("/api/booths/b1/backgrounds/home/image", []byte("GIF89a")); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unsupported image, got %d", resp.Code)
	}
	if resp := post("/api/booths/b1/backgrounds/lobby/image", []byte("\x89PNG....")); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown slot, got %d", resp.Code)
	}
	if resp := post("/api/booths/b1/backgrounds/home/image", bytes.Repeat([]byte("x"), 2<<20)); resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", resp.Code)
	}
}

func TestProfilePictureUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	images := &fakeImages{}
	env.dashboard.Images = images
	env.handler = env.dashboard.Routes()
	user, _ := docpath.Doc(docpath.Users, "u1")
	if _, err := env.store.Create(context.Background(), user, map[string]any{"name": "Ana", "email": "ana@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	body, contentType := multipartBody(t, []byte("\x89PNG...."))
	req := httptest.NewRequest(http.MethodPost, "/api/account/picture", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer client-session")
	resp := httptest.NewRecorder()
	env.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d %s", resp.Code, resp.Body.String())
	}
	if len(images.puts) != 1 || images.puts[0][:len("profilePictures/u1")] != "profilePictures/u1" {
		t.Fatalf("unexpected stored keys %v", images.puts)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte(`"profilePictureUrl":"http://files/profilePictures/u1`)) {
		t.Fatalf("unexpected user %s", resp.Body.String())
	}
}
