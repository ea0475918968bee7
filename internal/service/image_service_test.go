package service

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"

	"familynova/internal/config"
	"familynova/internal/models"
	"familynova/internal/testutil"

	"github.com/chai2010/webp"
)

func TestImageServiceUploadDownsizesToWebP(t *testing.T) {
	store := testutil.NewMemoryStore()
	svc := NewImageService(store, &config.Config{ImageMaxUploadSizeMB: 5})

	img, err := svc.Upload(context.Background(), UploadImageInput{
		AccountID:   42,
		Filename:    "avatar.png",
		ContentType: "image/png",
		Content:     testutil.PNG(t, 2160, 1080),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !strings.HasPrefix(img.Key, "user-profiles/42/") || !strings.HasSuffix(img.Key, ".webp") {
		t.Fatalf("unexpected key %q", img.Key)
	}
	if img.URL != store.BaseURL+"/"+img.Key {
		t.Fatalf("unexpected url %q", img.URL)
	}
	if img.Width != MaxImageEdge || img.Height != MaxImageEdge/2 {
		t.Fatalf("expected %dx%d, got %dx%d", MaxImageEdge, MaxImageEdge/2, img.Width, img.Height)
	}

	stored, ok := store.Objects[img.Key]
	if !ok {
		t.Fatalf("expected object %s in store", img.Key)
	}
	if ct := store.Types[img.Key]; ct != "image/webp" {
		t.Fatalf("expected image/webp, got %s", ct)
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("stored object is not webp: %v", err)
	}
	if cfg.Width != img.Width || cfg.Height != img.Height {
		t.Fatalf("stored dimensions %dx%d do not match %dx%d", cfg.Width, cfg.Height, img.Width, img.Height)
	}
}

func TestImageServiceKeepsSmallImagesAtSize(t *testing.T) {
	svc := NewImageService(testutil.NewMemoryStore(), nil)
	img, err := svc.Upload(context.Background(), UploadImageInput{
		AccountID: 1,
		Content:   testutil.PNG(t, 64, 48),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if img.Width != 64 || img.Height != 48 {
		t.Fatalf("expected 64x48, got %dx%d", img.Width, img.Height)
	}
}

func TestImageServiceRejectsBadUploads(t *testing.T) {
	svc := NewImageService(testutil.NewMemoryStore(), &config.Config{ImageMaxUploadSizeMB: 1})
	pngBytes := testutil.PNG(t, 10, 10)

	tests := []struct {
		name string
		in   UploadImageInput
	}{
		{"empty", UploadImageInput{AccountID: 1}},
		{"no account", UploadImageInput{Content: pngBytes}},
		{"too large", UploadImageInput{AccountID: 1, Content: bytes.Repeat([]byte{0x89}, 2*1024*1024)}},
		{"not an image", UploadImageInput{AccountID: 1, Content: []byte("hello, this is plain text")}},
		{"declared type mismatch", UploadImageInput{AccountID: 1, ContentType: "image/jpeg", Content: pngBytes}},
		{"truncated png", UploadImageInput{AccountID: 1, ContentType: "image/png", Content: pngBytes[:40]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tt.in)
			if got := models.ErrorCode(err); got != models.CodeValidation {
				t.Fatalf("expected %s, got %q (%v)", models.CodeValidation, got, err)
			}
		})
	}
}

func TestResizeToFit(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 500, 2160))
	out := resizeToFit(src, 1080, 1080)
	b := out.Bounds()
	if b.Dx() != 250 || b.Dy() != 1080 {
		t.Fatalf("expected 250x1080, got %dx%d", b.Dx(), b.Dy())
	}
	if same := resizeToFit(src, 4000, 4000); same != image.Image(src) {
		t.Fatal("expected image within bounds to be returned unchanged")
	}
}
