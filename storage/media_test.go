package storage

import (
	"context"
	"testing"
	"time"
)

func TestObjectNameFromURL(t *testing.T) {
	s := &MediaStorage{bucket: "genx-media", publicURL: "https://cdn.example.com"}

	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"public url", "https://cdn.example.com/genx-media/media/scene_1/abc.png", "media/scene_1/abc.png", true},
		{"bare object path", "media/scene_1/abc.png", "media/scene_1/abc.png", true},
		{"leading slash and bucket", "/genx-media/media/abc.mp4", "media/abc.mp4", true},
		{"foreign host", "https://other.example.com/genx-media/media/abc.png", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.objectNameFromURL(tt.raw)
			if ok != tt.ok || got != tt.want {
				t.Errorf("objectNameFromURL(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBuildPublicURL(t *testing.T) {
	s := &MediaStorage{bucket: "genx-media", publicURL: "https://cdn.example.com/"}
	got := s.buildPublicURL("/media/scene/abc.png")
	want := "https://cdn.example.com/genx-media/media/scene/abc.png"
	if got != want {
		t.Errorf("buildPublicURL = %q, want %q", got, want)
	}
}

func TestMediaContentTypeAllowlist(t *testing.T) {
	allowed := []string{"image/png", "video/mp4", "audio/mpeg", "application/json", " IMAGE/PNG "}
	for _, ct := range allowed {
		if !isAllowedMediaContent(ct) {
			t.Errorf("%q rejected, want allowed", ct)
		}
	}
	rejected := []string{"application/x-msdownload", "text/html", "", "image/svg+xml"}
	for _, ct := range rejected {
		if isAllowedMediaContent(ct) {
			t.Errorf("%q allowed, want rejected", ct)
		}
	}
}

func TestMediaExtension(t *testing.T) {
	tests := map[string]string{
		"image/png":  ".png",
		"video/webm": ".webm",
		"audio/ogg":  ".ogg",
		"text/plain": ".txt",
		"who/knows":  ".bin",
	}
	for ct, want := range tests {
		if got := mediaExtension(ct); got != want {
			t.Errorf("mediaExtension(%q) = %q, want %q", ct, got, want)
		}
	}
}

func TestUnconfiguredStorageIsSafe(t *testing.T) {
	var s *MediaStorage
	ctx := context.Background()

	if s.Enabled() {
		t.Error("nil storage reports enabled")
	}
	if _, err := s.Upload(ctx, []byte("x"), "image/png"); err == nil {
		t.Error("upload on nil storage must fail")
	}
	if err := s.Remove(ctx, "media/abc.png"); err != nil {
		t.Errorf("remove on nil storage must be a no-op: %v", err)
	}
	url, err := s.PresignedURL(ctx, " https://somewhere/else.png ", time.Minute)
	if err != nil {
		t.Fatalf("presign on nil storage: %v", err)
	}
	if url != "https://somewhere/else.png" {
		t.Errorf("presign passthrough = %q", url)
	}
}
