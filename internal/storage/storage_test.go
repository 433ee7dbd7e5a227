package storage

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

func TestNewObjectKey_Format(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	key := NewObjectKey(FolderProjects, "My Cool Screenshot.PNG", "png", now)

	pattern := regexp.MustCompile(`^projects/1700000000123-my-cool-screenshot-[0-9a-f]{12}\.png$`)
	if !pattern.MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
	if err := ValidatePathname(key); err != nil {
		t.Fatalf("generated key should validate: %v", err)
	}
}

func TestNewObjectKey_FallbackName(t *testing.T) {
	key := NewObjectKey(FolderUploads, "???.pdf", "", time.UnixMilli(1))
	if !strings.HasPrefix(key, "uploads/1-file-") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestNewObjectKey_Unique(t *testing.T) {
	now := time.Now()
	a := NewObjectKey(FolderProjects, "a.png", "png", now)
	b := NewObjectKey(FolderProjects, "a.png", "png", now)
	if a == b {
		t.Fatalf("keys must differ: %q", a)
	}
}

func TestValidatePathname(t *testing.T) {
	cases := []struct {
		name     string
		pathname string
		ok       bool
	}{
		{"project image", "projects/1-a-b.png", true},
		{"cv", "uploads/1-cv-x.pdf", true},
		{"empty", "", false},
		{"unknown folder", "secrets/key.pem", false},
		{"folder only", "projects/", false},
		{"traversal", "projects/../uploads/x.pdf", false},
		{"backslash", "projects\\x.png", false},
		{"double slash", "projects//x.png", false},
		{"prefix lookalike", "projectsx/a.png", false},
		{"too long", "projects/" + strings.Repeat("a", 200), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathname(tc.pathname)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected invalid")
			}
		})
	}
}

func TestPublicBaseURL(t *testing.T) {
	base, err := publicBaseURL("https://cdn.example.com/", "portfolio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != "https://cdn.example.com/portfolio" {
		t.Fatalf("unexpected base %q", base)
	}
	if _, err := publicBaseURL("localhost:9000", "portfolio"); err == nil {
		t.Fatalf("expected error for endpoint without scheme")
	}
}

func TestIsNoSuchKey(t *testing.T) {
	if !IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}) {
		t.Fatalf("expected NoSuchKey match")
	}
	if IsNoSuchKey(minio.ErrorResponse{Code: "AccessDenied"}) {
		t.Fatalf("AccessDenied is not a missing key")
	}
	if IsNoSuchKey(nil) {
		t.Fatalf("nil is not a missing key")
	}
	if !IsNoSuchBucket(minio.ErrorResponse{Code: "NoSuchBucket"}) {
		t.Fatalf("expected NoSuchBucket match")
	}
}
