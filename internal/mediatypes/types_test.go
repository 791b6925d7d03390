package mediatypes

import (
	"testing"
)

func TestGetFileType(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want FileType
	}{
		{name: "JPEG image", ext: "jpg", want: FileTypeImage},
		{name: "uppercase PNG", ext: "PNG", want: FileTypeImage},
		{name: "AVIF image", ext: "avif", want: FileTypeImage},
		{name: "PDF document", ext: "pdf", want: FileTypeDocument},
		{name: "GIF ignored", ext: "gif", want: FileTypeOther},
		{name: "empty", ext: "", want: FileTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetFileType(tt.ext); got != tt.want {
				t.Errorf("GetFileType(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestGetClass(t *testing.T) {
	tests := map[string]Class{
		"jpg":  ClassLegacy,
		"JPEG": ClassLegacy,
		"png":  ClassLegacy,
		"webp": ClassTarget,
		"avif": ClassTarget,
		"gif":  ClassNone,
	}
	for ext, want := range tests {
		if got := GetClass(ext); got != want {
			t.Errorf("GetClass(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType("jpeg"); got != MimeJPEG {
		t.Errorf("GetMimeType(jpeg) = %q", got)
	}
	if got := GetMimeType("xyz"); got != "application/octet-stream" {
		t.Errorf("GetMimeType(xyz) = %q", got)
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a/b/Photo.JPG":  "jpg",
		"photo.tar.webp": "webp",
		"noext":          "",
	}
	for in, want := range tests {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsImageMime(t *testing.T) {
	if !IsImageMime(MimeAVIF) {
		t.Error("avif should be an image mime")
	}
	if IsImageMime(MimePDF) {
		t.Error("pdf should not be an image mime")
	}
}
