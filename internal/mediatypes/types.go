package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the broad kind of a stored file.
type FileType string

const (
	// FileTypeImage is a raster image the refiner can read.
	FileTypeImage FileType = "image"
	// FileTypeDocument is a PDF.
	FileTypeDocument FileType = "document"
	// FileTypeOther is anything the refiner ignores.
	FileTypeOther FileType = "other"
)

// Class groups raster extensions by their role during reconciliation.
type Class string

const (
	// ClassLegacy is an original upload format (jpg, jpeg, png).
	ClassLegacy Class = "legacy"
	// ClassTarget is a conversion output format (webp, avif).
	ClassTarget Class = "target"
	// ClassNone is any other extension.
	ClassNone Class = ""
)

// MIME types handled by the refiner.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
	MimeAVIF = "image/avif"
	MimePDF  = "application/pdf"
)

// ImageExtensions maps lowercase extensions (no dot) to their raster class.
var ImageExtensions = map[string]Class{
	"jpg":  ClassLegacy,
	"jpeg": ClassLegacy,
	"png":  ClassLegacy,
	"webp": ClassTarget,
	"avif": ClassTarget,
}

// MimeTypes maps lowercase extensions (no dot) to their MIME types.
var MimeTypes = map[string]string{
	"jpg":  MimeJPEG,
	"jpeg": MimeJPEG,
	"png":  MimePNG,
	"webp": MimeWebP,
	"avif": MimeAVIF,
	"pdf":  MimePDF,
}

// ConvertibleMimeTypes lists the catalog MIME types a batch run pages over.
var ConvertibleMimeTypes = []string{MimeJPEG, MimePNG, MimeWebP, MimeAVIF}

// Ext returns the lowercase extension of path without the dot.
func Ext(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// GetFileType returns the FileType for an extension (no dot, any case).
func GetFileType(ext string) FileType {
	ext = strings.ToLower(ext)
	if _, ok := ImageExtensions[ext]; ok {
		return FileTypeImage
	}
	if ext == "pdf" {
		return FileTypeDocument
	}
	return FileTypeOther
}

// GetClass returns the raster class of an extension (no dot, any case).
func GetClass(ext string) Class {
	return ImageExtensions[strings.ToLower(ext)]
}

// GetMimeType returns the MIME type for an extension (no dot, any case), or
// "application/octet-stream".
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsImageMime reports whether mime is one of the raster types.
func IsImageMime(mime string) bool {
	for _, m := range ConvertibleMimeTypes {
		if m == mime {
			return true
		}
	}
	return false
}
