package pipeline

import (
	"bytes"
	"strings"

	"github.com/disintegration/imaging"
)

var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tiff", ".tif"}

var validMIMETypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/webp": {},
	"image/tiff": {},
}

// ValidImageBytes reports whether the raw submission decodes as an image.
func ValidImageBytes(data []byte) bool {
	_, err := imaging.Decode(bytes.NewReader(data))
	return err == nil
}

// ValidImageFile checks a document submission's declared type before the
// bytes are even downloaded. Either a known MIME type or a known extension
// is accepted.
func ValidImageFile(filename, mimeType string) bool {
	if mimeType != "" {
		if _, ok := validMIMETypes[strings.ToLower(mimeType)]; ok {
			return true
		}
	}
	if filename != "" {
		lower := strings.ToLower(filename)
		for _, ext := range validExtensions {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		}
	}
	return false
}
