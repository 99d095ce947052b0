package util

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/br0z1/social-media-app/internal/models"
)

var mediaExtensions = map[string]string{
	".jpg":  models.MediaTypeImage,
	".jpeg": models.MediaTypeImage,
	".png":  models.MediaTypeImage,
	".gif":  models.MediaTypeImage,
	".webp": models.MediaTypeImage,
	".heic": models.MediaTypeImage,
	".mp4":  models.MediaTypeVideo,
	".mov":  models.MediaTypeVideo,
	".webm": models.MediaTypeVideo,
}

// MediaTypeFor returns the post media type for a filename, or "" when the
// extension is not accepted.
func MediaTypeFor(filename string) string {
	return mediaExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ValidateFilename checks if an uploaded filename is usable
// Filename is required and cannot contain directory separators
// Must be <= 255 chars
func ValidateFilename(filename string) error {
	if filename == "" {
		return errors.New("filename is required")
	}
	if strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		return errors.New("filename cannot contain directory paths")
	}
	if len(filename) > 255 {
		return errors.New("filename too long (max 255 characters)")
	}
	return nil
}
