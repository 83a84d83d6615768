// Package storage keeps uploaded product images on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrNotFound        = errors.New("file not found")
)

var allowedExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BlobStore stores an upload and returns the URL clients fetch it from.
type BlobStore interface {
	Store(ctx context.Context, filename string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// AllowedFile reports whether filename carries an image extension we accept.
func AllowedFile(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	return allowedExtensions[ext]
}

// SafeName strips directories and characters unsafe in paths or URLs.
func SafeName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	return base
}

func check(filename string, size, maxBytes int64) error {
	if !AllowedFile(filename) {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, maxBytes)
	}
	return nil
}

// objectName gives every upload a unique, sortable stored name.
func objectName(filename string) string {
	return fmt.Sprintf("%d_%s_%s", time.Now().Unix(), uuid.NewString()[:8], SafeName(filename))
}
