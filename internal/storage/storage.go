package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

// Backend stores raw uploaded bytes under opaque keys.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

const maxBaseName = 50

// NewKey builds "uploads/YYYY-MM-DD/<8 hex>-<sanitised name><ext>" for an
// uploaded file.
func NewKey(filename string, now time.Time) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	name := unsafeChars.ReplaceAllString(base[:len(base)-len(ext)], "-")
	if len(name) > maxBaseName {
		name = name[:maxBaseName]
	}
	return fmt.Sprintf("uploads/%s/%s-%s%s", now.Format(time.DateOnly), uuid.NewString()[:8], name, ext)
}
