// Package assets defines how uploaded files are stored and addressed.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAvatar     Kind = "avatars"
	KindCoverImage Kind = "covers"
)

var ErrEmptyFile = errors.New("empty file")

// File is an upload in flight. Body is read once.
type File struct {
	Kind        Kind
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores a file and returns the public URL it is reachable at.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Key returns a fresh object key of the form kind/yyyy/mm/dd/<uuid><ext>.
func Key(kind Kind, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s",
		kind, now.Year(), now.Month(), now.Day(), uuid.New(), extension(filename))
}

// JoinURL appends key to base with exactly one slash between them.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// extension keeps short alphanumeric extensions only.
func extension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
