// Package local stores assets in a directory served by the HTTP server.
// It is meant for development.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"accounts/internal/assets"
)

type Uploader struct {
	dir     string
	baseURL string
	now     func() time.Time
}

func New(dir, baseURL string) (*Uploader, error) {
	const op = "assets.local.New"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Uploader{
		dir:     dir,
		baseURL: baseURL,
		now:     time.Now,
	}, nil
}

// Dir is the directory files are written to.
func (u *Uploader) Dir() string {
	return u.dir
}

func (u *Uploader) Upload(ctx context.Context, f assets.File) (string, error) {
	const op = "assets.local.Upload"

	if f.Body == nil || f.Size <= 0 {
		return "", fmt.Errorf("%s: %w", op, assets.ErrEmptyFile)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	key := assets.Key(f.Kind, f.Filename, u.now().UTC())
	dst := filepath.Join(u.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(out, f.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return assets.JoinURL(u.baseURL, key), nil
}
