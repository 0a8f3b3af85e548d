// Package request decodes request bodies.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"accounts/internal/assets"
)

// MaxJSONBytes caps JSON bodies.
const MaxJSONBytes = 16 << 10

// multipartMemory is how much of a multipart body is kept in memory; the
// rest spills to temp files.
const multipartMemory = 1 << 20

var (
	ErrEmptyBody   = errors.New("request body is empty")
	ErrTooLarge    = errors.New("request body too large")
	ErrInvalidBody = errors.New("invalid request body")
)

// DecodeJSON decodes a single JSON value into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBytes))

	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		case errors.As(err, &maxErr):
			return ErrTooLarge
		default:
			return fmt.Errorf("%w: %w", ErrInvalidBody, err)
		}
	}

	return nil
}

// ParseMultipart parses a multipart body of at most maxBytes.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if r.ContentLength > maxBytes {
		return ErrTooLarge
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrTooLarge
		}
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return nil
}

// FormFile returns the uploaded file in field, or nil when there is none.
// The caller closes the returned file after the upload.
func FormFile(r *http.Request, field string, kind assets.Kind) (*assets.File, io.Closer, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}

	return fromHeader(f, hdr, kind), f, nil
}

func fromHeader(f multipart.File, hdr *multipart.FileHeader, kind assets.Kind) *assets.File {
	return &assets.File{
		Kind:        kind,
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        f,
	}
}
