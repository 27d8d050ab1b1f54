// Package assets stores the images that blog posts reference.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/models"
)

const (
	// MaxUploadSize is the largest accepted image.
	MaxUploadSize = 5 << 20

	// Folder groups every blog image in the store.
	Folder = "blog-images"

	// PageSize is the number of assets returned per listing page.
	PageSize = 100
)

// sniffLen is how much of an upload is inspected to detect its type.
const sniffLen = 512

// ImageTypes maps the accepted image media types to their file extensions.
// SVG is left out because it can carry script.
var ImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

// Store uploads, lists and deletes image assets. Delete must succeed for
// assets that are already gone.
type Store interface {
	Upload(ctx context.Context, r io.Reader, contentType string) (models.Asset, error)
	List(ctx context.Context, cursor string) (models.AssetPage, error)
	Delete(ctx context.Context, assetID string) error
}

// CheckUpload rejects an upload before it reaches a store.
func CheckUpload(size int64, contentType string) error {
	if size > MaxUploadSize {
		return apperror.PayloadTooLarge(fmt.Sprintf("Image cannot be larger than %d MB", MaxUploadSize>>20))
	}
	mediaType, _, _ := strings.Cut(contentType, ";")
	if _, ok := ImageTypes[strings.ToLower(strings.TrimSpace(mediaType))]; !ok {
		return unsupportedImage()
	}
	return nil
}

// SniffImage detects the media type of an upload from its leading bytes,
// whatever the client declared. It returns a reader that yields the whole
// upload again.
func SniffImage(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, fmt.Errorf("read image: %w", err)
	}
	head = head[:n]

	mediaType := detectImageType(head)
	if _, ok := ImageTypes[mediaType]; !ok {
		return "", nil, unsupportedImage()
	}
	return mediaType, io.MultiReader(bytes.NewReader(head), r), nil
}

func detectImageType(head []byte) string {
	// AVIF is an ISO-BMFF file that http.DetectContentType does not know.
	if len(head) >= 12 && string(head[4:8]) == "ftyp" {
		switch string(head[8:12]) {
		case "avif", "avis":
			return "image/avif"
		}
	}
	mediaType, _, _ := strings.Cut(http.DetectContentType(head), ";")
	return mediaType
}

func unsupportedImage() error {
	return apperror.UnsupportedMediaType("Only JPEG, PNG, GIF, WebP or AVIF images are allowed")
}

// NormalizeCursor maps the placeholder cursors some clients send back
// to "no cursor".
func NormalizeCursor(cursor string) string {
	switch strings.TrimSpace(cursor) {
	case "", "null", "undefined":
		return ""
	}
	return cursor
}
