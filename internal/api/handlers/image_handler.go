package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/assets"
)

// Room for multipart boundaries and headers on top of the image itself.
const multipartOverhead = 1 << 20

// ImageHandler handles uploads to and listings of the asset store.
type ImageHandler struct {
	store assets.Store
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(store assets.Store) *ImageHandler {
	return &ImageHandler{store: store}
}

// Upload accepts a multipart form with the image in the "image" field.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, assets.MaxUploadSize+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			respond.Error(w, r, apperror.PayloadTooLarge("Image cannot be larger than 5 MB"))
			return
		}
		respond.Error(w, r, apperror.Validation("Please upload an image"))
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	contentType := header.Header.Get("Content-Type")
	if err := assets.CheckUpload(header.Size, contentType); err != nil {
		respond.Error(w, r, err)
		return
	}

	// The bytes decide the type, not the client's declaration.
	mediaType, body, err := assets.SniffImage(file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	asset, err := h.store.Upload(r.Context(), body, mediaType)
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to upload image")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{
		"message":  "Image uploaded successfully",
		"url":      asset.URL,
		"publicId": asset.AssetID,
	})
}

// List returns one page of uploaded images, newest first.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.List(r.Context(), assets.NormalizeCursor(r.URL.Query().Get("next_cursor")))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	body := respond.Body{"images": page.Items}
	if page.NextCursor != "" {
		body["next_cursor"] = page.NextCursor
	}
	respond.JSON(w, http.StatusOK, body)
}

// Delete removes one image. The id may contain slashes, encoded or not.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || id == "" {
		respond.Error(w, r, apperror.Validation("Public ID is required"))
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		log.Error().Err(err).Str("asset_id", id).Msg("Failed to delete image")
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "Image deleted successfully")
}
