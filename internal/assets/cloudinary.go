package assets

import (
	"context"
	"errors"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/models"
)

// Uploads are bounded to a social-card size and recompressed.
const uploadTransformation = "c_limit,w_1200,h_630/q_auto:good"

// CloudinaryStore keeps images in a Cloudinary folder.
type CloudinaryStore struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStore creates a store from account credentials.
func NewCloudinaryStore(cloudName, apiKey, apiSecret string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{cld: cld}, nil
}

// WithAPIPrefix sends API calls to another host instead of
// api.cloudinary.com. The admin and upload clients each keep a copy of the
// configuration, so both are updated.
func (s *CloudinaryStore) WithAPIPrefix(prefix string) *CloudinaryStore {
	s.cld.Admin.Config.API.UploadPrefix = prefix
	s.cld.Upload.Config.API.UploadPrefix = prefix
	return s
}

func (s *CloudinaryStore) Upload(ctx context.Context, r io.Reader, contentType string) (models.Asset, error) {
	resp, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         Folder,
		ResourceType:   "image",
		Transformation: uploadTransformation,
	})
	if err != nil {
		return models.Asset{}, apperror.Upstream("Image upload failed", err)
	}
	if resp.Error.Message != "" {
		return models.Asset{}, apperror.Upstream("Image upload failed", errors.New(resp.Error.Message))
	}
	log.Info().Str("asset_id", resp.PublicID).Str("content_type", contentType).Msg("Uploaded image to Cloudinary")
	return models.Asset{URL: resp.SecureURL, AssetID: resp.PublicID, CreatedAt: resp.CreatedAt}, nil
}

func (s *CloudinaryStore) List(ctx context.Context, cursor string) (models.AssetPage, error) {
	resp, err := s.cld.Admin.Assets(ctx, admin.AssetsParams{
		AssetType:    api.Image,
		DeliveryType: string(api.Upload),
		Prefix:       Folder + "/",
		MaxResults:   PageSize,
		NextCursor:   NormalizeCursor(cursor),
		Direction:    "desc",
	})
	if err != nil {
		return models.AssetPage{}, apperror.Upstream("Failed to fetch images", err)
	}
	if resp.Error.Message != "" {
		return models.AssetPage{}, apperror.Upstream("Failed to fetch images", errors.New(resp.Error.Message))
	}

	page := models.AssetPage{Items: make([]models.Asset, 0, len(resp.Assets)), NextCursor: resp.NextCursor}
	for _, a := range resp.Assets {
		page.Items = append(page.Items, models.Asset{URL: a.SecureURL, AssetID: a.PublicID, CreatedAt: a.CreatedAt})
	}
	return page, nil
}

// Delete destroys an asset. Cloudinary answers "not found" for assets that
// are already gone, which counts as success.
func (s *CloudinaryStore) Delete(ctx context.Context, assetID string) error {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: assetID})
	if err != nil {
		return apperror.Upstream("Failed to delete image", err)
	}
	switch resp.Result {
	case "ok", "not found":
		return nil
	}
	msg := resp.Error.Message
	if msg == "" {
		msg = "unexpected result " + resp.Result
	}
	return apperror.Upstream("Failed to delete image", errors.New(msg))
}
