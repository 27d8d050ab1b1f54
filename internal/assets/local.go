package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/models"
)

// URLPrefix is the path under which the local store's files are served.
const URLPrefix = "/uploads/"

// LocalStore keeps images on disk below root/blog-images. Asset ids are
// the file paths relative to root, so they look like Cloudinary public ids.
type LocalStore struct {
	root      string
	publicURL string
}

// NewLocalStore creates the upload folder if needed.
func NewLocalStore(root, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, Folder), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Root is the directory served under URLPrefix.
func (s *LocalStore) Root() string { return s.root }

// Upload stores the image under a name whose extension follows the sniffed
// type, so the file server never has to guess how to serve it.
func (s *LocalStore) Upload(_ context.Context, r io.Reader, contentType string) (models.Asset, error) {
	mediaType, r, err := SniffImage(r)
	if err != nil {
		return models.Asset{}, err
	}
	if declared, _, _ := strings.Cut(contentType, ";"); strings.TrimSpace(declared) != mediaType {
		log.Debug().Str("declared", contentType).Str("detected", mediaType).Msg("Image content type differs from its declaration")
	}
	id := path.Join(Folder, uuid.New().String()+ImageTypes[mediaType])
	dst := filepath.Join(s.root, filepath.FromSlash(id))

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return models.Asset{}, apperror.Upstream("Image upload failed", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadSize {
		err = CheckUpload(n, mediaType)
	}
	if err != nil {
		os.Remove(dst)
		if apperror.KindOf(err) != apperror.KindUnexpected {
			return models.Asset{}, err
		}
		return models.Asset{}, apperror.Upstream("Image upload failed", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return models.Asset{}, apperror.Upstream("Image upload failed", err)
	}
	log.Info().Str("asset_id", id).Int64("bytes", n).Msg("Stored image on disk")
	return s.asset(id, info.ModTime()), nil
}

// List pages through the folder newest first. The cursor holds the
// modification time and id of the last asset of the previous page.
func (s *LocalStore) List(_ context.Context, cursor string) (models.AssetPage, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, Folder))
	if err != nil {
		return models.AssetPage{}, apperror.Upstream("Failed to fetch images", err)
	}

	all := make([]models.Asset, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, s.asset(path.Join(Folder, e.Name()), info.ModTime()))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].AssetID > all[j].AssetID
	})

	start := 0
	if cursor = NormalizeCursor(cursor); cursor != "" {
		after, id, err := parseLocalCursor(cursor)
		if err != nil {
			return models.AssetPage{}, err
		}
		// The cursor is a position, so it still works once its asset is gone.
		start = sort.Search(len(all), func(i int) bool {
			a := all[i]
			return a.CreatedAt.Before(after) || (a.CreatedAt.Equal(after) && a.AssetID < id)
		})
	}
	end := min(start+PageSize, len(all))

	page := models.AssetPage{Items: all[start:end]}
	if end < len(all) {
		last := all[end-1]
		page.NextCursor = strconv.FormatInt(last.CreatedAt.UnixNano(), 10) + ":" + last.AssetID
	}
	return page, nil
}

func parseLocalCursor(cursor string) (time.Time, string, error) {
	nanos, id, ok := strings.Cut(cursor, ":")
	n, err := strconv.ParseInt(nanos, 10, 64)
	if !ok || err != nil || id == "" {
		return time.Time{}, "", apperror.Validation("Invalid cursor")
	}
	return time.Unix(0, n).UTC(), id, nil
}

func (s *LocalStore) Delete(_ context.Context, assetID string) error {
	p, err := s.pathFor(assetID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperror.Upstream("Failed to delete image", err)
	}
	return nil
}

func (s *LocalStore) pathFor(assetID string) (string, error) {
	dir, name := path.Split(assetID)
	if dir != Folder+"/" || name == "" || name == "." || name == ".." {
		return "", apperror.Validation("Invalid image id")
	}
	return filepath.Join(s.root, Folder, name), nil
}

func (s *LocalStore) asset(id string, created time.Time) models.Asset {
	return models.Asset{
		URL:       s.publicURL + URLPrefix + id,
		AssetID:   id,
		CreatedAt: created.UTC(),
	}
}
