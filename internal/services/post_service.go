package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/database"
	"github.com/isdelr/blog-be/internal/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	maxTitleLength   = 200
	maxExcerptLength = 500
)

// AssetDeleter removes an image asset from the asset store.
type AssetDeleter interface {
	Delete(ctx context.Context, assetID string) error
}

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	ListPosts(ctx context.Context, filter ListFilter) (PostPage, error)
	GetPostBySlug(ctx context.Context, slug string) (models.Post, error)
	GetPostByID(ctx context.Context, id string) (models.Post, error)
	CreatePost(ctx context.Context, actor auth.Principal, in PostInput) (models.Post, error)
	UpdatePost(ctx context.Context, actor auth.Principal, id string, in PostUpdate) (models.Post, error)
	DeletePost(ctx context.Context, actor auth.Principal, id string) error
	GetStats(ctx context.Context, authorID string) (models.PostStats, error)
	ReferencedAssetIDs(ctx context.Context) (map[string]struct{}, error)
}

// ListFilter selects a page of posts. With Personal set and a non-empty
// CallerID the listing is scoped to the caller's posts of any status;
// otherwise only published posts are returned.
type ListFilter struct {
	Page     int
	Limit    int
	Category string
	Status   models.PostStatus
	Search   string
	Personal bool
	CallerID string
}

// PostPage is one page of a post listing.
type PostPage struct {
	Posts      []models.Post
	Total      int
	TotalPages int
	Page       int
	Limit      int
}

// PostInput holds the fields of a new post.
type PostInput struct {
	Title         string
	Content       string
	Excerpt       string
	Category      string
	Tags          []string
	Image         string
	ImagePublicID string
	Status        models.PostStatus
	Featured      bool
}

// PostUpdate lists the mutable fields of a post. Nil leaves a field unchanged.
type PostUpdate struct {
	Title         *string
	Content       *string
	Excerpt       *string
	Category      *string
	Tags          *[]string
	Image         *string
	ImagePublicID *string
	Status        *models.PostStatus
	Featured      *bool
}

// PostService provides business logic for blog posts.
type PostService struct {
	db           *database.DB
	assets       AssetDeleter
	eventService EventServiceProvider
}

// NewPostService creates a new PostService.
func NewPostService(db *database.DB, assets AssetDeleter, eventService EventServiceProvider) *PostService {
	return &PostService{db: db, assets: assets, eventService: eventService}
}

const postSelect = `SELECT p.id, p.title, p.slug, p.content, p.excerpt, p.image, p.image_public_id, p.category,
	p.tags_json, p.author_id, p.status, p.views, p.likes, p.featured, p.created_at, p.updated_at,
	u.name, u.email, u.avatar
	FROM posts p JOIN users u ON u.id = p.author_id`

func scanPost(scanner interface{ Scan(...any) error }) (models.Post, error) {
	var p models.Post
	err := scanner.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Image, &p.ImagePublicID, &p.Category,
		&p.TagsJSON, &p.AuthorID, &p.Status, &p.Views, &p.Likes, &p.Featured, &p.CreatedAt, &p.UpdatedAt,
		&p.Author.Name, &p.Author.Email, &p.Author.Avatar)
	if err != nil {
		return models.Post{}, err
	}
	p.Author.ID = p.AuthorID
	p.PrepareForAPI()
	return p, nil
}

// ListPosts returns one page of posts, newest first.
func (s *PostService) ListPosts(ctx context.Context, filter ListFilter) (PostPage, error) {
	page, limit := normalizePaging(filter.Page, filter.Limit)

	var where []string
	var args []any
	if filter.Personal && filter.CallerID != "" {
		where = append(where, "p.author_id = ?")
		args = append(args, filter.CallerID)
		if filter.Status != "" {
			where = append(where, "p.status = ?")
			args = append(args, string(filter.Status))
		}
	} else {
		where = append(where, "p.status = ?")
		args = append(args, string(models.StatusPublished))
		if filter.Category != "" {
			where = append(where, "p.category = ?")
			args = append(args, filter.Category)
		}
	}
	if search := searchTerm(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where = append(where, `(p.search_title LIKE ? ESCAPE '\' OR p.search_content LIKE ? ESCAPE '\' OR p.search_tags LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts p"+clause, args...).Scan(&total); err != nil {
		return PostPage{}, fmt.Errorf("count posts: %w", err)
	}

	query := postSelect + clause + " ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return PostPage{}, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return PostPage{}, err
	}

	return PostPage{
		Posts:      posts,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
		Page:       page,
		Limit:      limit,
	}, nil
}

// GetPostBySlug returns the post with the given slug and counts one view.
func (s *PostService) GetPostBySlug(ctx context.Context, slug string) (models.Post, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE posts SET views = views + 1 WHERE slug = ?", slug)
	if err != nil {
		return models.Post{}, fmt.Errorf("increment views for %s: %w", slug, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Post{}, apperror.NotFound("Blog not found")
	}

	post, err := scanPost(s.db.QueryRowContext(ctx, postSelect+" WHERE p.slug = ?", slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, apperror.NotFound("Blog not found")
		}
		return models.Post{}, fmt.Errorf("get post %s: %w", slug, err)
	}
	return post, nil
}

// GetPostByID retrieves a single post without touching its view counter.
func (s *PostService) GetPostByID(ctx context.Context, id string) (models.Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, postSelect+" WHERE p.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, apperror.NotFound("Blog not found")
		}
		return models.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return post, nil
}

// CreatePost stores a new post authored by the actor.
func (s *PostService) CreatePost(ctx context.Context, actor auth.Principal, in PostInput) (models.Post, error) {
	if in.Featured && !actor.IsAdmin() {
		return models.Post{}, apperror.Forbidden("Only administrators can feature a blog")
	}

	now := time.Now().UTC()
	post := models.Post{
		ID:            uuid.New().String(),
		Title:         strings.TrimSpace(in.Title),
		Content:       in.Content,
		Excerpt:       strings.TrimSpace(in.Excerpt),
		Category:      strings.TrimSpace(in.Category),
		Tags:          normalizeTags(in.Tags),
		Image:         strings.TrimSpace(in.Image),
		ImagePublicID: strings.TrimSpace(in.ImagePublicID),
		AuthorID:      actor.UserID,
		Status:        in.Status,
		Featured:      in.Featured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if post.Status == "" {
		post.Status = models.StatusPublished
	}
	if err := validatePost(&post); err != nil {
		return models.Post{}, err
	}
	post.Slug = Slugify(post.Title)
	if post.Slug == "" {
		return models.Post{}, apperror.Validation("Title must contain at least one letter or digit")
	}
	if err := s.checkSlugFree(ctx, post.Slug, ""); err != nil {
		return models.Post{}, err
	}
	fillDefaults(&post)
	post.PrepareForSave()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, slug, content, excerpt, image, image_public_id, category, tags_json,
			search_title, search_content, search_tags, author_id, status, views, likes, featured, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.Image, post.ImagePublicID, post.Category,
		post.TagsJSON, searchFold(post.Title), searchFold(post.Content), searchTags(post.Tags),
		post.AuthorID, string(post.Status), post.Featured, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.Post{}, slugConflict()
		}
		if database.IsForeignKeyViolation(err) {
			return models.Post{}, apperror.NotFound("Author not found")
		}
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}

	recordEvent(ctx, s.eventService, "post.create", "info", fmt.Sprintf("Blog '%s' was created.", post.Title), actor.UserID)
	return s.GetPostByID(ctx, post.ID)
}

// UpdatePost applies a partial update. Only the author or an administrator
// may update a post; the slug follows the title.
func (s *PostService) UpdatePost(ctx context.Context, actor auth.Principal, id string, in PostUpdate) (models.Post, error) {
	post, err := s.GetPostByID(ctx, id)
	if err != nil {
		return models.Post{}, err
	}
	if !canModify(actor, post) {
		return models.Post{}, apperror.Forbidden("Not authorized to update this blog")
	}
	if in.Featured != nil && *in.Featured != post.Featured && !actor.IsAdmin() {
		return models.Post{}, apperror.Forbidden("Only administrators can feature a blog")
	}

	titleChanged := false
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		titleChanged = t != post.Title
		post.Title = t
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Excerpt != nil {
		post.Excerpt = strings.TrimSpace(*in.Excerpt)
	}
	if in.Category != nil {
		post.Category = strings.TrimSpace(*in.Category)
	}
	if in.Tags != nil {
		post.Tags = normalizeTags(*in.Tags)
	}
	if in.Image != nil {
		post.Image = strings.TrimSpace(*in.Image)
	}
	if in.ImagePublicID != nil {
		post.ImagePublicID = strings.TrimSpace(*in.ImagePublicID)
	}
	if in.Status != nil {
		post.Status = *in.Status
	}
	if in.Featured != nil {
		post.Featured = *in.Featured
	}
	if err := validatePost(&post); err != nil {
		return models.Post{}, err
	}

	if titleChanged {
		slug := Slugify(post.Title)
		if slug == "" {
			return models.Post{}, apperror.Validation("Title must contain at least one letter or digit")
		}
		if slug != post.Slug {
			if err := s.checkSlugFree(ctx, slug, post.ID); err != nil {
				return models.Post{}, err
			}
			post.Slug = slug
		}
	}
	fillDefaults(&post)
	post.PrepareForSave()
	post.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE posts SET title = ?, slug = ?, content = ?, excerpt = ?, image = ?, image_public_id = ?, category = ?,
			tags_json = ?, search_title = ?, search_content = ?, search_tags = ?, status = ?, featured = ?, updated_at = ?
		WHERE id = ?`,
		post.Title, post.Slug, post.Content, post.Excerpt, post.Image, post.ImagePublicID, post.Category,
		post.TagsJSON, searchFold(post.Title), searchFold(post.Content), searchTags(post.Tags),
		string(post.Status), post.Featured, post.UpdatedAt, post.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.Post{}, slugConflict()
		}
		return models.Post{}, fmt.Errorf("update post %s: %w", id, err)
	}

	recordEvent(ctx, s.eventService, "post.update", "info", fmt.Sprintf("Blog '%s' was updated.", post.Title), actor.UserID)
	return s.GetPostByID(ctx, post.ID)
}

// DeletePost removes a post. The image asset is deleted afterwards when no
// other post still references it; that step never fails the call.
func (s *PostService) DeletePost(ctx context.Context, actor auth.Principal, id string) error {
	post, err := s.GetPostByID(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, post) {
		return apperror.Forbidden("Not authorized to delete this blog")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	recordEvent(ctx, s.eventService, "post.delete", "info", fmt.Sprintf("Blog '%s' was deleted.", post.Title), actor.UserID)

	releaseAsset(ctx, s.db, s.assets, s.eventService, post.ImagePublicID, actor.UserID)
	return nil
}

// GetStats summarises the posts of one author.
func (s *PostService) GetStats(ctx context.Context, authorID string) (models.PostStats, error) {
	var stats models.PostStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'draft' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(views), 0)
		FROM posts WHERE author_id = ?`, authorID).
		Scan(&stats.TotalBlogs, &stats.PublishedBlogs, &stats.DraftBlogs, &stats.TotalViews)
	if err != nil {
		return models.PostStats{}, fmt.Errorf("post stats for %s: %w", authorID, err)
	}
	return stats, nil
}

// ReferencedAssetIDs returns the set of asset ids used by any post.
func (s *PostService) ReferencedAssetIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT image_public_id FROM posts WHERE image_public_id <> ''")
	if err != nil {
		return nil, fmt.Errorf("list referenced assets: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// reservedSlugs are path segments under /blogs that route elsewhere, so a
// post with one of these slugs could never be read.
var reservedSlugs = map[string]struct{}{
	"images":       {},
	"upload-image": {},
	"admin":        {},
	"me":           {},
}

func (s *PostService) checkSlugFree(ctx context.Context, slug, exceptID string) error {
	if _, ok := reservedSlugs[slug]; ok {
		return apperror.Conflict("This title is reserved, please choose another")
	}
	var existing string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM posts WHERE slug = ? AND id <> ?", slug, exceptID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check slug %s: %w", slug, err)
	default:
		return slugConflict()
	}
}

func slugConflict() error {
	return apperror.Conflict("A blog with a similar title already exists")
}

func canModify(actor auth.Principal, post models.Post) bool {
	return actor.IsAdmin() || (actor.UserID != "" && actor.UserID == post.AuthorID)
}

func validatePost(p *models.Post) error {
	if p.Title == "" {
		return apperror.Validation("Please provide a title")
	}
	if utf8.RuneCountInString(p.Title) > maxTitleLength {
		return apperror.Validation(fmt.Sprintf("Title cannot be more than %d characters", maxTitleLength))
	}
	if strings.TrimSpace(p.Content) == "" {
		return apperror.Validation("Please provide content")
	}
	if p.Category == "" {
		return apperror.Validation("Please provide a category")
	}
	if utf8.RuneCountInString(p.Excerpt) > maxExcerptLength {
		return apperror.Validation(fmt.Sprintf("Excerpt cannot be more than %d characters", maxExcerptLength))
	}
	if !p.Status.Valid() {
		return apperror.Validation("Invalid status")
	}
	return nil
}

func fillDefaults(p *models.Post) {
	if p.Excerpt == "" {
		p.Excerpt = Excerpt(p.Content)
	}
	if p.Image == "" {
		p.Image = models.DefaultImage
		p.ImagePublicID = ""
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
