package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/apperror"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

// BlogHandler handles HTTP requests for blog posts.
type BlogHandler struct {
	service services.PostServiceProvider
}

// NewBlogHandler creates a new BlogHandler.
func NewBlogHandler(service services.PostServiceProvider) *BlogHandler {
	return &BlogHandler{service: service}
}

// BlogPayload is the body of a create request.
type BlogPayload struct {
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Excerpt       string            `json:"excerpt"`
	Category      string            `json:"category"`
	Tags          []string          `json:"tags"`
	Image         string            `json:"image"`
	ImagePublicID string            `json:"imagePublicId"`
	Status        models.PostStatus `json:"status"`
	Featured      bool              `json:"featured"`
}

// BlogUpdatePayload is the body of an update request. Absent fields are left unchanged.
type BlogUpdatePayload struct {
	Title         *string            `json:"title"`
	Content       *string            `json:"content"`
	Excerpt       *string            `json:"excerpt"`
	Category      *string            `json:"category"`
	Tags          *[]string          `json:"tags"`
	Image         *string            `json:"image"`
	ImagePublicID *string            `json:"imagePublicId"`
	Status        *models.PostStatus `json:"status"`
	Featured      *bool              `json:"featured"`
}

// List handles the public listing, or the caller's own posts with personal=true.
func (h *BlogHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	filter.Category = r.URL.Query().Get("category")
	if r.URL.Query().Get("personal") == "true" {
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			filter.Personal = true
			filter.CallerID = p.UserID
		}
	}
	h.writePage(w, r, filter)
}

// MyBlogs lists the caller's posts of every status.
func (h *BlogHandler) MyBlogs(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	filter.Personal = true
	filter.CallerID = principal(r).UserID
	h.writePage(w, r, filter)
}

func (h *BlogHandler) writePage(w http.ResponseWriter, r *http.Request, filter services.ListFilter) {
	page, err := h.service.ListPosts(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list blogs")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{
		"count":       len(page.Posts),
		"total":       page.Total,
		"totalPages":  page.TotalPages,
		"currentPage": page.Page,
		"blogs":       page.Posts,
	})
}

func listFilter(r *http.Request) (services.ListFilter, error) {
	q := r.URL.Query()
	filter := services.ListFilter{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", services.DefaultPageSize),
		Search: q.Get("search"),
		Status: models.PostStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, apperror.Validation("Invalid status")
	}
	return filter, nil
}

// GetBySlug returns one post and counts the view.
func (h *BlogHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	post, err := h.service.GetPostBySlug(r.Context(), slug)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"blog": post})
}

// Create handles creating a new post authored by the caller.
func (h *BlogHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload BlogPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	actor := principal(r)
	post, err := h.service.CreatePost(r.Context(), actor, services.PostInput{
		Title:         payload.Title,
		Content:       payload.Content,
		Excerpt:       payload.Excerpt,
		Category:      payload.Category,
		Tags:          payload.Tags,
		Image:         payload.Image,
		ImagePublicID: payload.ImagePublicID,
		Status:        payload.Status,
		Featured:      payload.Featured,
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", actor.UserID).Msg("Failed to create blog")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, respond.Body{"message": "Blog created successfully", "blog": post})
}

// Update handles a partial update of a post.
func (h *BlogHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload BlogUpdatePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respond.Error(w, r, err)
		return
	}

	post, err := h.service.UpdatePost(r.Context(), principal(r), id, services.PostUpdate{
		Title:         payload.Title,
		Content:       payload.Content,
		Excerpt:       payload.Excerpt,
		Category:      payload.Category,
		Tags:          payload.Tags,
		Image:         payload.Image,
		ImagePublicID: payload.ImagePublicID,
		Status:        payload.Status,
		Featured:      payload.Featured,
	})
	if err != nil {
		log.Warn().Err(err).Str("post_id", id).Msg("Failed to update blog")
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"message": "Blog updated successfully", "blog": post})
}

// Delete handles deleting a post.
func (h *BlogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeletePost(r.Context(), principal(r), id); err != nil {
		log.Warn().Err(err).Str("post_id", id).Msg("Failed to delete blog")
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "Blog deleted successfully")
}

// Stats returns the caller's post statistics.
func (h *BlogHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context(), principal(r).UserID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.Body{"stats": stats})
}
