package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/isdelr/blog-be/internal/api/handlers"
	apimw "github.com/isdelr/blog-be/internal/api/middleware"
	"github.com/isdelr/blog-be/internal/api/respond"
	"github.com/isdelr/blog-be/internal/assets"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/config"
	"github.com/isdelr/blog-be/internal/models"
	"github.com/isdelr/blog-be/internal/services"
)

// Services bundles what the router dispatches to.
type Services struct {
	Tokens *auth.TokenManager
	Users  services.UserServiceProvider
	Posts  services.PostServiceProvider
	Events services.EventServiceProvider
	Assets assets.Store
}

// NewRouter creates and configures a new Chi router.
func NewRouter(cfg *config.Config, svc Services) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Initialize handlers
	mw := auth.NewMiddleware(svc.Tokens, svc.Users)
	limiter := apimw.NewRateLimiter(cfg.LoginRateLimit)
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Tokens, cfg.IsProduction())
	blogHandler := handlers.NewBlogHandler(svc.Posts)
	imageHandler := handlers.NewImageHandler(svc.Assets)
	userHandler := handlers.NewUserHandler(svc.Users)
	eventHandler := handlers.NewEventHandler(svc.Events)

	if local, ok := svc.Assets.(*assets.LocalStore); ok {
		r.Handle(assets.URLPrefix+"*", uploadHeaders(http.StripPrefix(assets.URLPrefix, noDirListing(http.FileServer(http.Dir(local.Root()))))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.Limit).Post("/register", authHandler.Register)
			r.With(limiter.Limit).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAuth)
				r.Get("/me", authHandler.Me)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/change-password", authHandler.ChangePassword)
			})
		})

		r.Route("/blogs", func(r chi.Router) {
			r.With(mw.OptionalAuth).Get("/", blogHandler.List)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAuth)
				r.Get("/me/all", blogHandler.MyBlogs)
				r.Get("/admin/stats", blogHandler.Stats)
				r.Post("/upload-image", imageHandler.Upload)
				r.Get("/images", imageHandler.List)
				r.Delete("/images/*", imageHandler.Delete)

				r.With(auth.RequireAnyRole(models.RoleAdmin, models.RoleEditor, models.RoleUser)).Post("/", blogHandler.Create)
				r.Put("/{id}", blogHandler.Update)
				r.Delete("/{id}", blogHandler.Delete)
			})

			r.Get("/{slug}", blogHandler.GetBySlug)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(mw.RequireAuth, auth.RequireAnyRole(models.RoleAdmin))
			r.Get("/", userHandler.GetAll)
			r.Get("/activity", eventHandler.GetRecent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Put("/", userHandler.Update)
				r.Delete("/", userHandler.Delete)
			})
		})
	})

	return r
}

// uploadHeaders stops browsers from sniffing uploaded files into another
// type and from running anything they contain on this origin.
func uploadHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		next.ServeHTTP(w, r)
	})
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			respond.Fail(w, http.StatusNotFound, "Route not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
