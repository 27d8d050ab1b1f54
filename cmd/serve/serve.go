package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/isdelr/blog-be/internal/api"
	"github.com/isdelr/blog-be/internal/app"
	"github.com/isdelr/blog-be/internal/auth"
	"github.com/isdelr/blog-be/internal/monitoring"
	"github.com/isdelr/blog-be/internal/services"
)

// NewServeCommand returns the command that runs the HTTP API.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the blog API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return Run(cmd.Context(), configFile)
		},
	}
}

// Run serves the API until SIGINT or SIGTERM, then shuts down gracefully.
func Run(ctx context.Context, configFile string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := app.Open(ctx, configFile)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := app.NewAssetStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize asset store: %w", err)
	}

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db, store, eventService)
	postService := services.NewPostService(db, store, eventService)

	// Set up and run the orphan asset sweeper
	var scheduler *monitoring.Scheduler
	if cfg.AssetSweepSchedule != "" {
		scheduler = monitoring.NewScheduler(store, postService, eventService, cfg.AssetSweepGrace)
		if err := scheduler.Start(cfg.AssetSweepSchedule); err != nil {
			return err
		}
	}

	router := api.NewRouter(cfg, api.Services{
		Tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry),
		Users:  userService,
		Posts:  postService,
		Events: eventService,
		Assets: store,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exiting")
	return nil
}
