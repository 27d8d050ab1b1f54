package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/assets"
	"github.com/isdelr/blog-be/internal/services"
)

// Stop after this many listing pages in one run.
const maxSweepPages = 50

// AssetReferences reports which assets are still used by posts.
type AssetReferences interface {
	ReferencedAssetIDs(ctx context.Context) (map[string]struct{}, error)
}

// Scheduler periodically deletes image assets that no post references.
// Uploads younger than the grace period are left alone, since an editor may
// still be about to attach them to a post.
type Scheduler struct {
	store    assets.Store
	refs     AssetReferences
	eventSvc services.EventServiceProvider
	grace    time.Duration
	cron     *cron.Cron
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(store assets.Store, refs AssetReferences, eventSvc services.EventServiceProvider, grace time.Duration) *Scheduler {
	return &Scheduler{
		store:    store,
		refs:     refs,
		eventSvc: eventSvc,
		grace:    grace,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the sweep under a standard cron expression and starts the
// scheduler's goroutine.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("Asset sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid asset sweep schedule %q: %w", spec, err)
	}
	log.Info().Str("schedule", spec).Dur("grace", s.grace).Msg("Starting orphan asset sweeper")
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopped orphan asset sweeper")
}

// Sweep deletes unreferenced assets older than the grace period and returns
// how many were removed.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	refs, err := s.refs.ReferencedAssetIDs(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.grace)

	deleted := 0
	cursor := ""
	for page := 0; page < maxSweepPages; page++ {
		listing, err := s.store.List(ctx, cursor)
		if err != nil {
			return deleted, err
		}
		for _, a := range listing.Items {
			if _, used := refs[a.AssetID]; used || a.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.store.Delete(ctx, a.AssetID); err != nil {
				log.Warn().Err(err).Str("asset_id", a.AssetID).Msg("Failed to delete orphaned asset")
				continue
			}
			deleted++
		}
		if listing.NextCursor == "" {
			break
		}
		cursor = listing.NextCursor
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Removed orphaned image assets")
		msg := fmt.Sprintf("Removed %d orphaned image asset(s).", deleted)
		if err := s.eventSvc.CreateEvent(ctx, "asset.sweep", "info", msg, nil); err != nil {
			log.Warn().Err(err).Msg("Failed to record sweep event")
		}
	}
	return deleted, nil
}
