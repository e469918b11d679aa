// Package workers contains background workers for dynroute.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/go-co-op/gocron/v2"
)

// SiteLister lists the sites to reconcile.
type SiteLister interface {
	ListSites(ctx context.Context) ([]domain.Site, error)
}

// TriggerHandler runs the builds for one trigger.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, t routing.Trigger) (*scheduler.TriggerResult, error)
}

// ReconcilerConfig configures the reconcile worker.
type ReconcilerConfig struct {
	// Interval is the time between reconcile cycles.
	// Default: 1 hour.
	Interval time.Duration

	// SiteTimeout bounds the builds of a single site.
	// Default: 10 minutes.
	SiteTimeout time.Duration

	// MaxConcurrent is the maximum number of sites reconciled concurrently.
	// Default: 2.
	MaxConcurrent int

	// RunOnStart runs a cycle as soon as the worker starts.
	RunOnStart bool
}

// DefaultReconcilerConfig returns the default configuration.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:      time.Hour,
		SiteTimeout:   10 * time.Minute,
		MaxConcurrent: 2,
	}
}

// CycleReport summarises one reconcile cycle.
type CycleReport struct {
	Sites     int
	Failed    int
	Conflicts int
	Stats     slugbuild.CommitStats
}

// Reconciler periodically re-runs sitewide builds so slugs that drifted
// from their content are repaired. Builds only write what changed.
type Reconciler struct {
	sites   SiteLister
	handler TriggerHandler
	config  ReconcilerConfig
	logger  *slog.Logger

	scheduler gocron.Scheduler

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewReconciler creates a new reconcile worker.
func NewReconciler(sites SiteLister, handler TriggerHandler, config ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.SiteTimeout == 0 {
		config.SiteTimeout = 10 * time.Minute
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 2
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		sites:   sites,
		handler: handler,
		config:  config,
		logger:  logger.With("component", "reconciler"),
	}
}

// Start schedules the reconcile job.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return fmt.Errorf("reconciler already started")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())

	opts := []gocron.JobOption{
		gocron.WithName("site-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if r.config.RunOnStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if _, err := s.NewJob(
		gocron.DurationJob(r.config.Interval),
		gocron.NewTask(r.runScheduled),
		opts...,
	); err != nil {
		r.cancel()
		_ = s.Shutdown()
		return fmt.Errorf("failed to create reconcile job: %w", err)
	}

	s.Start()
	r.scheduler = s

	r.logger.Info("reconciler started",
		"interval", r.config.Interval,
		"max_concurrent", r.config.MaxConcurrent,
	)
	return nil
}

// Stop gracefully stops the reconciler.
// It waits for an in-progress cycle to complete.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return nil
	}
	r.cancel()
	err := r.scheduler.Shutdown()
	r.scheduler = nil
	r.logger.Info("reconciler stopped")
	return err
}

func (r *Reconciler) runScheduled() {
	report := r.RunCycle(r.ctx)
	r.logger.Info("reconcile cycle finished",
		"sites", report.Sites,
		"failed", report.Failed,
		"conflicts", report.Conflicts,
		"writes", report.Stats.Total(),
	)
}

// RunCycle reconciles every site once.
func (r *Reconciler) RunCycle(ctx context.Context) CycleReport {
	var report CycleReport

	sites, err := r.sites.ListSites(ctx)
	if err != nil {
		r.logger.Error("failed to list sites", "error", err)
		return report
	}
	if len(sites) == 0 {
		r.logger.Debug("no sites to reconcile")
		return report
	}

	r.logger.Debug("starting reconcile cycle", "site_count", len(sites))

	// Use a semaphore to limit concurrent sites
	sem := make(chan struct{}, r.config.MaxConcurrent)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := range sites {
		site := sites[i]

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			res, err := r.reconcileSite(ctx, site.ID)

			mu.Lock()
			defer mu.Unlock()
			report.Sites++
			if res != nil {
				report.Stats.Inserted += res.Stats.Inserted
				report.Stats.Updated += res.Stats.Updated
				report.Stats.Deleted += res.Stats.Deleted
				report.Stats.Skipped += res.Stats.Skipped
			}
			if fatal, ok := slugbuild.IsFatalConflict(err); ok {
				report.Conflicts += len(fatal.Conflicts)
			} else if err != nil {
				report.Failed++
			}
		}()
	}

	wg.Wait()
	return report
}

func (r *Reconciler) reconcileSite(ctx context.Context, siteID string) (*scheduler.TriggerResult, error) {
	siteCtx, cancel := context.WithTimeout(ctx, r.config.SiteTimeout)
	defer cancel()

	logger := r.logger.With("site_id", siteID)

	res, err := r.handler.HandleTrigger(siteCtx, routing.Trigger{Kind: routing.Reconcile, SiteID: siteID})
	if err != nil {
		if _, ok := slugbuild.IsFatalConflict(err); ok {
			logger.Warn("site reconciled with conflicts", "error", err)
		} else {
			logger.Error("site reconcile failed", "error", err)
		}
		return res, err
	}
	if res.Stats.Total() > 0 {
		logger.Info("site drift repaired",
			"inserted", res.Stats.Inserted,
			"updated", res.Stats.Updated,
			"deleted", res.Stats.Deleted,
		)
	}
	return res, nil
}
