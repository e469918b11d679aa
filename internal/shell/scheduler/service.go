// Package scheduler turns change triggers into slug builds.
// This is part of the Imperative Shell - it resolves trigger scopes with the
// pure routing rules, guards re-entry with the suppression table and runs
// the slug build engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/dynroute/internal/core/domain"
	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/metrics"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/artpar/dynroute/internal/shell/store"
	"github.com/artpar/dynroute/internal/shell/suppress"
)

// =============================================================================
// Service Errors
// =============================================================================

var (
	// ErrLocaleNotConfigured is returned when a slug is pinned for a locale
	// the site does not serve.
	ErrLocaleNotConfigured = errors.New("locale is not configured for the site")

	// ErrEmptySlug is returned when a custom slug sanitizes to nothing.
	ErrEmptySlug = errors.New("slug is empty after normalization")
)

// =============================================================================
// Scheduling Service
// =============================================================================

// Config configures trigger handling.
type Config struct {
	// ConflictMode applies to every build the service runs.
	ConflictMode routing.ConflictMode

	// GenerateIfLocaleMissing synthesizes slugs for locales without a
	// document from the default-locale document.
	GenerateIfLocaleMissing bool

	// SuppressTTL is how long an in-progress marker lives.
	// Default: 30 seconds.
	SuppressTTL time.Duration
}

// Service runs the builds a trigger calls for.
type Service struct {
	store    store.Store
	engine   *slugbuild.Engine
	table    suppress.Table
	recorder metrics.Recorder
	config   Config
	logger   *slog.Logger
}

// NewService creates a new scheduling service. table and recorder may be
// nil; they default to a process-local table and no metrics.
func NewService(s store.Store, engine *slugbuild.Engine, table suppress.Table, recorder metrics.Recorder, config Config, logger *slog.Logger) *Service {
	if config.SuppressTTL == 0 {
		config.SuppressTTL = 30 * time.Second
	}
	if config.ConflictMode == "" {
		config.ConflictMode = routing.ConflictAbort
	}
	if table == nil {
		table = suppress.NewMemoryTable()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    s,
		engine:   engine,
		table:    table,
		recorder: recorder,
		config:   config,
		logger:   logger.With("component", "scheduler"),
	}
}

// TriggerResult summarises the builds run for one trigger.
type TriggerResult struct {
	// Suppressed is true when an identical operation was already in progress.
	Suppressed bool                     `json:"suppressed"`
	Builds     int                      `json:"builds"`
	Stats      slugbuild.CommitStats    `json:"stats"`
	Conflicts  []routing.ConflictReport `json:"conflicts,omitempty"`
}

func (r *TriggerResult) add(stats slugbuild.CommitStats) {
	r.Builds++
	r.Stats.Inserted += stats.Inserted
	r.Stats.Updated += stats.Updated
	r.Stats.Deleted += stats.Deleted
	r.Stats.Skipped += stats.Skipped
}

// =============================================================================
// Trigger Handling
// =============================================================================

// HandleTrigger rebuilds the scope of t. Builds that hit a fatal conflict
// are logged and the remaining builds still run; the conflicts are returned
// together as a FatalConflictError. Any other failure stops the trigger.
func (s *Service) HandleTrigger(ctx context.Context, t routing.Trigger) (*TriggerResult, error) {
	s.recorder.IncTrigger(string(t.Kind))

	scope, err := routing.ScopeFor(t)
	if err != nil {
		return nil, err
	}

	out := &TriggerResult{}
	key := routing.SuppressionKey(t)
	tok, ok, err := s.table.Acquire(ctx, key, s.config.SuppressTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire suppression marker: %w", err)
	}
	if !ok {
		s.logger.Debug("trigger suppressed", "key", key)
		s.recorder.IncBuildOutcome(metrics.OutcomeSuppressed)
		out.Suppressed = true
		return out, nil
	}
	defer func() {
		if err := s.table.Release(context.WithoutCancel(ctx), tok); err != nil {
			s.logger.Warn("failed to release suppression marker", "key", key, "error", err)
		}
	}()

	site, err := s.store.GetSite(ctx, t.SiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to load site %s: %w", t.SiteID, err)
	}

	s.logger.Debug("handling trigger",
		"kind", t.Kind,
		"site_id", t.SiteID,
		"node_id", t.NodeID,
	)

	if err := s.runScope(ctx, site, scope, out); err != nil {
		return out, err
	}
	if len(out.Conflicts) > 0 {
		return out, &slugbuild.FatalConflictError{Conflicts: out.Conflicts}
	}
	return out, nil
}

func (s *Service) runScope(ctx context.Context, site *domain.Site, scope routing.Scope, out *TriggerResult) error {
	base := s.policyFor(site)

	switch scope.Kind {
	case routing.ScopeNodes:
		for _, target := range scope.Targets {
			if target.ChildrenOnly {
				children, err := s.store.ListChildren(ctx, target.NodeID)
				if err != nil {
					return fmt.Errorf("failed to list children of %s: %w", target.NodeID, err)
				}
				for _, child := range children {
					if err := s.runBuild(ctx, child.ID, base, out); err != nil {
						return err
					}
				}
				continue
			}
			policy := base
			policy.BuildSiblings = target.BuildSiblings
			policy.BuildDescendants = target.BuildDescendants
			if err := s.runBuild(ctx, target.NodeID, policy, out); err != nil {
				return err
			}
		}

	case routing.ScopeSite:
		roots, err := s.store.ListRootNodes(ctx, site.ID)
		if err != nil {
			return fmt.Errorf("failed to list root nodes: %w", err)
		}
		policy := base
		policy.BuildDescendants = scope.BuildDescendants
		for _, root := range roots {
			if err := s.runBuild(ctx, root.ID, policy, out); err != nil {
				return err
			}
		}

	case routing.ScopeTypes:
		nodes, err := s.store.ListNodesByType(ctx, site.ID, scope.TypeNames)
		if err != nil {
			return fmt.Errorf("failed to list nodes by type: %w", err)
		}
		policy := base
		policy.BuildDescendants = scope.BuildDescendants
		for _, n := range nodes {
			if err := s.runBuild(ctx, n.ID, policy, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) policyFor(site *domain.Site) routing.BuildPolicy {
	return routing.BuildPolicy{
		SiteID:                  site.ID,
		Locales:                 site.Locales,
		DefaultLocale:           site.DefaultLocale,
		GenerateIfLocaleMissing: s.config.GenerateIfLocaleMissing,
		ConflictMode:            s.config.ConflictMode,
	}
}

// runBuild runs one build. Fatal conflicts are collected into out; other
// errors are returned.
func (s *Service) runBuild(ctx context.Context, nodeID string, policy routing.BuildPolicy, out *TriggerResult) error {
	start := time.Now()
	res, err := s.engine.Run(ctx, nodeID, policy, false)
	s.recorder.ObserveBuildDuration(time.Since(start))

	if err != nil {
		if fc, ok := slugbuild.IsFatalConflict(err); ok {
			s.logConflicts(fc.Conflicts)
			s.recorder.IncBuildOutcome(metrics.OutcomeConflict)
			out.Conflicts = append(out.Conflicts, fc.Conflicts...)
			return nil
		}
		s.recorder.IncBuildOutcome(metrics.OutcomeFailed)
		s.logger.Error("build failed", "node_id", nodeID, "error", err)
		return err
	}

	out.add(res.Stats)
	s.recorder.AddSlugWrites("insert", res.Stats.Inserted)
	s.recorder.AddSlugWrites("update", res.Stats.Updated)
	s.recorder.AddSlugWrites("delete", res.Stats.Deleted)
	if res.Committed() {
		s.recorder.IncBuildOutcome(metrics.OutcomeCommitted)
	} else {
		s.recorder.IncBuildOutcome(metrics.OutcomeUnchanged)
	}
	return nil
}

func (s *Service) logConflicts(conflicts []routing.ConflictReport) {
	s.recorder.IncConflicts(len(conflicts))
	for _, c := range conflicts {
		s.logger.Error("slug conflict",
			"node_id", c.NodeID,
			"locale", c.Locale,
			"slug", c.Text,
			"conflicting_node_id", c.ConflictingNodeID,
			"conflicting_locale", c.ConflictingLocale,
		)
	}
}

// =============================================================================
// Node Operations
// =============================================================================

// RebuildNode rebuilds nodeID, and with descendants its whole subtree.
func (s *Service) RebuildNode(ctx context.Context, nodeID string, descendants bool) (*TriggerResult, error) {
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	site, err := s.store.GetSite(ctx, node.SiteID)
	if err != nil {
		return nil, err
	}
	out := &TriggerResult{}
	policy := s.policyFor(site)
	policy.BuildDescendants = descendants
	if err := s.runBuild(ctx, nodeID, policy, out); err != nil {
		return out, err
	}
	if len(out.Conflicts) > 0 {
		return out, &slugbuild.FatalConflictError{Conflicts: out.Conflicts}
	}
	return out, nil
}

// Check runs a checking-only build of nodeID and its subtree against the
// latest drafts. It writes nothing; a non-empty result means publishing
// the drafts would collide.
func (s *Service) Check(ctx context.Context, nodeID string) ([]routing.ConflictReport, error) {
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	site, err := s.store.GetSite(ctx, node.SiteID)
	if err != nil {
		return nil, err
	}
	policy := s.policyFor(site)
	policy.CheckingOnly = true
	policy.BuildDescendants = true

	res, err := s.engine.Run(ctx, nodeID, policy, true)
	if err != nil {
		return nil, err
	}
	s.recorder.IncBuildOutcome(metrics.OutcomeChecked)
	s.recorder.IncConflicts(len(res.Conflicts))
	return res.Conflicts, nil
}

// ListSlugs returns the slugs and redirects of a node.
func (s *Service) ListSlugs(ctx context.Context, nodeID string) ([]domain.SlugRecord, []domain.SlugRedirect, error) {
	if _, err := s.store.GetNode(ctx, nodeID); err != nil {
		return nil, nil, err
	}
	slugs, err := s.store.ListSlugsByNode(ctx, nodeID)
	if err != nil {
		return nil, nil, err
	}
	redirects, err := s.store.ListRedirectsByNode(ctx, nodeID)
	if err != nil {
		return nil, nil, err
	}
	return slugs, redirects, nil
}

// PinCustomSlug pins text as the custom slug of nodeID for locale and
// rebuilds the node's subtree, so children pick up the new parent slug.
// A text already used by another node of the site is refused with a
// FatalConflictError.
func (s *Service) PinCustomSlug(ctx context.Context, nodeID, locale, text string) (*domain.SlugRecord, error) {
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	site, err := s.store.GetSite(ctx, node.SiteID)
	if err != nil {
		return nil, err
	}
	if !s.policyFor(site).HasLocale(locale) {
		return nil, fmt.Errorf("%w: %s", ErrLocaleNotConfigured, locale)
	}
	text = domain.Sanitize(text, site.Rules)
	rec := &domain.SlugRecord{NodeID: nodeID, SiteID: site.ID, Locale: locale, Text: text}
	if err := domain.ValidateSlugRecord(*rec, site.Rules); err != nil {
		if errors.Is(err, domain.ErrSlugTextRequired) {
			return nil, ErrEmptySlug
		}
		return nil, err
	}

	used, err := s.store.FindSlugsByText(ctx, site.ID, text)
	if err != nil {
		return nil, err
	}
	for _, rec := range used {
		if rec.NodeID != nodeID {
			return nil, &slugbuild.FatalConflictError{Conflicts: []routing.ConflictReport{{
				SiteID:            site.ID,
				Text:              text,
				NodeID:            nodeID,
				Locale:            locale,
				ConflictingNodeID: rec.NodeID,
				ConflictingLocale: rec.Locale,
			}}}
		}
	}

	if err := s.store.PinSlug(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("custom slug pinned", "node_id", nodeID, "locale", locale, "slug", text)

	if _, err := s.RebuildNode(ctx, nodeID, true); err != nil {
		return rec, err
	}
	return rec, nil
}

// UnpinCustomSlug releases the custom slug of nodeID for locale and
// rebuilds the node so the generated slug takes over.
func (s *Service) UnpinCustomSlug(ctx context.Context, nodeID, locale string) (*TriggerResult, error) {
	if err := s.store.UnpinSlug(ctx, nodeID, locale); err != nil {
		return nil, err
	}
	s.logger.Info("custom slug unpinned", "node_id", nodeID, "locale", locale)
	return s.RebuildNode(ctx, nodeID, false)
}

// ResolveSlug returns the slug a node is served under for locale, falling
// back to the site's default locale and then to any slug the node has.
func (s *Service) ResolveSlug(ctx context.Context, nodeID, locale string) (string, error) {
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return "", err
	}
	site, err := s.store.GetSite(ctx, node.SiteID)
	if err != nil {
		return "", err
	}
	records, err := s.store.ListSlugsByNode(ctx, nodeID)
	if err != nil {
		return "", err
	}
	var set routing.CandidateSet
	for _, rec := range records {
		set.Put(routing.CandidateFromRecord(rec, site.DefaultLocale))
	}
	text, ok := set.Slug(locale)
	if !ok {
		return "", store.NewStoreError("ResolveSlug", "slug", nodeID, "node has no slugs", store.ErrNotFound)
	}
	return text, nil
}
