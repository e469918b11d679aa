package slugbuild

import (
	"context"
	"log/slog"

	"github.com/artpar/dynroute/internal/core/routing"
)

// EngineConfig configures the slug build engine.
type EngineConfig struct {
	// WriteRetryLimit bounds how often a write that lost a uniqueness race
	// is re-suffixed and retried.
	// Default: 5.
	WriteRetryLimit int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{WriteRetryLimit: 5}
}

// Engine computes slugs for content subtrees and persists the difference.
// One build tree is processed sequentially; an Engine may serve concurrent
// builds.
type Engine struct {
	content  ContentTree
	slugs    SlugStore
	resolver TemplateResolver
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine creates a new slug build engine.
func NewEngine(content ContentTree, slugs SlugStore, resolver TemplateResolver, config EngineConfig, logger *slog.Logger) *Engine {
	if config.WriteRetryLimit <= 0 {
		config.WriteRetryLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		content:  content,
		slugs:    slugs,
		resolver: resolver,
		config:   config,
		logger:   logger.With("component", "slugbuild"),
	}
}

// =============================================================================
// Run
// =============================================================================

// Result summarises one build.
type Result struct {
	Tree      *routing.Tree
	Conflicts []routing.ConflictReport
	Stats     CommitStats
}

// Committed reports whether the build wrote anything.
func (r *Result) Committed() bool {
	return r.Stats.Total() > 0
}

// Run builds the tree for nodeID and, unless the policy is checking-only,
// resolves conflicts and commits it. Checking-only runs return the
// conflicts they found and never write.
func (e *Engine) Run(ctx context.Context, nodeID string, policy routing.BuildPolicy, useCurrentDraft bool) (*Result, error) {
	tree, err := e.Build(ctx, nodeID, policy, useCurrentDraft)
	if err != nil {
		return nil, err
	}
	res := &Result{Tree: tree}

	if policy.CheckingOnly {
		res.Conflicts, err = e.FindConflicts(ctx, tree)
		return res, err
	}

	if err := e.ResolveConflicts(ctx, tree, policy.ConflictMode); err != nil {
		if fc, ok := IsFatalConflict(err); ok {
			res.Conflicts = fc.Conflicts
		}
		return res, err
	}

	res.Stats, err = e.Commit(ctx, tree, true)
	if err != nil {
		return res, err
	}

	e.logger.Debug("slug build committed",
		"node_id", nodeID,
		"units", tree.Len(),
		"inserted", res.Stats.Inserted,
		"updated", res.Stats.Updated,
		"deleted", res.Stats.Deleted,
	)
	return res, nil
}
