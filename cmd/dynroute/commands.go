package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/artpar/dynroute/internal/core/routing"
	"github.com/artpar/dynroute/internal/shell/scheduler"
	"github.com/artpar/dynroute/internal/shell/seed"
	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/spf13/cobra"
)

type configLoader func() (*Config, error)

// =============================================================================
// serve
// =============================================================================

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, NATS subscriber and reconcile worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			logger.Info("starting dynroute",
				"version", Version,
				"database", cfg.Database.DSN,
			)

			server, err := NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}
}

// =============================================================================
// rebuild
// =============================================================================

func newRebuildCmd(load configLoader) *cobra.Command {
	var descendants bool

	cmd := &cobra.Command{
		Use:   "rebuild <node-id>",
		Short: "Rebuild the slugs of a node",
		Long: `Rebuild the slugs of a node and write what changed. Children are
rebuilt when the node's slugs change, or always with --descendants.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(logger)

			res, err := a.service.RebuildNode(cmd.Context(), args[0], descendants)
			if res != nil {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&descendants, "descendants", false, "Rebuild the whole subtree")
	return cmd
}

// =============================================================================
// check
// =============================================================================

type checkOutput struct {
	NodeID    string                   `json:"node_id"`
	OK        bool                     `json:"ok"`
	Conflicts []routing.ConflictReport `json:"conflicts"`
}

func newCheckCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "check <node-id>",
		Short: "Report the slug conflicts publishing a node's drafts would cause",
		Long: `Run a checking-only build of a node and its subtree against the
latest drafts. Nothing is written. Exits non-zero when conflicts are found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(logger)

			conflicts, err := a.service.Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if conflicts == nil {
				conflicts = []routing.ConflictReport{}
			}
			out := checkOutput{NodeID: args[0], OK: len(conflicts) == 0, Conflicts: conflicts}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !out.OK {
				return &slugbuild.FatalConflictError{Conflicts: conflicts}
			}
			return nil
		},
	}
}

// =============================================================================
// import
// =============================================================================

type importOutput struct {
	Import *seed.Report                        `json:"import"`
	Builds map[string]*scheduler.TriggerResult `json:"builds,omitempty"`
}

func newImportCmd(load configLoader) *cobra.Command {
	var noBuild bool

	cmd := &cobra.Command{
		Use:   "import <seed.yaml>",
		Short: "Import sites, types and nodes from a YAML seed file",
		Long: `Import a YAML seed file into the store, then reconcile every site it
touched so the imported nodes get their slugs. Use --no-build to skip the
reconcile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.ParseFile(args[0])
			if err != nil {
				return err
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(logger)

			report, err := seed.Import(cmd.Context(), a.store, f)
			if err != nil {
				return err
			}
			logger.Info("seed imported",
				"sites", report.Sites,
				"types", report.Types,
				"nodes", report.Nodes,
				"documents", report.Documents,
			)

			out := importOutput{Import: report}
			var buildErr error
			if !noBuild {
				out.Builds = make(map[string]*scheduler.TriggerResult, len(report.SiteIDs))
				for _, siteID := range report.SiteIDs {
					res, err := a.service.HandleTrigger(cmd.Context(), routing.Trigger{Kind: routing.Reconcile, SiteID: siteID})
					if res != nil {
						out.Builds[siteID] = res
					}
					if err != nil {
						buildErr = fmt.Errorf("site %s: %w", siteID, err)
						if _, ok := slugbuild.IsFatalConflict(err); !ok {
							break
						}
					}
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			return buildErr
		},
	}
	cmd.Flags().BoolVar(&noBuild, "no-build", false, "Skip the reconcile after importing")
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
