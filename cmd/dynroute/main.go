package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/dynroute/internal/shell/slugbuild"
	"github.com/spf13/cobra"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	var sErr *ServerError
	if errors.As(err, &sErr) {
		return sErr.ExitCode
	}
	if _, ok := slugbuild.IsFatalConflict(err); ok {
		return ExitConflict
	}
	return ExitConfigError
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "dynroute",
		Short: "Maintain per-locale URL slugs for a content tree",
		Long: `dynroute keeps the URL slugs of a hierarchical content tree in sync
with its content. Each node gets one slug per site locale, built from its
type's path template; conflicts are refused or suffixed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	loadConfig := func() (*Config, error) {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return nil, &ServerError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newRebuildCmd(loadConfig),
		newCheckCmd(loadConfig),
		newImportCmd(loadConfig),
	)
	return root
}
