package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sha1n/redx-indexer/internal/app"
	"github.com/sha1n/redx-indexer/internal/spider"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "redx"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Record index crawler and MCP server",
		Long: "Crawls the record graph reachable from the configured roots into a local search index " +
			"and serves it over MCP. Without a subcommand it drains the pending queue.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpider(cmd, version, spider.CommandDrain, "")
		},
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	app.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "drain",
			Short: "Seed the roots and reconcile every pending record",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSpider(cmd, version, spider.CommandDrain, "")
			},
		},
		&cobra.Command{
			Use:   "index URI",
			Short: "Fetch one record by URI, enqueue it and drain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSpider(cmd, version, spider.CommandIndex, args[0])
			},
		},
		&cobra.Command{
			Use:   "rescan",
			Short: "Enqueue every committed directory and drain",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSpider(cmd, version, spider.CommandRescan, "")
			},
		},
		&cobra.Command{
			Use:   "delete-ignored",
			Short: "Remove ignored directories and their subtrees from both indices",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSpider(cmd, version, spider.CommandDeleteIgnored, "")
			},
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the index over MCP (stdio or SSE)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWithFlags(cmd.Context(), cmd.Flags(), version)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func runSpider(cmd *cobra.Command, version string, command spider.Command, arg string) error {
	return app.RunSpiderWithDeps(cmd.Context(), app.DefaultRunParams(), cmd.Flags(), version, command, arg)
}

func runWithFlags(ctx context.Context, flags *pflag.FlagSet, version string) error {
	return app.RunWithDeps(ctx, app.DefaultRunParams(), flags, version)
}
