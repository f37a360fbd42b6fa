// Operator CLI entry point for the analyte resolver.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/envlytics/analyte-resolver/internal/bootstrap"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts := &cli.RootOptions{}
	root := cli.NewRootCommand(opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Help and completion must list the subcommands without paying for a
	// backend connection, so they are registered with empty dependencies.
	sub := subcommand(args)
	if sub == "" || sub == "help" || sub == "completion" {
		cli.RegisterCommands(root, opts, cli.Dependencies{Logger: logging.NewNopLogger()})
		root.SetArgs(args)
		return root.ExecuteContext(ctx)
	}

	// Parse the persistent flags early so --config and --log-level reach
	// the wiring step.  Unknown subcommand flags are ignored here; cobra
	// parses them properly during Execute.
	fs := root.PersistentFlags()
	fs.ParseErrorsWhitelist.UnknownFlags = true
	_ = fs.Parse(args)

	logger, err := cli.InitLogger(opts)
	if err != nil {
		return err
	}
	cfg, err := cli.InitConfig(opts)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// Resolution needs an active corpus snapshot; the other commands reach
	// the database and thresholds directly.
	if sub == "resolve" {
		if err := app.Indexing.LoadActive(ctx); err != nil {
			return err
		}
	}

	cli.RegisterCommands(root, opts, cli.Dependencies{
		Logger:      logger,
		Matching:    app.Matching,
		Review:      app.Review,
		Calibration: app.Calibration,
		Indexing:    app.Indexing,
	})

	return root.ExecuteContext(ctx)
}

// subcommand returns the first non-flag argument.
func subcommand(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}
