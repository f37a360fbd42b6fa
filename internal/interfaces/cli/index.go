package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/envlytics/analyte-resolver/internal/application/indexing"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

var indexIfStale bool

// NewIndexCmd creates the index command with its rebuild subcommand.
func NewIndexCmd(opts *RootOptions, svc indexing.Service, logger logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the matching corpus snapshot",
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild and activate a fresh corpus snapshot",
		Long:  "Rebuild reads the analyte registry and promoted synonyms from the\ndatabase, builds a new corpus snapshot, persists its artifact and\nactivates it for matching.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexRebuild(cmd, opts, svc, logger)
		},
	}
	rebuildCmd.Flags().BoolVar(&indexIfStale, "if-stale", false, "rebuild only when runtime learning marked the snapshot stale")

	cmd.AddCommand(rebuildCmd)
	return cmd
}

func runIndexRebuild(cmd *cobra.Command, opts *RootOptions, svc indexing.Service, logger logging.Logger) error {
	ctx := contextOf(cmd)

	var (
		report *indexing.RebuildReport
		err    error
	)
	if indexIfStale {
		report, err = svc.RebuildIfStale(ctx)
	} else {
		report, err = svc.Rebuild(ctx)
	}
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "snapshot is current; nothing to rebuild")
		return nil
	}
	if report.Skipped != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "rebuild skipped: %s\n", report.Skipped)
		return nil
	}

	logger.Info("corpus snapshot rebuilt",
		logging.String("hash", report.Hash),
		logging.Int("analytes", report.AnalyteCount),
		logging.Duration("build_time", report.BuildTime))

	return printResult(cmd, opts, rebuildView{report})
}

// rebuildView adds table rendering on top of the rebuild report.
type rebuildView struct {
	*indexing.RebuildReport
}

func (v rebuildView) TableHeaders() []string {
	return []string{"SNAPSHOT", "HASH", "ANALYTES", "ENTRIES", "BUILD TIME"}
}

func (v rebuildView) TableRows() [][]string {
	return [][]string{{
		v.SnapshotID,
		v.Hash,
		fmt.Sprintf("%d", v.AnalyteCount),
		fmt.Sprintf("%d", v.EntryCount),
		v.BuildTime.String(),
	}}
}

func (v rebuildView) String() string {
	return FormatTable(v.TableHeaders(), v.TableRows())
}
