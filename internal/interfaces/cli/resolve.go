package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/envlytics/analyte-resolver/internal/application/matching"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

var (
	resolveVendor string
	resolveDryRun bool
	resolveFile   string
)

// NewResolveCmd creates the resolve command.  Names come from the positional
// arguments or, for bulk runs, one per line from --file.
func NewResolveCmd(opts *RootOptions, svc matching.Service, logger logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [name ...]",
		Short: "Resolve raw chemical names to registry analytes",
		Long:  "Resolve runs one or more observed chemical names through the matching\ncascade and prints the decided analyte, method, score and confidence band.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, svc, logger, args)
		},
	}

	cmd.Flags().StringVar(&resolveVendor, "vendor", "", "lab vendor code scoping vendor priors and synonyms")
	cmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "skip recording decision audit rows")
	cmd.Flags().StringVar(&resolveFile, "file", "", "file with one observed name per line")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *RootOptions, svc matching.Service, logger logging.Logger, args []string) error {
	names := args
	if resolveFile != "" {
		fromFile, err := readNames(resolveFile)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return errors.InvalidParam("no names given; pass them as arguments or via --file")
	}

	inputs := make([]*matching.ResolveInput, 0, len(names))
	for _, name := range names {
		inputs = append(inputs, &matching.ResolveInput{
			Text:   name,
			Vendor: common.Vendor(resolveVendor),
			DryRun: resolveDryRun,
		})
	}

	logger.Debug("resolving names",
		logging.Int("count", len(inputs)),
		logging.String("lab_vendor", resolveVendor),
		logging.Bool("dry_run", resolveDryRun))

	outputs, err := svc.ResolveBatch(contextOf(cmd), inputs)
	if err != nil {
		return err
	}

	return printResult(cmd, opts, resolveReport{Decisions: outputs})
}

// readNames reads one observed name per line, skipping blanks.
func readNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidParam, "cannot open name file %s", path)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if len(line) > 0 {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidParam, "cannot read name file %s", path)
	}
	return names, nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveReport wraps the batch output for table rendering.
type resolveReport struct {
	Decisions []*matching.ResolveOutput `json:"decisions"`
}

func (r resolveReport) TableHeaders() []string {
	return []string{"INPUT", "ANALYTE", "METHOD", "SCORE", "MARGIN", "BAND"}
}

func (r resolveReport) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		res := d.Result
		analyte, method, score := "-", "NONE", "-"
		if res.Best != nil {
			analyte = string(res.Best.AnalyteID)
			method = string(res.Best.Method)
			score = fmt.Sprintf("%.3f", res.Best.Score)
		}
		rows = append(rows, []string{
			res.Input,
			analyte,
			method,
			score,
			fmt.Sprintf("%.3f", res.Margin),
			string(res.Band),
		})
	}
	return rows
}

func (r resolveReport) String() string {
	return FormatTable(r.TableHeaders(), r.TableRows())
}
