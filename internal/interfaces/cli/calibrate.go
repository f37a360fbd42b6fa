package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/envlytics/analyte-resolver/internal/application/calibration"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

// NewCalibrateCmd creates the calibrate command.
func NewCalibrateCmd(opts *RootOptions, svc calibration.Service, logger logging.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Recalibrate matching thresholds from validated decisions",
		Long:  "Calibrate sweeps the recently validated decisions for the lowest\nauto-accept and margin thresholds that keep the target precision, and\ninstalls them when the sample is large enough.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(cmd, opts, svc, logger)
		},
	}
}

func runCalibrate(cmd *cobra.Command, opts *RootOptions, svc calibration.Service, logger logging.Logger) error {
	report, err := svc.Run(contextOf(cmd))
	if err != nil {
		return err
	}
	if report.Skipped != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "calibration skipped: %s (sample size %d)\n",
			report.Skipped, report.SampleSize)
		return nil
	}

	logger.Info("thresholds recalibrated",
		logging.Int("sample_size", report.SampleSize),
		logging.Int("vendor_overrides", report.Overrides))

	return printResult(cmd, opts, calibrationView{report})
}

// calibrationView adds table rendering on top of the calibration report.
type calibrationView struct {
	*calibration.Report
}

func (v calibrationView) TableHeaders() []string {
	return []string{"SAMPLE", "AUTO ACCEPT", "REVIEW", "MIN MARGIN", "OVERRIDES"}
}

func (v calibrationView) TableRows() [][]string {
	return [][]string{{
		fmt.Sprintf("%d", v.SampleSize),
		fmt.Sprintf("%.3f", v.Global.AutoAccept),
		fmt.Sprintf("%.3f", v.Global.Review),
		fmt.Sprintf("%.3f", v.Global.MinMargin),
		fmt.Sprintf("%d", v.Overrides),
	}}
}

func (v calibrationView) String() string {
	return FormatTable(v.TableHeaders(), v.TableRows())
}
