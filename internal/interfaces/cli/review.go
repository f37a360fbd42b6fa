package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/envlytics/analyte-resolver/internal/application/review"
	"github.com/envlytics/analyte-resolver/internal/domain/learning"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

var (
	reviewVendor    string
	reviewBand      string
	reviewQuery     string
	reviewPage      int
	reviewPageSize  int
	reviewThreshold float64
)

// NewReviewCmd creates the review command group: queue listing, band
// summary and unknown-name clustering.
func NewReviewCmd(opts *RootOptions, svc review.Service, logger logging.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect the human review queue",
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "List decisions pending human validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewQueue(cmd, opts, svc)
		},
	}
	queueCmd.Flags().StringVar(&reviewQuery, "query", "", "free-text filter on the observed name")
	queueCmd.Flags().StringVar(&reviewVendor, "vendor", "", "restrict to one lab vendor")
	queueCmd.Flags().StringVar(&reviewBand, "band", "", "confidence band filter (AUTO_ACCEPT, REVIEW, REJECT)")
	queueCmd.Flags().IntVar(&reviewPage, "page", 1, "result page")
	queueCmd.Flags().IntVar(&reviewPageSize, "page-size", 20, "results per page")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Count pending decisions per confidence band",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewSummary(cmd, opts, svc)
		},
	}

	clustersCmd := &cobra.Command{
		Use:   "clusters",
		Short: "Cluster similar unresolved names",
		Long:  "Clusters groups rejected observed names by string similarity so a\nreviewer can map a whole family of spellings in one pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewClusters(cmd, opts, svc, logger)
		},
	}
	clustersCmd.Flags().StringVar(&reviewVendor, "vendor", "", "restrict to one lab vendor")
	clustersCmd.Flags().Float64Var(&reviewThreshold, "threshold", learning.DefaultClusterThreshold, "similarity threshold in (0, 1]")

	cmd.AddCommand(queueCmd, summaryCmd, clustersCmd)
	return cmd
}

func runReviewQueue(cmd *cobra.Command, opts *RootOptions, svc review.Service) error {
	out, err := svc.Queue(contextOf(cmd), &review.QueueInput{
		Text:   reviewQuery,
		Vendor: common.Vendor(reviewVendor),
		Band:   reviewBand,
		Page:   common.Pagination{Page: reviewPage, PageSize: reviewPageSize},
	})
	if err != nil {
		return err
	}
	return printResult(cmd, opts, queueView{out})
}

func runReviewSummary(cmd *cobra.Command, opts *RootOptions, svc review.Service) error {
	counts, err := svc.BandSummary(contextOf(cmd))
	if err != nil {
		return err
	}
	return printResult(cmd, opts, summaryView(counts))
}

func runReviewClusters(cmd *cobra.Command, opts *RootOptions, svc review.Service, logger logging.Logger) error {
	if reviewThreshold <= 0 || reviewThreshold > 1 {
		return errors.InvalidParam("threshold must be in (0, 1]")
	}

	clusters, err := svc.ClusterUnknowns(contextOf(cmd), &review.ClusterInput{
		Vendor:    common.Vendor(reviewVendor),
		Threshold: reviewThreshold,
	})
	if err != nil {
		return err
	}
	logger.Debug("clustered unresolved names", logging.Int("clusters", len(clusters)))
	return printResult(cmd, opts, clusterView(clusters))
}

// queueView adds table rendering on top of the queue output.
type queueView struct {
	*review.QueueOutput
}

func (v queueView) TableHeaders() []string {
	return []string{"ID", "INPUT", "ANALYTE", "METHOD", "SCORE", "BAND", "VENDOR"}
}

func (v queueView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Items))
	for _, item := range v.Items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.DecisionID),
			item.InputText,
			string(item.MatchedAnalyteID),
			item.Method,
			fmt.Sprintf("%.3f", item.ConfidenceScore),
			item.Band,
			string(item.Vendor),
		})
	}
	return rows
}

func (v queueView) String() string {
	return fmt.Sprintf("%s%d pending\n", FormatTable(v.TableHeaders(), v.TableRows()), v.Total)
}

// summaryView renders the per-band pending counts in a stable order.
type summaryView map[string]int64

func (v summaryView) TableHeaders() []string { return []string{"BAND", "PENDING"} }

func (v summaryView) TableRows() [][]string {
	bands := make([]string, 0, len(v))
	for band := range v {
		bands = append(bands, band)
	}
	sort.Strings(bands)
	rows := make([][]string, 0, len(bands))
	for _, band := range bands {
		rows = append(rows, []string{band, fmt.Sprintf("%d", v[band])})
	}
	return rows
}

func (v summaryView) String() string {
	return FormatTable(v.TableHeaders(), v.TableRows())
}

// clusterView renders one row per cluster with its member spellings.
type clusterView []learning.Cluster

func (v clusterView) TableHeaders() []string { return []string{"ANCHOR", "SIZE", "MEMBERS"} }

func (v clusterView) TableRows() [][]string {
	rows := make([][]string, 0, len(v))
	for _, c := range v {
		members := ""
		for i, m := range c.Members {
			if i > 0 {
				members += ", "
			}
			members += m.Text
		}
		rows = append(rows, []string{c.Anchor, fmt.Sprintf("%d", c.Size()), members})
	}
	return rows
}

func (v clusterView) String() string {
	return FormatTable(v.TableHeaders(), v.TableRows())
}
