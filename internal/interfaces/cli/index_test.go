package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/application/calibration"
	"github.com/envlytics/analyte-resolver/internal/application/indexing"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
)

type stubIndexing struct {
	rebuilds      int
	staleRebuilds int
	stale         bool
}

func (s *stubIndexing) Rebuild(context.Context) (*indexing.RebuildReport, error) {
	s.rebuilds++
	return &indexing.RebuildReport{
		SnapshotID:   "a2f4c6e8",
		Hash:         "deadbeef",
		AnalyteCount: 153,
		EntryCount:   412,
		BuildTime:    120 * time.Millisecond,
	}, nil
}

func (s *stubIndexing) RebuildIfStale(ctx context.Context) (*indexing.RebuildReport, error) {
	s.staleRebuilds++
	if !s.stale {
		return nil, nil
	}
	return s.Rebuild(ctx)
}

func (s *stubIndexing) LoadActive(context.Context) error { return nil }

type stubCalibration struct {
	report *calibration.Report
}

func (s *stubCalibration) Run(context.Context) (*calibration.Report, error) {
	return s.report, nil
}

func TestIndexRebuildCommand(t *testing.T) {
	svc := &stubIndexing{}
	opts := &RootOptions{OutputFormat: "table"}
	indexIfStale = false

	cmd := NewIndexCmd(opts, svc, logging.NewNopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"rebuild"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, 1, svc.rebuilds)
	assert.Contains(t, out.String(), "deadbeef")
	assert.Contains(t, out.String(), "153")
}

func TestIndexRebuildIfStaleCurrent(t *testing.T) {
	svc := &stubIndexing{}
	opts := &RootOptions{OutputFormat: "table"}
	indexIfStale = false

	cmd := NewIndexCmd(opts, svc, logging.NewNopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"rebuild", "--if-stale"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, 1, svc.staleRebuilds)
	assert.Equal(t, 0, svc.rebuilds)
	assert.Contains(t, out.String(), "nothing to rebuild")
}

func TestCalibrateCommandApplied(t *testing.T) {
	svc := &stubCalibration{report: &calibration.Report{
		SampleSize: 320,
		Applied:    true,
		Global:     resolution.Thresholds{AutoAccept: 0.95, Review: 0.75, MinMargin: 0.04},
		Overrides:  2,
	}}
	opts := &RootOptions{OutputFormat: "table"}

	cmd := NewCalibrateCmd(opts, svc, logging.NewNopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "0.950")
	assert.Contains(t, out.String(), "320")
}

func TestCalibrateCommandSkipped(t *testing.T) {
	svc := &stubCalibration{report: &calibration.Report{
		SampleSize: 12,
		Skipped:    "validated sample below minimum",
	}}
	opts := &RootOptions{OutputFormat: "table"}

	cmd := NewCalibrateCmd(opts, svc, logging.NewNopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "calibration skipped")
}
