package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/application/matching"
	"github.com/envlytics/analyte-resolver/internal/domain/resolution"
	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

type stubMatching struct {
	inputs []*matching.ResolveInput
	err    error
}

func (s *stubMatching) Resolve(ctx context.Context, input *matching.ResolveInput) (*matching.ResolveOutput, error) {
	outs, err := s.ResolveBatch(ctx, []*matching.ResolveInput{input})
	if err != nil {
		return nil, err
	}
	return outs[0], nil
}

func (s *stubMatching) ResolveBatch(_ context.Context, inputs []*matching.ResolveInput) ([]*matching.ResolveOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = inputs
	outs := make([]*matching.ResolveOutput, 0, len(inputs))
	for i, in := range inputs {
		outs = append(outs, &matching.ResolveOutput{
			DecisionID: int64(i + 1),
			Result: &resolution.Result{
				Input:  in.Text,
				Vendor: in.Vendor,
				Best: &resolution.Candidate{
					AnalyteID: "REG153_001",
					Score:     0.97,
					Method:    resolution.MethodExact,
				},
				Margin: 0.40,
				Band:   resolution.BandAutoAccept,
			},
		})
	}
	return outs, nil
}

func runResolveCmd(t *testing.T, svc matching.Service, args ...string) (string, error) {
	t.Helper()
	resolveVendor, resolveDryRun, resolveFile = "", false, ""

	opts := &RootOptions{OutputFormat: "table"}
	cmd := NewResolveCmd(opts, svc, logging.NewNopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	svc := &stubMatching{}
	out, err := runResolveCmd(t, svc, "Benzine", "--vendor", "ALS")

	require.NoError(t, err)
	require.Len(t, svc.inputs, 1)
	assert.Equal(t, "Benzine", svc.inputs[0].Text)
	assert.Equal(t, common.Vendor("ALS"), svc.inputs[0].Vendor)
	assert.Contains(t, out, "REG153_001")
	assert.Contains(t, out, "AUTO_ACCEPT")
}

func TestResolveCommandDryRun(t *testing.T) {
	svc := &stubMatching{}
	_, err := runResolveCmd(t, svc, "Benzine", "--dry-run")

	require.NoError(t, err)
	require.Len(t, svc.inputs, 1)
	assert.True(t, svc.inputs[0].DryRun)
}

func TestResolveCommandRequiresNames(t *testing.T) {
	_, err := runResolveCmd(t, &stubMatching{})
	assert.Error(t, err)
}

func TestResolveCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(path, []byte("Benzine\n\nTolulene\n"), 0o600))

	svc := &stubMatching{}
	_, err := runResolveCmd(t, svc, "--file", path)

	require.NoError(t, err)
	require.Len(t, svc.inputs, 2)
	assert.Equal(t, "Tolulene", svc.inputs[1].Text)
}

func TestResolveCommandMissingFile(t *testing.T) {
	_, err := runResolveCmd(t, &stubMatching{}, "--file", "/nonexistent/names.txt")
	assert.Error(t, err)
}
