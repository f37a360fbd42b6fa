package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	opts := &RootOptions{}
	cmd := NewRootCommand(opts)

	cmd.SetArgs([]string{"--log-level", "debug", "--output", "json", "--verbose"})
	cmd.RunE = func(*cobra.Command, []string) error { return nil }

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "debug", opts.LogLevel)
	assert.Equal(t, "json", opts.OutputFormat)
	assert.True(t, opts.Verbose)
}

func TestRootCommandVersion(t *testing.T) {
	opts := &RootOptions{}
	cmd := NewRootCommand(opts)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "dev")
}

func TestFormatTableAlignsColumns(t *testing.T) {
	out := FormatTable(
		[]string{"NAME", "SCORE"},
		[][]string{
			{"benzene", "0.970"},
			{"1,2-dichloroethane", "0.810"},
		},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "---")
	// all rows share the column offset of the widest cell
	scoreCol := strings.Index(lines[3], "0.810")
	assert.Equal(t, scoreCol, strings.Index(lines[0], "SCORE"))
}

func TestFormatTableEmptyHeaders(t *testing.T) {
	assert.Empty(t, FormatTable(nil, [][]string{{"x"}}))
}

func TestPrintResultJSON(t *testing.T) {
	opts := &RootOptions{OutputFormat: "json"}
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, printResult(cmd, opts, map[string]int{"pending": 3}))
	assert.JSONEq(t, `{"pending": 3}`, out.String())
}

func TestPrintResultTableFallsBackToText(t *testing.T) {
	opts := &RootOptions{OutputFormat: "table"}
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, printResult(cmd, opts, "plain"))
	assert.Equal(t, "plain\n", out.String())
}
