package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-h"})
	require.NoError(t, err, "the help flag should exit cleanly")
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "events.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("n,pt\n2,41.5\n3,17.2\n2,55.1\n"), 0600))

	analysisHCL := `
source "csv" "events" { path = "events.csv" }

filter "n == 2" { expr = "n == 2" }

histogram "h_pt" {
  column = "pt"
  bins   = 4
  low    = 0
  high   = 100
}

count "selected" {}
`
	hclPath := filepath.Join(dir, "skim.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(analysisHCL), 0600))

	out := &bytes.Buffer{}
	err := run(out, []string{"-log-level", "error", hclPath})
	require.NoError(t, err)

	output := out.String()
	require.Contains(t, output, "n == 2", "cutflow table names the filter")
	require.Contains(t, output, "h_pt", "histogram table is rendered")
	require.Contains(t, output, "selected: 2 rows")
}

func TestRun_BadAnalysisFileFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hclPath := filepath.Join(dir, "broken.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`source "csv" "a" {`), 0600))

	out := &bytes.Buffer{}
	err := run(out, []string{hclPath})
	require.Error(t, err)
}
