package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kshedden/seqhmm/seqio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {

	dir := t.TempDir()
	states := filepath.Join(dir, "states.xml")

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--preset", "toy", "--length", "500", "--seed", "7", "--states", states})
	require.NoError(t, rootCmd.Execute())

	recs, err := seqio.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Residues, 500)
	assert.True(t, strings.HasPrefix(recs[0].Header, "simulated length=500 seed=7"))

	b, err := os.ReadFile(states)
	require.NoError(t, err)
	assert.Contains(t, string(b), `type="path_states"`)
}
