package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "scan"}, names)

	flag := root.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, ".env", flag.DefValue)
}

func TestScan_FailsWithoutConfiguration(t *testing.T) {
	t.Setenv("KEEPER_MODE", "")

	root := newRootCmd()
	root.SetArgs([]string{"scan", "--env-file", filepath.Join(t.TempDir(), "missing.env")})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEEPER_MODE")
}
