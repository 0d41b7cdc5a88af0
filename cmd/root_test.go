package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "resume", "import", "checkpoint", "credentials"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "vibemarket", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"query", "source", "run-id", "file", "output"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s", name)
	}
	limit := runCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestResumeAndImport_TakeOneArg(t *testing.T) {
	assert.Error(t, resumeCmd.Args(resumeCmd, nil))
	assert.NoError(t, resumeCmd.Args(resumeCmd, []string{"run-1"}))
	assert.Error(t, importCmd.Args(importCmd, []string{"a.yaml", "b.yaml"}))
	assert.NoError(t, importCmd.Args(importCmd, []string{"a.yaml"}))
}

func TestCheckpointCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range checkpointCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])
}
