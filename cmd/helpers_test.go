package main

import (
	"bytes"
	"testing"

	"github.com/priyam-jain-2002/vibemarket/internal/config"
)

// captureOutput points stdout at a buffer for the rest of the test.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

// useConfig installs c as the loaded config for the rest of the test.
func useConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}
