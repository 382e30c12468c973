package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treeleaves30760/PyMD/internal/cli"
)

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte("```python\nx = 1\n```\n"), 0644))
	out := filepath.Join(dir, "notes.out.md")

	assert.Equal(t, cli.ExitSuccess, run([]string{"render", doc, "-o", out}))
	assert.Equal(t, cli.ExitCommandError, run([]string{"render", filepath.Join(dir, "absent.md")}))
	assert.Equal(t, cli.ExitFailure, run([]string{"--format", "yaml", "render", doc, "-o", out}))
}
