package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(`
roots:
  - /srv/files
  - /srv/inbox
state_dir: /var/lib/drover
workers: 4
batch_item_limit: 100
bundle:
  max_file_bytes: 1048576
  max_total_bytes: 10485760
  time_budget: 30s
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/files", "/srv/inbox"}, cfg.Roots)
	assert.Equal(t, "/var/lib/drover", cfg.StateDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.BatchItemLimit)
	assert.Equal(t, int64(1048576), cfg.Bundle.MaxFileBytes)
	assert.Equal(t, 30*time.Second, cfg.Bundle.TimeBudget)
}

func TestParse_MinimalDocument(t *testing.T) {
	cfg, err := Parse([]byte("roots: [/data]\nstate_dir: /state\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/data"}, cfg.Roots)
	assert.Zero(t, cfg.Workers)
	assert.Zero(t, cfg.Bundle.TimeBudget)
}

func TestParse_Rejections(t *testing.T) {
	cases := map[string]string{
		"empty document":     "",
		"missing roots":      "state_dir: /state\n",
		"empty roots":        "roots: []\nstate_dir: /state\n",
		"missing state_dir":  "roots: [/data]\n",
		"non-int workers":    "roots: [/data]\nstate_dir: /state\nworkers: many\n",
		"zero workers":       "roots: [/data]\nstate_dir: /state\nworkers: 0\n",
		"unknown field":      "roots: [/data]\nstate_dir: /state\ncolor: red\n",
		"bad time budget":    "roots: [/data]\nstate_dir: /state\nbundle: {time_budget: fast}\n",
		"non-string root":    "roots: [1]\nstate_dir: /state\n",
		"not yaml":           "{{{",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			var ce *Error
			assert.ErrorAs(t, err, &ce)
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drover.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roots: [files]\nstate_dir: state\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "files")}, cfg.Roots)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.StateDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Path)
}
