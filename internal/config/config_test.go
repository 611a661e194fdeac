package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(New(), t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRootFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	content := "include: src\nsize:\n  small: 50\n  medium: 80\nhistory:\n  method_linking: last-class\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, err := Load(New(), root, "")
	require.NoError(t, err)
	assert.Equal(t, "src", cfg.Include)
	assert.Equal(t, SizeConfig{Small: 50, Medium: 80}, cfg.Size)
	assert.Equal(t, history.LinkLastClass, cfg.LinkMode())
	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.TopModules)
	assert.Equal(t, []string{"python"}, cfg.Languages)
}

func TestLoadExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merge_policy: strict\nworkers: 3\n"), 0o644))

	cfg, err := Load(New(), t.TempDir(), path)
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.MergePolicy)
	assert.Equal(t, 3, cfg.Workers)

	_, err = Load(New(), t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("REPOGRAPH_HISTORY_MAX_COMMITS", "25")
	t.Setenv("REPOGRAPH_INCLUDE", "lib")

	cfg, err := Load(New(), t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.History.MaxCommits)
	assert.Equal(t, "lib", cfg.Include)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("size:\n  small: 300\n"), 0o644))

	_, err := Load(New(), root, "")
	assert.ErrorContains(t, err, "size thresholds")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"merge policy", func(c *Config) { c.MergePolicy = "newest" }, "unknown merge policy"},
		{"linking", func(c *Config) { c.History.MethodLinking = "nearest" }, "unknown method linking mode"},
		{"language", func(c *Config) { c.Languages = []string{"cobol"} }, "unsupported language"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"max commits", func(c *Config) { c.History.MaxCommits = -2 }, "max_commits"},
		{"file size", func(c *Config) { c.MaxFileSize = -1 }, "max_file_size"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestComposerOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Size = SizeConfig{Small: 10, Medium: 20}
	cfg.MergePolicy = "first-writer-wins"
	cfg.Workers = 2

	opts := cfg.ComposerOptions()
	assert.Equal(t, "app", opts.Include)
	assert.Equal(t, model.Thresholds{Small: 10, Medium: 20}, opts.Thresholds)
	assert.Equal(t, graph.FirstWriterWins, opts.Policy)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 1_000_000, opts.MaxFileSize)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Default().WriteYAML(&buf))
	assert.Contains(t, buf.String(), "method_linking: owner\n")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), buf.Bytes(), 0o644))
	cfg, err := Load(New(), root, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
