package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Model", cfg.Model.Dir)
	assert.Equal(t, 200, cfg.Training.Forest.NEstimators)
	assert.Equal(t, int64(42), cfg.Training.Forest.Seed)
	assert.Equal(t, "prognosis", cfg.Training.LabelColumn)
	assert.Empty(t, cfg.Database.Path)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
model:
  dir: /srv/models
training:
  forest:
    n_estimators: 50
    max_depth: 12
database:
  path: /srv/mediassist.db
serve:
  watch: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models", cfg.Model.Dir)
	assert.Equal(t, "random_forest_model.json", cfg.Model.ModelFile)
	assert.Equal(t, 50, cfg.Training.Forest.NEstimators)
	assert.Equal(t, 12, cfg.Training.Forest.MaxDepth)
	assert.Equal(t, int64(42), cfg.Training.Forest.Seed)
	assert.Equal(t, "/srv/mediassist.db", cfg.Database.Path)
	assert.True(t, cfg.Serve.Watch)
	assert.Equal(t, "debug", cfg.Log.Level)

	store := cfg.ArtifactStore()
	assert.Equal(t, filepath.Join("/srv/models", "X_train_columns.json"), store.ColumnsPath())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MEDIASSIST_MODEL_DIR", "/tmp/models")
	t.Setenv("MEDIASSIST_DB_PATH", "/tmp/history.db")
	t.Setenv("MEDIASSIST_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/models", cfg.Model.Dir)
	assert.Equal(t, "/tmp/history.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "model: [unclosed"},
		{name: "zero estimators", content: "training:\n  forest:\n    n_estimators: -1\n"},
		{name: "same file names", content: "model:\n  model_file: a.json\n  columns_file: a.json\n"},
		{name: "negative cache", content: "serve:\n  cache_size: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
