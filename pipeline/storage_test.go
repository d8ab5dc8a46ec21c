package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/ml"
)

func TestArtifactStoreSave(t *testing.T) {
	store := ArtifactStore{
		Dir:         filepath.Join(t.TempDir(), "Model"),
		ModelFile:   "model.json",
		ColumnsFile: "columns.json",
	}
	assert.False(t, store.Exists())

	schema, err := ml.NewFeatureSchema([]string{"itching", "fever"})
	require.NoError(t, err)
	model := ml.NewRandomForest(ml.ForestOptions{NEstimators: 3})
	require.NoError(t, model.Fit([][]float64{{1, 0}, {0, 1}}, []string{"Flu", "Malaria"}))

	require.NoError(t, store.Save(schema, model))
	assert.True(t, store.Exists())

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must be renamed away")
}

func TestArtifactStoreSaveRejectsMismatch(t *testing.T) {
	store := ArtifactStore{Dir: t.TempDir(), ModelFile: "model.json", ColumnsFile: "columns.json"}
	schema, err := ml.NewFeatureSchema([]string{"itching", "fever", "cough"})
	require.NoError(t, err)
	model := ml.NewRandomForest(ml.ForestOptions{NEstimators: 3})
	require.NoError(t, model.Fit([][]float64{{1, 0}, {0, 1}}, []string{"Flu", "Malaria"}))

	assert.Error(t, store.Save(schema, model))
	assert.False(t, store.Exists())
}

func blockColumnsPath(t *testing.T, store ArtifactStore) {
	t.Helper()
	// a non-empty directory cannot be replaced by rename
	require.NoError(t, os.MkdirAll(filepath.Join(store.ColumnsPath(), "keep"), 0o755))
}

func TestArtifactStoreSaveRestoresModelWhenColumnsPublishFails(t *testing.T) {
	tests := []struct {
		name     string
		oldModel bool
	}{
		{name: "previous model restored", oldModel: true},
		{name: "new model removed", oldModel: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := ArtifactStore{Dir: t.TempDir(), ModelFile: "model.json", ColumnsFile: "columns.json"}
			if tt.oldModel {
				require.NoError(t, os.WriteFile(store.ModelPath(), []byte("old-model"), 0o644))
			}
			blockColumnsPath(t, store)

			schema, err := ml.NewFeatureSchema([]string{"itching", "fever"})
			require.NoError(t, err)
			model := ml.NewRandomForest(ml.ForestOptions{NEstimators: 3})
			require.NoError(t, model.Fit([][]float64{{1, 0}, {0, 1}}, []string{"Flu", "Malaria"}))

			err = store.Save(schema, model)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "publish columns")

			data, readErr := os.ReadFile(store.ModelPath())
			if tt.oldModel {
				require.NoError(t, readErr)
				assert.Equal(t, "old-model", string(data))
			} else {
				assert.ErrorIs(t, readErr, os.ErrNotExist)
			}

			entries, err := os.ReadDir(store.Dir)
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			want := []string{"columns.json"}
			if tt.oldModel {
				want = []string{"columns.json", "model.json"}
			}
			assert.Equal(t, want, names, "no temp or backup files left behind")
		})
	}
}

func TestArtifactStoreSaveReplacesPreviousPair(t *testing.T) {
	store := ArtifactStore{Dir: t.TempDir(), ModelFile: "model.json", ColumnsFile: "columns.json"}
	require.NoError(t, os.WriteFile(store.ModelPath(), []byte("old-model"), 0o644))
	require.NoError(t, os.WriteFile(store.ColumnsPath(), []byte(`["old"]`), 0o644))

	schema, err := ml.NewFeatureSchema([]string{"itching", "fever"})
	require.NoError(t, err)
	model := ml.NewRandomForest(ml.ForestOptions{NEstimators: 3})
	require.NoError(t, model.Fit([][]float64{{1, 0}, {0, 1}}, []string{"Flu", "Malaria"}))
	require.NoError(t, store.Save(schema, model))

	loaded, err := ml.LoadFeatureSchema(store.ColumnsPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"itching", "fever"}, loaded.Names())
	_, err = ml.LoadModel(store.ModelPath())
	require.NoError(t, err)

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "backup must be removed after a successful save")
}
