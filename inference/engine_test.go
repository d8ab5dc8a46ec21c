package inference

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediassist/ml"
)

// stubModel returns a fixed distribution and records the last vector.
type stubModel struct {
	classes  []string
	proba    []float64
	label    string
	features int
	err      error
	last     []float64
}

func (s *stubModel) ModelType() string { return "stub" }
func (s *stubModel) Classes() []string { return s.classes }
func (s *stubModel) NumFeatures() int { return s.features }
func (s *stubModel) Classify(v []float64) (string, error) {
	s.last = v
	return s.label, s.err
}
func (s *stubModel) ClassProbabilities(v []float64) ([]float64, error) {
	return s.proba, s.err
}

func testSchema(t *testing.T) *ml.FeatureSchema {
	t.Helper()
	schema, err := ml.NewFeatureSchema([]string{"itching", "skin_rash", "fever"})
	require.NoError(t, err)
	return schema
}

func TestEnginePredictArithmetic(t *testing.T) {
	model := &stubModel{
		classes:  []string{"Allergy", "Fungal infection", "Malaria"},
		proba:    []float64{0.2, 0.5, 0.3},
		label:    "Fungal infection",
		features: 3,
	}
	engine, err := NewEngine(testSchema(t), model)
	require.NoError(t, err)

	p, err := engine.Predict([]string{"fever", "unknown_symptom"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, model.last)
	assert.Equal(t, "Fungal infection", p.Predicted)
	assert.Equal(t, 50.0, p.Confidence)

	labels := make([]string, len(p.Probabilities))
	for i, entry := range p.Probabilities {
		labels[i] = entry.Label
	}
	assert.Equal(t, []string{"Fungal infection", "Malaria", "Allergy"}, labels)

	got, ok := p.Probabilities.Get(p.Predicted)
	require.True(t, ok)
	assert.Equal(t, p.Confidence, got)
}

func TestEnginePredictTiesKeepClassOrder(t *testing.T) {
	model := &stubModel{
		classes:  []string{"A", "B", "C", "D"},
		proba:    []float64{0.1, 0.3, 0.3, 0.3},
		label:    "B",
		features: 3,
	}
	engine, err := NewEngine(testSchema(t), model)
	require.NoError(t, err)

	p, err := engine.Predict(nil)
	require.NoError(t, err)
	order := []string{p.Probabilities[0].Label, p.Probabilities[1].Label, p.Probabilities[2].Label, p.Probabilities[3].Label}
	assert.Equal(t, []string{"B", "C", "D", "A"}, order)
}

func TestEnginePredictModelErrors(t *testing.T) {
	engine, err := NewEngine(testSchema(t), &stubModel{
		classes: []string{"A"}, proba: []float64{1}, label: "A", features: 3, err: errors.New("boom"),
	})
	require.NoError(t, err)
	_, err = engine.Predict([]string{"fever"})
	assert.Error(t, err)

	engine, err = NewEngine(testSchema(t), &stubModel{
		classes: []string{"A"}, proba: []float64{1}, label: "Z", features: 3,
	})
	require.NoError(t, err)
	_, err = engine.Predict([]string{"fever"})
	assert.Error(t, err)
}

func TestNewEngineRequiresArtifacts(t *testing.T) {
	_, err := NewEngine(nil, &stubModel{features: 3})
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = NewEngine(testSchema(t), nil)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	_, err = NewEngine(testSchema(t), &stubModel{classes: []string{"A"}, features: 4})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func writeArtifacts(t *testing.T, dir string) (modelPath, columnsPath string) {
	t.Helper()
	schema := testSchema(t)
	model := ml.NewRandomForest(ml.ForestOptions{NEstimators: 15, Seed: 42})
	require.NoError(t, model.Fit(
		[][]float64{{1, 1, 0}, {1, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 0, 1}},
		[]string{"Fungal infection", "Fungal infection", "Malaria", "Malaria", "Malaria"},
	))
	modelPath = filepath.Join(dir, "random_forest_model.json")
	columnsPath = filepath.Join(dir, "X_train_columns.json")
	require.NoError(t, model.Save(modelPath))
	require.NoError(t, schema.Save(columnsPath))
	return modelPath, columnsPath
}

func TestLoadEngineAndPredictProperties(t *testing.T) {
	modelPath, columnsPath := writeArtifacts(t, t.TempDir())
	engine, err := LoadEngine(modelPath, columnsPath)
	require.NoError(t, err)

	requests := [][]string{
		{"itching", "skin_rash"},
		{"fever"},
		{},
		{"not_a_symptom"},
		{"fever", "fever", "itching"},
	}
	for _, symptoms := range requests {
		p, err := engine.Predict(symptoms)
		require.NoError(t, err)

		sum := 0.0
		for i, entry := range p.Probabilities {
			assert.GreaterOrEqual(t, entry.Value, 0.0)
			if i > 0 {
				assert.LessOrEqual(t, entry.Value, p.Probabilities[i-1].Value)
			}
			sum += entry.Value
		}
		assert.InDelta(t, 100.0, sum, 0.01)
		conf, ok := p.Probabilities.Get(p.Predicted)
		require.True(t, ok)
		assert.Equal(t, conf, p.Confidence)

		again, err := engine.Predict(symptoms)
		require.NoError(t, err)
		first, _ := json.Marshal(p)
		second, _ := json.Marshal(again)
		assert.Equal(t, first, second)
	}
}

func TestLoadEngineMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadEngine(filepath.Join(dir, "model.json"), filepath.Join(dir, "columns.json"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	modelPath, _ := writeArtifacts(t, dir)
	_, err = LoadEngine(modelPath, filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestProbabilitiesJSONOrder(t *testing.T) {
	p := Probabilities{{Label: "Malaria", Value: 75}, {Label: "Allergy", Value: 25}}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `{"Malaria":75,"Allergy":25}`, string(data))

	var decoded Probabilities
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p, decoded)
}
