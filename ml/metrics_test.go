package ml

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluationReport(t *testing.T) {
	classes := []string{"a", "b"}
	actual := []string{"a", "a", "b", "b"}
	predicted := []string{"a", "b", "b", "b"}

	report := NewEvaluationReport(classes, actual, predicted)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-9)
	require.Len(t, report.PerClass, 2)

	a := report.PerClass[0]
	assert.Equal(t, "a", a.Label)
	assert.InDelta(t, 1.0, a.Precision, 1e-9)
	assert.InDelta(t, 0.5, a.Recall, 1e-9)
	assert.Equal(t, 2, a.Support)

	b := report.PerClass[1]
	assert.InDelta(t, 2.0/3.0, b.Precision, 1e-9)
	assert.InDelta(t, 1.0, b.Recall, 1e-9)

	assert.InDelta(t, (1.0+2.0/3.0)/2, report.MacroAvg.Precision, 1e-9)
	assert.Equal(t, [][]int{{1, 1}, {0, 2}}, report.ConfusionMatrix)
}

func TestEvaluationReportUnseenLabel(t *testing.T) {
	report := NewEvaluationReport([]string{"a"}, []string{"a", "z"}, []string{"a", "a"})
	require.Len(t, report.PerClass, 2)
	assert.Equal(t, "z", report.PerClass[1].Label)
	assert.Equal(t, 0.0, report.PerClass[1].Recall)
	assert.Equal(t, [][]int{{1}}, report.ConfusionMatrix)
}

func TestEvaluate(t *testing.T) {
	rf := trainedForest(t)
	features, labels := symptomFixture()
	report, err := Evaluate(rf, features, labels)
	require.NoError(t, err)
	assert.Equal(t, len(labels), report.Samples)
	assert.Greater(t, report.Accuracy, 0.5)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf))
	assert.Contains(t, buf.String(), "weighted avg")
	buf.Reset()
	require.NoError(t, report.WriteConfusionMatrix(&buf))
	assert.Contains(t, buf.String(), "Migraine: Migraine=")
}

func TestEvaluateEmpty(t *testing.T) {
	rf := trainedForest(t)
	_, err := Evaluate(rf, nil, nil)
	assert.Error(t, err)
}
