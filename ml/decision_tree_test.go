package ml

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
)

// predictLabel returns the majority class of the leaf reached by row.
func predictLabel(t *testing.T, model *DecisionTree, row []float64) (int, float64) {
	t.Helper()
	dist, err := model.PredictProba(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label := floats.MaxIdx(dist)
	return label, dist[label]
}

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := &DecisionTree{MaxDepth: 2}
	if err := model.Train(features, labels, nil, 3, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, confidence := predictLabel(t, model, []float64{0.15, 0.15})
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	if confidence != 1 {
		t.Fatalf("expected confidence 1, got %v", confidence)
	}
}

func TestDecisionTreeDeepSplits(t *testing.T) {
	// XOR over two binary features needs depth 2 with absolute child indices.
	features := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	labels := []int{0, 1, 1, 0}

	model := &DecisionTree{}
	if err := model.Train(features, labels, nil, 2, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		label, _ := predictLabel(t, model, row)
		if label != labels[i] {
			t.Errorf("row %v: expected %d, got %d", row, labels[i], label)
		}
	}
}

func TestDecisionTreeLeafDistribution(t *testing.T) {
	features := [][]float64{{0}, {0}, {0}, {1}}
	labels := []int{0, 0, 1, 1}

	model := &DecisionTree{MaxDepth: 1}
	if err := model.Train(features, labels, nil, 2, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dist, err := model.PredictProba([]float64{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dist) != 2 || dist[0] < 0.66 || dist[0] > 0.67 {
		t.Fatalf("unexpected distribution %v", dist)
	}
}

func TestDecisionTreeBootstrapSamples(t *testing.T) {
	features := [][]float64{{0}, {1}}
	labels := []int{0, 1}

	model := &DecisionTree{MaxFeatures: 1}
	rng := rand.New(rand.NewSource(1))
	if err := model.Train(features, labels, []int{1, 1, 1}, 2, rng); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, _ := predictLabel(t, model, []float64{0})
	if label != 1 {
		t.Fatalf("only class 1 was sampled, got %d", label)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := &DecisionTree{}
	if _, err := model.PredictProba([]float64{1}); err == nil {
		t.Error("expected error for untrained tree")
	}
	if err := model.Train(nil, nil, nil, 2, nil); err == nil {
		t.Error("expected error for empty input")
	}
	if err := model.Train([][]float64{{1}}, []int{0, 1}, nil, 2, nil); err == nil {
		t.Error("expected error for size mismatch")
	}
}
