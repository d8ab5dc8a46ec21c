package ml

import "context"

// Classifier is the read-only capability used at inference time.
// ClassProbabilities is aligned with Classes.
type Classifier interface {
	ModelType() string
	Classes() []string
	NumFeatures() int
	Classify(features []float64) (string, error)
	ClassProbabilities(features []float64) ([]float64, error)
}

type TrainableClassifier interface {
	Classifier
	FitContext(ctx context.Context, features [][]float64, labels []string) error
	Save(path string) error
}
