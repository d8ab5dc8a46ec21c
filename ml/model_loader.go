package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadModel reads the model type recorded in the file and decodes it.
func LoadModel(path string) (Classifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, fmt.Errorf("decode model header: %w", err)
	}
	switch header.Type {
	case ModelTypeRandomForest:
		model := &RandomForest{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", header.Type)
	}
}

func NewModel(modelType string, opts ForestOptions) (TrainableClassifier, error) {
	switch modelType {
	case "", ModelTypeRandomForest:
		return NewRandomForest(opts), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
