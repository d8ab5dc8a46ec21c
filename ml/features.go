package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrInvalidSchema = errors.New("invalid feature schema")

// FeatureSchema is the ordered list of symptom names a model was trained on.
// A symptom's position is its feature index and never changes after training.
type FeatureSchema struct {
	names []string
	index map[string]int
}

func NewFeatureSchema(names []string) (*FeatureSchema, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}
	index := make(map[string]int, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: empty column name at %d", ErrInvalidSchema, i)
		}
		if prev, ok := index[name]; ok {
			return nil, fmt.Errorf("%w: duplicate column %q at %d and %d", ErrInvalidSchema, name, prev, i)
		}
		index[name] = i
	}
	return &FeatureSchema{
		names: append([]string(nil), names...),
		index: index,
	}, nil
}

func (s *FeatureSchema) Len() int {
	return len(s.names)
}

func (s *FeatureSchema) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *FeatureSchema) Index(symptom string) (int, bool) {
	idx, ok := s.index[symptom]
	return idx, ok
}

// Vectorize encodes a symptom set as a dense 0/1 vector over the schema.
// Names the schema does not know are dropped.
func (s *FeatureSchema) Vectorize(symptoms []string) []float64 {
	vector := make([]float64, len(s.names))
	for _, symptom := range symptoms {
		if idx, ok := s.Index(symptom); ok {
			vector[idx] = 1
		}
	}
	return vector
}

func (s *FeatureSchema) Save(path string) error {
	payload, err := json.Marshal(s.names)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func LoadFeatureSchema(path string) (*FeatureSchema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return NewFeatureSchema(names)
}
