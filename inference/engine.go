// Package inference turns a symptom set into a ranked disease prediction
// using a trained classifier and the feature schema it was trained on.
package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"mediassist/ml"
)

var (
	ErrArtifactNotFound = errors.New("Model or columns file not found")
	ErrSchemaMismatch   = errors.New("model and columns file do not match")
)

// Predictor is satisfied by Engine and by wrappers around it.
type Predictor interface {
	Predict(symptoms []string) (*Prediction, error)
}

type Probability struct {
	Label string
	Value float64
}

// Probabilities marshals as a JSON object whose keys keep slice order.
type Probabilities []Probability

func (p Probabilities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Probabilities) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("probabilities: expected object, got %v", tok)
	}
	out := Probabilities{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("probabilities: expected key, got %v", tok)
		}
		var value float64
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Probability{Label: label, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// Get returns the percentage for label.
func (p Probabilities) Get(label string) (float64, bool) {
	for _, entry := range p {
		if entry.Label == label {
			return entry.Value, true
		}
	}
	return 0, false
}

type Prediction struct {
	Predicted     string        `json:"predicted"`
	Confidence    float64       `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	schema     *ml.FeatureSchema
	model      ml.Classifier
	classes    []string
	classIndex map[string]int
}

func NewEngine(schema *ml.FeatureSchema, model ml.Classifier) (*Engine, error) {
	if schema == nil || model == nil {
		return nil, ErrArtifactNotFound
	}
	if schema.Len() != model.NumFeatures() {
		return nil, fmt.Errorf("%w: %d columns, model expects %d features",
			ErrSchemaMismatch, schema.Len(), model.NumFeatures())
	}
	classes := model.Classes()
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: model has no classes", ErrSchemaMismatch)
	}
	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	return &Engine{
		schema:     schema,
		model:      model,
		classes:    classes,
		classIndex: index,
	}, nil
}

// LoadEngine reads the columns and model files. Either one missing is
// reported as ErrArtifactNotFound.
func LoadEngine(modelPath, columnsPath string) (*Engine, error) {
	for _, path := range []string{modelPath, columnsPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
		}
	}
	schema, err := ml.LoadFeatureSchema(columnsPath)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	model, err := ml.LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return NewEngine(schema, model)
}

func (e *Engine) Schema() *ml.FeatureSchema {
	return e.schema
}

func (e *Engine) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *Engine) Predict(symptoms []string) (*Prediction, error) {
	vector := e.schema.Vectorize(symptoms)

	label, err := e.model.Classify(vector)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	labelIdx, ok := e.classIndex[label]
	if !ok {
		return nil, fmt.Errorf("classifier returned unknown label %q", label)
	}
	dist, err := e.model.ClassProbabilities(vector)
	if err != nil {
		return nil, fmt.Errorf("class probabilities: %w", err)
	}
	if len(dist) != len(e.classes) {
		return nil, fmt.Errorf("classifier returned %d probabilities for %d classes", len(dist), len(e.classes))
	}

	probabilities := make(Probabilities, len(dist))
	for i, p := range dist {
		probabilities[i] = Probability{Label: e.classes[i], Value: p * 100}
	}
	// Equal values keep training label order.
	sort.SliceStable(probabilities, func(a, b int) bool {
		return probabilities[a].Value > probabilities[b].Value
	})

	return &Prediction{
		Predicted:     label,
		Confidence:    dist[labelIdx] * 100,
		Probabilities: probabilities,
	}, nil
}
