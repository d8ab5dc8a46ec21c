package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

const ModelTypeRandomForest = "random_forest"

type ForestOptions struct {
	NEstimators     int   `yaml:"n_estimators" json:"n_estimators"`
	MaxDepth        int   `yaml:"max_depth" json:"max_depth"`
	MinSamplesSplit int   `yaml:"min_samples_split" json:"min_samples_split"`
	MaxFeatures     int   `yaml:"max_features" json:"max_features"`
	Seed            int64 `yaml:"seed" json:"seed"`
	Workers         int   `yaml:"workers" json:"-"`
}

func DefaultForestOptions() ForestOptions {
	return ForestOptions{
		NEstimators:     200,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// RandomForest averages the leaf distributions of bootstrapped gini trees.
type RandomForest struct {
	opts        ForestOptions
	classes     []string
	numFeatures int
	trees       []*DecisionTree
}

func NewRandomForest(opts ForestOptions) *RandomForest {
	if opts.NEstimators <= 0 {
		opts.NEstimators = DefaultForestOptions().NEstimators
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	return &RandomForest{opts: opts}
}

func (rf *RandomForest) ModelType() string {
	return ModelTypeRandomForest
}

func (rf *RandomForest) Fit(features [][]float64, labels []string) error {
	return rf.FitContext(context.Background(), features, labels)
}

// FitContext trains every tree in parallel. Tree i draws its bootstrap and
// feature samples from Seed+i, so the result does not depend on scheduling.
func (rf *RandomForest) FitContext(ctx context.Context, features [][]float64, labels []string) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	numFeatures := len(features[0])
	for i, row := range features {
		if len(row) != numFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), numFeatures)
		}
	}

	classes, encoded := encodeLabels(labels)
	maxFeatures := rf.opts.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Sqrt(float64(numFeatures)))
	}
	maxFeatures = max(1, min(maxFeatures, numFeatures))

	workers := rf.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*DecisionTree, rf.opts.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(rf.opts.Seed + int64(i)))
			samples := make([]int, len(features))
			for k := range samples {
				samples[k] = rng.Intn(len(features))
			}
			tree := &DecisionTree{
				MaxDepth:        rf.opts.MaxDepth,
				MinSamplesSplit: rf.opts.MinSamplesSplit,
				MaxFeatures:     maxFeatures,
			}
			if err := tree.Train(features, encoded, samples, len(classes), rng); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.classes = classes
	rf.numFeatures = numFeatures
	rf.trees = trees
	return nil
}

func (rf *RandomForest) Classes() []string {
	return append([]string(nil), rf.classes...)
}

func (rf *RandomForest) NumFeatures() int {
	return rf.numFeatures
}

// ClassProbabilities returns the mean tree distribution, aligned with Classes.
func (rf *RandomForest) ClassProbabilities(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != rf.numFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", rf.numFeatures, len(features))
	}
	proba := make([]float64, len(rf.classes))
	for i, tree := range rf.trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		if len(dist) != len(proba) {
			return nil, fmt.Errorf("tree %d: distribution has %d classes, expected %d", i, len(dist), len(proba))
		}
		floats.Add(proba, dist)
	}
	floats.Scale(1/float64(len(rf.trees)), proba)
	return proba, nil
}

// Classify returns the most probable class; ties go to the earlier class.
func (rf *RandomForest) Classify(features []float64) (string, error) {
	proba, err := rf.ClassProbabilities(features)
	if err != nil {
		return "", err
	}
	return rf.classes[floats.MaxIdx(proba)], nil
}

type forestFile struct {
	Type        string        `json:"type"`
	Classes     []string      `json:"classes"`
	NumFeatures int           `json:"num_features"`
	Options     ForestOptions `json:"options"`
	Trees       []treeFile    `json:"trees"`
}

type treeFile struct {
	Nodes []TreeNode `json:"nodes"`
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return errors.New("model not trained")
	}
	file := forestFile{
		Type:        ModelTypeRandomForest,
		Classes:     rf.classes,
		NumFeatures: rf.numFeatures,
		Options:     rf.opts,
		Trees:       make([]treeFile, len(rf.trees)),
	}
	for i, tree := range rf.trees {
		file.Trees[i] = treeFile{Nodes: tree.nodes}
	}
	payload, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (rf *RandomForest) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file forestFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if file.Type != ModelTypeRandomForest {
		return fmt.Errorf("unexpected model type %q", file.Type)
	}
	if len(file.Classes) == 0 || len(file.Trees) == 0 {
		return errors.New("model file has no classes or trees")
	}
	trees := make([]*DecisionTree, len(file.Trees))
	for i, t := range file.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", i)
		}
		trees[i] = &DecisionTree{
			MaxDepth:        file.Options.MaxDepth,
			MinSamplesSplit: file.Options.MinSamplesSplit,
			nodes:           t.Nodes,
			numClasses:      len(file.Classes),
			numFeatures:     file.NumFeatures,
		}
	}
	rf.opts = file.Options
	rf.classes = file.Classes
	rf.numFeatures = file.NumFeatures
	rf.trees = trees
	return nil
}

// encodeLabels maps labels to indices into their sorted unique set.
func encodeLabels(labels []string) ([]string, []int) {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		seen[label] = struct{}{}
	}
	classes := make([]string, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}
	encoded := make([]int, len(labels))
	for i, label := range labels {
		encoded[i] = index[label]
	}
	return classes, encoded
}
