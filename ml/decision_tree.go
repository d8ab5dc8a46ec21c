package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of features sampled per split; 0 means all.
	MaxFeatures int

	nodes       []TreeNode
	numClasses  int
	numFeatures int
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Distribution []float64 `json:"distribution,omitempty"`
}

// Train fits the tree on rows selected by samples (indices into features,
// repeats allowed). A nil samples slice uses every row once. rng drives
// feature sampling; nil disables it.
func (dt *DecisionTree) Train(features [][]float64, labels []int, samples []int, numClasses int, rng *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if numClasses <= 0 {
		return errors.New("numClasses must be positive")
	}
	if samples == nil {
		samples = make([]int, len(features))
		for i := range samples {
			samples[i] = i
		}
	}
	if len(samples) == 0 {
		return errors.New("no samples selected")
	}

	dt.numClasses = numClasses
	dt.numFeatures = len(features[0])
	dt.nodes = nil
	b := &treeBuilder{
		tree:     dt,
		features: features,
		labels:   labels,
		rng:      rng,
	}
	b.build(samples, 0)
	return nil
}

// PredictProba walks to a leaf and returns its class distribution.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Distribution, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	labels   []int
	rng      *rand.Rand
}

// build appends the subtree for samples to tree.nodes and returns its root index.
func (b *treeBuilder) build(samples []int, depth int) int {
	dt := b.tree
	counts := b.classCounts(samples)
	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: argmaxInt(counts),
		IsLeaf:     true,
	})

	stop := isPure(counts) ||
		(dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		len(samples) < max(dt.MinSamplesSplit, 2)
	if stop {
		dt.nodes[idx].Distribution = normalizeCounts(counts)
		return idx
	}

	feature, threshold, ok := b.findBestSplit(samples, counts)
	if !ok {
		dt.nodes[idx].Distribution = normalizeCounts(counts)
		return idx
	}

	left := make([]int, 0, len(samples))
	right := make([]int, 0, len(samples))
	for _, s := range samples {
		if b.features[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)
	dt.nodes[idx].FeatureIdx = feature
	dt.nodes[idx].Threshold = threshold
	dt.nodes[idx].LeftChild = leftIdx
	dt.nodes[idx].RightChild = rightIdx
	dt.nodes[idx].IsLeaf = false
	return idx
}

func (b *treeBuilder) candidateFeatures() []int {
	n := b.tree.numFeatures
	if b.rng == nil || b.tree.MaxFeatures <= 0 || b.tree.MaxFeatures >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(n)
}

// findBestSplit scans features in candidate order. The first MaxFeatures
// candidates are always evaluated; later ones only while no valid split
// has been found.
func (b *treeBuilder) findBestSplit(samples []int, parent []int) (int, float64, bool) {
	candidates := b.candidateFeatures()
	limit := len(candidates)
	if b.tree.MaxFeatures > 0 && b.tree.MaxFeatures < limit {
		limit = b.tree.MaxFeatures
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(samples))
	left := make([]int, len(parent))
	for i, feature := range candidates {
		if i >= limit && bestFeature != -1 {
			break
		}
		copy(sorted, samples)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.features[sorted[a]][feature] < b.features[sorted[c]][feature]
		})
		for k := range left {
			left[k] = 0
		}
		total := len(sorted)
		for pos := 0; pos < total-1; pos++ {
			left[b.labels[sorted[pos]]]++
			current := b.features[sorted[pos]][feature]
			next := b.features[sorted[pos+1]][feature]
			if current == next {
				continue
			}
			impurity := weightedGini(left, parent, pos+1, total)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = (current + next) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) classCounts(samples []int) []int {
	counts := make([]int, b.tree.numClasses)
	for _, s := range samples {
		counts[b.labels[s]]++
	}
	return counts
}

func weightedGini(left, parent []int, leftTotal, total int) float64 {
	rightTotal := total - leftTotal
	leftImpurity := 1.0
	rightImpurity := 1.0
	for class, count := range parent {
		l := float64(left[class])
		r := float64(count - left[class])
		leftImpurity -= (l / float64(leftTotal)) * (l / float64(leftTotal))
		rightImpurity -= (r / float64(rightTotal)) * (r / float64(rightTotal))
	}
	return (float64(leftTotal)*leftImpurity + float64(rightTotal)*rightImpurity) / float64(total)
}

func normalizeCounts(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	dist := make([]float64, len(counts))
	if total == 0 {
		return dist
	}
	for i, c := range counts {
		dist[i] = float64(c) / float64(total)
	}
	return dist
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func argmaxInt(values []int) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
