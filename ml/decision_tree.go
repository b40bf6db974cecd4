package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

const defaultMaxDepth = 3

// DecisionTree is a binary classification tree stored as a flat node slice;
// node 0 is the root. Class labels are returned as float64 by Predict so the
// tree satisfies Model.
type DecisionTree struct {
	nodes    []TreeNode
	features int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	Confidence float64 `json:"confidence,omitempty"`
}

// treeFile is the on-disk form of a DecisionTree.
type treeFile struct {
	FeatureCount int        `json:"feature_count"`
	Nodes        []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) Train(features [][]float64, labels []int, maxDepth int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("samples have no features")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("sample %d has %d features, want %d", i, len(row), width)
		}
	}
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	dt.nodes = buildNode(features, labels, 0, maxDepth)
	dt.features = width
	return nil
}

// NumFeatures is the sample width the tree was trained on.
func (dt *DecisionTree) NumFeatures() int {
	return dt.features
}

// Classify walks the tree for one sample and returns the leaf label with the
// fraction of training samples at that leaf that carried it.
func (dt *DecisionTree) Classify(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, errors.New("model not trained")
	}
	if len(features) != dt.features {
		return 0, 0, fmt.Errorf("sample has %d features, model expects %d", len(features), dt.features)
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return 0, 0, errors.New("invalid tree state: cycle")
}

func (dt *DecisionTree) Predict(samples [][]float64) ([]float64, error) {
	out := make([]float64, len(samples))
	for i, sample := range samples {
		label, _, err := dt.Classify(sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = float64(label)
	}
	return out, nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(treeFile{FeatureCount: dt.features, Nodes: dt.nodes})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a tree written by Save. Split nodes must point forward to
// existing children and split on a feature below feature_count.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return err
	}
	if len(file.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	if file.FeatureCount <= 0 {
		return fmt.Errorf("invalid feature_count %d", file.FeatureCount)
	}
	nodes := file.Nodes
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= file.FeatureCount {
			return fmt.Errorf("node %d splits on feature %d of %d", i, node.FeatureIdx, file.FeatureCount)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	dt.nodes = nodes
	dt.features = file.FeatureCount
	return nil
}

func buildNode(features [][]float64, labels []int, depth int, maxDepth int) []TreeNode {
	label, confidence := majorityLabel(labels)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		IsLeaf:     true,
		Confidence: confidence,
	}}
	if depth >= maxDepth || confidence == 1 {
		return leaf
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return leaf
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf
	}

	leftNodes := buildNode(leftFeatures, leftLabels, depth+1, maxDepth)
	rightNodes := buildNode(rightFeatures, rightLabels, depth+1, maxDepth)

	// children follow the root, indices are absolute within this slice
	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
		Confidence: confidence,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, shift(leftNodes, 1)...)
	nodes = append(nodes, shift(rightNodes, 1+len(leftNodes))...)
	return nodes
}

func shift(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += offset
			nodes[i].RightChild += offset
		}
	}
	return nodes
}

// findBestSplit tries the median of every feature as a threshold and keeps
// the one with the lowest weighted Gini impurity.
func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	column := make([]float64, len(features))
	for f := range features[0] {
		for i, row := range features {
			column[i] = row[f]
		}
		threshold := median(column)

		left, right := map[int]int{}, map[int]int{}
		var nLeft, nRight int
		for i, v := range column {
			if v <= threshold {
				left[labels[i]]++
				nLeft++
			} else {
				right[labels[i]]++
				nRight++
			}
		}
		if nLeft == 0 || nRight == 0 {
			continue
		}
		total := float64(nLeft + nRight)
		impurity := float64(nLeft)/total*gini(left, nLeft) + float64(nRight)/total*gini(right, nRight)
		if impurity < bestImpurity {
			bestFeature, bestThreshold, bestImpurity = f, threshold, impurity
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	var leftFeatures, rightFeatures [][]float64
	var leftLabels, rightLabels []int
	for i, row := range features {
		if row[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, row)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, row)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

// gini computes 1 - Σp² from per-label counts over n samples.
func gini(counts map[int]int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// majorityLabel gives ties to the label that reached the top count first.
func majorityLabel(labels []int) (int, float64) {
	if len(labels) == 0 {
		return 0, 0
	}
	counts := make(map[int]int)
	bestLabel := 0
	bestCount := -1
	for _, label := range labels {
		counts[label]++
		if counts[label] > bestCount {
			bestCount = counts[label]
			bestLabel = label
		}
	}
	return bestLabel, float64(bestCount) / float64(len(labels))
}
