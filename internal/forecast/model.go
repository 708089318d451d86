package forecast

import (
	"math"
	"math/rand"
	"sort"
)

// randomSeed fixes the bootstrap sampling so identical inputs always produce
// identical forecasts.
const randomSeed = 42

// regressor is the minimal fit/predict contract shared by the tree ensembles.
type regressor interface {
	Fit(X [][]float64, y []float64)
	Predict(row []float64) float64
}

// --- Regression tree ---

// treeNode is one node of a CART-style regression tree.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// regressionTree is a greedy least-squares regression tree with a depth cap.
type regressionTree struct {
	maxDepth int
	root     *treeNode
}

func (t *regressionTree) Fit(X [][]float64, y []float64) {
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	t.root = buildNode(X, y, idx, 0, t.maxDepth)
}

func (t *regressionTree) Predict(row []float64) float64 {
	node := t.root
	for node != nil && !node.leaf {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	if node == nil {
		return 0
	}
	return node.value
}

// buildNode grows the tree recursively. A node becomes a leaf when it reaches
// the depth cap, holds fewer than two samples, or no split reduces the sum of
// squared errors.
func buildNode(X [][]float64, y []float64, idx []int, depth, maxDepth int) *treeNode {
	if len(idx) == 0 {
		return &treeNode{leaf: true, value: 0}
	}

	mean := meanAt(y, idx)
	if depth >= maxDepth || len(idx) < 2 {
		return &treeNode{leaf: true, value: mean}
	}

	bestSSE := sseAt(y, idx, mean)
	bestFeature, bestThreshold := -1, 0.0
	var bestLeft, bestRight []int

	numFeat := len(X[idx[0]])
	for f := 0; f < numFeat; f++ {
		vals := make([]float64, 0, len(idx))
		for _, i := range idx {
			vals = append(vals, X[i][f])
		}
		sort.Float64s(vals)

		for v := 1; v < len(vals); v++ {
			if vals[v] == vals[v-1] {
				continue
			}
			threshold := (vals[v] + vals[v-1]) / 2

			var left, right []int
			for _, i := range idx {
				if X[i][f] <= threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}

			sse := sseAt(y, left, meanAt(y, left)) + sseAt(y, right, meanAt(y, right))
			if sse < bestSSE {
				bestSSE = sse
				bestFeature = f
				bestThreshold = threshold
				bestLeft, bestRight = left, right
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{leaf: true, value: mean}
	}

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      buildNode(X, y, bestLeft, depth+1, maxDepth),
		right:     buildNode(X, y, bestRight, depth+1, maxDepth),
	}
}

func meanAt(y []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sseAt(y []float64, idx []int, mean float64) float64 {
	sum := 0.0
	for _, i := range idx {
		d := y[i] - mean
		sum += d * d
	}
	return sum
}

// --- Averaging ensemble ---

// forestRegressor is a bagged ensemble of regression trees, each fit on a
// bootstrap sample drawn from a seeded source. Predictions are the mean of
// the per-tree outputs.
type forestRegressor struct {
	numTrees int
	maxDepth int
	trees    []*regressionTree
}

func newForestRegressor(numTrees, maxDepth int) *forestRegressor {
	return &forestRegressor{numTrees: numTrees, maxDepth: maxDepth}
}

func (f *forestRegressor) Fit(X [][]float64, y []float64) {
	rng := rand.New(rand.NewSource(randomSeed))
	n := len(y)
	f.trees = make([]*regressionTree, f.numTrees)

	for t := 0; t < f.numTrees; t++ {
		sampleX := make([][]float64, n)
		sampleY := make([]float64, n)
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			sampleX[i] = X[j]
			sampleY[i] = y[j]
		}
		tree := &regressionTree{maxDepth: f.maxDepth}
		tree.Fit(sampleX, sampleY)
		f.trees[t] = tree
	}
}

func (f *forestRegressor) Predict(row []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += t.Predict(row)
	}
	return sum / float64(len(f.trees))
}

// --- Boosted ensemble ---

// boostedRegressor is a least-squares gradient boosting machine over shallow
// regression trees. Each stage fits the residuals of the running prediction
// and contributes learningRate times its output.
type boostedRegressor struct {
	stages       int
	learningRate float64
	maxDepth     int

	base  float64
	trees []*regressionTree
}

func newBoostedRegressor(stages int, learningRate float64, maxDepth int) *boostedRegressor {
	return &boostedRegressor{stages: stages, learningRate: learningRate, maxDepth: maxDepth}
}

func (b *boostedRegressor) Fit(X [][]float64, y []float64) {
	n := len(y)

	b.base = 0
	for _, v := range y {
		b.base += v
	}
	b.base /= float64(n)

	current := make([]float64, n)
	for i := range current {
		current[i] = b.base
	}

	residuals := make([]float64, n)
	b.trees = make([]*regressionTree, 0, b.stages)

	for s := 0; s < b.stages; s++ {
		for i := 0; i < n; i++ {
			residuals[i] = y[i] - current[i]
		}

		tree := &regressionTree{maxDepth: b.maxDepth}
		tree.Fit(X, residuals)
		b.trees = append(b.trees, tree)

		for i := 0; i < n; i++ {
			current[i] += b.learningRate * tree.Predict(X[i])
		}
	}
}

func (b *boostedRegressor) Predict(row []float64) float64 {
	pred := b.base
	for _, t := range b.trees {
		pred += b.learningRate * t.Predict(row)
	}
	return pred
}

// --- Scoring ---

// r2Score computes the coefficient of determination of predictions against
// observed values. A constant target series scores 1 only on a perfect fit.
func r2Score(yTrue, yPred []float64) float64 {
	mean := 0.0
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		dRes := yTrue[i] - yPred[i]
		dTot := yTrue[i] - mean
		ssRes += dRes * dRes
		ssTot += dTot * dTot
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// clamp limits v to the [lo, hi] interval.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
