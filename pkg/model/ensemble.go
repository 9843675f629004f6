package model

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// RandomForest averages Trees regression trees, each grown to MaxDepth on a
// bootstrap sample of the rows drawn from Seed. Every tree considers every
// feature at each split.
type RandomForest struct {
	Trees    int
	MaxDepth int
	Seed     int64

	trees []*regressionTree
}

// NewRandomForest returns a forest of 50 trees of depth at most 10.
func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{Trees: 50, MaxDepth: 10, Seed: seed}
}

func (m *RandomForest) Name() string { return "Random Forest" }

func (m *RandomForest) Fit(x *mat.Dense, y []float64) error {
	if m.Trees < 1 || m.MaxDepth < 1 {
		return fmt.Errorf("random forest needs at least one tree of depth 1 (got %d trees, depth %d)", m.Trees, m.MaxDepth)
	}
	rows, err := checkDesign(x, y)
	if err != nil {
		return err
	}
	data := binColumns(x)

	// Tree t draws from its own source, so the forest does not depend on
	// the order the workers finish in.
	trees := make([]*regressionTree, m.Trees)
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for t := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(t int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(m.Seed + int64(t)))
			sample := make([]int, rows)
			for i := range sample {
				sample[i] = rng.Intn(rows)
			}
			trees[t] = growTree(data, y, sample, m.MaxDepth)
		}(t)
	}
	wg.Wait()

	m.trees = trees
	return nil
}

func (m *RandomForest) Predict(x *mat.Dense) []float64 {
	return predictRows(x, m.trees != nil, func(row []float64) float64 {
		var s float64
		for _, t := range m.trees {
			s += t.predict(row)
		}
		return s / float64(len(m.trees))
	})
}

// GradientBoosting fits Trees regression trees of depth MaxDepth in
// sequence, each on the residuals of the ones before, starting from the
// target mean. Each tree's contribution is shrunk by LearningRate.
type GradientBoosting struct {
	Trees        int
	MaxDepth     int
	LearningRate float64

	init  float64
	trees []*regressionTree
}

// NewGradientBoosting returns 100 stages of depth 5 with a learning rate of 0.1.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{Trees: 100, MaxDepth: 5, LearningRate: 0.1}
}

func (m *GradientBoosting) Name() string { return "Gradient Boosting" }

func (m *GradientBoosting) Fit(x *mat.Dense, y []float64) error {
	if m.Trees < 1 || m.MaxDepth < 1 {
		return fmt.Errorf("gradient boosting needs at least one tree of depth 1 (got %d trees, depth %d)", m.Trees, m.MaxDepth)
	}
	if m.LearningRate <= 0 {
		return fmt.Errorf("gradient boosting learning rate must be positive (got %g)", m.LearningRate)
	}
	rows, err := checkDesign(x, y)
	if err != nil {
		return err
	}
	data := binColumns(x)

	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(rows)

	fitted := make([]float64, rows)
	residual := make([]float64, rows)
	for i := range fitted {
		fitted[i] = mean
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}

	trees := make([]*regressionTree, 0, m.Trees)
	for n := 0; n < m.Trees; n++ {
		for i := range residual {
			residual[i] = y[i] - fitted[i]
		}
		t := growTree(data, residual, idx, m.MaxDepth)
		for i := range fitted {
			fitted[i] += m.LearningRate * t.predictBinned(data, i)
		}
		trees = append(trees, t)
	}

	m.init = mean
	m.trees = trees
	return nil
}

func (m *GradientBoosting) Predict(x *mat.Dense) []float64 {
	return predictRows(x, m.trees != nil, func(row []float64) float64 {
		p := m.init
		for _, t := range m.trees {
			p += m.LearningRate * t.predict(row)
		}
		return p
	})
}
