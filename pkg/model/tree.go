package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// maxBins bounds the distinct split points considered per feature. Bin
// indices fit in a uint8.
const maxBins = 255

// binnedMatrix is a design matrix with every column replaced by bin indices.
// Bin b of column j holds the values v with edges[j][b-1] < v <= edges[j][b].
type binnedMatrix struct {
	edges [][]float64
	bins  [][]uint8
}

// binColumns bins each column of x. Columns with few distinct values get one
// bin per value; others are cut at quantiles.
func binColumns(x *mat.Dense) *binnedMatrix {
	rows, cols := x.Dims()
	b := &binnedMatrix{
		edges: make([][]float64, cols),
		bins:  make([][]uint8, cols),
	}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		edges := binEdges(col)
		bins := make([]uint8, rows)
		for i, v := range col {
			bins[i] = uint8(sort.SearchFloat64s(edges, v))
		}
		b.edges[j], b.bins[j] = edges, bins
	}
	return b
}

// binEdges returns at most maxBins ascending split thresholds for values.
func binEdges(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	distinct := make([]float64, 0, min(len(sorted), maxBins+1))
	for _, v := range sorted {
		if len(distinct) == 0 || v != distinct[len(distinct)-1] {
			distinct = append(distinct, v)
			if len(distinct) > maxBins+1 {
				break
			}
		}
	}

	if len(distinct) <= maxBins+1 {
		edges := make([]float64, len(distinct)-1)
		for i := range edges {
			edges[i] = distinct[i] + (distinct[i+1]-distinct[i])/2
		}
		return edges
	}

	n := len(sorted)
	edges := make([]float64, 0, maxBins)
	for k := 1; k <= maxBins; k++ {
		e := sorted[k*n/(maxBins+1)]
		if e == sorted[n-1] {
			break
		}
		if len(edges) > 0 && e <= edges[len(edges)-1] {
			continue
		}
		edges = append(edges, e)
	}
	return edges
}

// treeNode is a split when feature >= 0, a leaf otherwise.
type treeNode struct {
	feature   int
	bin       uint8
	threshold float64
	left      int
	right     int
	value     float64
}

// regressionTree is a CART tree grown on squared error.
type regressionTree struct {
	nodes []treeNode
}

// predict walks the tree on a raw feature row.
func (t *regressionTree) predict(row []float64) float64 {
	n := &t.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n.value
}

// predictBinned walks the tree on row i of the matrix it was grown on.
func (t *regressionTree) predictBinned(data *binnedMatrix, i int) float64 {
	n := &t.nodes[0]
	for n.feature >= 0 {
		if data.bins[n.feature][i] <= n.bin {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n.value
}

// depth returns the number of splits on the longest root-to-leaf path.
func (t *regressionTree) depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.nodes[i]
		if n.feature < 0 {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(0)
}

// treeGrower holds the state of one tree fit. The histograms are scratch
// space reused by every node.
type treeGrower struct {
	data     *binnedMatrix
	y        []float64
	maxDepth int
	minLeaf  int
	nodes    []treeNode
	count    []float64
	sum      []float64
}

// growTree fits a tree to y over the rows listed in idx. Rows may repeat.
// idx is reordered in place.
func growTree(data *binnedMatrix, y []float64, idx []int, maxDepth int) *regressionTree {
	g := &treeGrower{
		data:     data,
		y:        y,
		maxDepth: maxDepth,
		minLeaf:  1,
		count:    make([]float64, maxBins+1),
		sum:      make([]float64, maxBins+1),
	}
	g.grow(idx, 0)
	return &regressionTree{nodes: g.nodes}
}

func (g *treeGrower) grow(idx []int, depth int) int {
	var total float64
	for _, i := range idx {
		total += g.y[i]
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, treeNode{feature: -1, value: total / float64(len(idx))})

	if depth >= g.maxDepth || len(idx) < 2*g.minLeaf {
		return id
	}
	feature, bin, ok := g.bestSplit(idx, total)
	if !ok {
		return id
	}

	col := g.data.bins[feature]
	split := 0
	for r := range idx {
		if col[idx[r]] <= bin {
			idx[split], idx[r] = idx[r], idx[split]
			split++
		}
	}
	left := g.grow(idx[:split], depth+1)
	right := g.grow(idx[split:], depth+1)

	n := &g.nodes[id]
	n.feature = feature
	n.bin = bin
	n.threshold = g.data.edges[feature][bin]
	n.left = left
	n.right = right
	return id
}

// bestSplit finds the split with the largest squared-error reduction.
// Maximising sumL²/nL + sumR²/nR is equivalent and needs no second pass.
func (g *treeGrower) bestSplit(idx []int, total float64) (feature int, bin uint8, ok bool) {
	n := float64(len(idx))
	minLeaf := float64(g.minLeaf)
	parent := total * total / n
	best := parent + 1e-10*(1+math.Abs(parent))

	for f, col := range g.data.bins {
		nb := len(g.data.edges[f]) + 1
		if nb < 2 {
			continue
		}
		count, sum := g.count[:nb], g.sum[:nb]
		clear(count)
		clear(sum)
		for _, i := range idx {
			b := col[i]
			count[b]++
			sum[b] += g.y[i]
		}

		var nl, sl float64
		for b := 0; b < nb-1; b++ {
			nl += count[b]
			sl += sum[b]
			nr := n - nl
			if nl < minLeaf || count[b] == 0 {
				continue
			}
			if nr < minLeaf {
				break
			}
			sr := total - sl
			if score := sl*sl/nl + sr*sr/nr; score > best {
				best, feature, bin, ok = score, f, uint8(b), true
			}
		}
	}
	return feature, bin, ok
}

// checkDesign validates a design matrix against its target.
func checkDesign(x *mat.Dense, y []float64) (rows int, err error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return 0, fmt.Errorf("design has %d rows, target has %d", rows, len(y))
	}
	if rows == 0 || cols == 0 {
		return 0, fmt.Errorf("empty design matrix (%dx%d)", rows, cols)
	}
	return rows, nil
}

// predictRows applies f to every row of x, or returns NaN when unfitted.
func predictRows(x *mat.Dense, fitted bool, f func(row []float64) float64) []float64 {
	rows, cols := x.Dims()
	out := make([]float64, rows)
	if !fitted {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	row := make([]float64, cols)
	for i := range out {
		mat.Row(row, i, x)
		out[i] = f(row)
	}
	return out
}
