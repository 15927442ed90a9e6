package knn

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

func sqDist(a, b []float64) float64 {
	var sum float64
	for i, x := range a {
		d := x - b[i]
		sum += d * d
	}
	return sum
}

// byDistance orders neighbours by distance, then by training order.
func byDistance(ns []neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].dist != ns[j].dist {
			return ns[i].dist < ns[j].dist
		}
		return ns[i].row < ns[j].row
	})
}

type linearIndex struct {
	points [][]float64
}

func newLinearIndex(points [][]float64) *linearIndex {
	return &linearIndex{points: points}
}

func (l *linearIndex) nearest(q []float64, k int) []neighbor {
	all := make([]neighbor, len(l.points))
	for i, p := range l.points {
		all[i] = neighbor{row: i, dist: sqDist(q, p)}
	}
	byDistance(all)
	if k > len(all) {
		k = len(all)
	}
	out := all[:k]
	for i := range out {
		out[i].dist = math.Sqrt(out[i].dist)
	}
	return out
}

// point is a training row inside the KD-tree. row is the position in the
// training set; the tree reorders its backing slice while building.
type point struct {
	coords []float64
	row    int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(point).coords[d]
}

func (p point) Dims() int { return len(p.coords) }

// Distance is the squared Euclidean distance, as kdtree expects.
func (p point) Distance(c kdtree.Comparable) float64 {
	return sqDist(p.coords, c.(point).coords)
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{Dim: d, points: p}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

type plane struct {
	kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	return p.points[i].coords[p.Dim] < p.points[j].coords[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

type kdIndex struct {
	tree *kdtree.Tree
}

func newKDIndex(coords [][]float64) *kdIndex {
	pts := make(points, len(coords))
	for i, c := range coords {
		pts[i] = point{coords: c, row: i}
	}
	return &kdIndex{tree: kdtree.New(pts, false)}
}

// nearest runs a k-nearest search to find the k-th distance, then collects
// every row within that distance so ties resolve by training order, the same
// as the linear index.
func (t *kdIndex) nearest(q []float64, k int) []neighbor {
	query := point{coords: q, row: -1}

	nk := kdtree.NewNKeeper(k)
	t.tree.NearestSet(nk, query)
	radius := math.Inf(-1)
	for _, c := range nk.Heap {
		if c.Comparable != nil && c.Dist > radius {
			radius = c.Dist
		}
	}
	if math.IsInf(radius, -1) {
		return nil
	}

	dk := kdtree.NewDistKeeper(radius)
	t.tree.NearestSet(dk, query)
	found := make([]neighbor, 0, len(dk.Heap))
	for _, c := range dk.Heap {
		if c.Comparable == nil {
			continue
		}
		found = append(found, neighbor{row: c.Comparable.(point).row, dist: c.Dist})
	}
	byDistance(found)
	if k > len(found) {
		k = len(found)
	}
	out := found[:k]
	for i := range out {
		out[i].dist = math.Sqrt(out[i].dist)
	}
	return out
}
